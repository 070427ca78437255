package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Pipeline-Trigger (Standardwerte für den Scheduler beim Start)
	AutoStart         bool          `envconfig:"PIPELINE_AUTO_START" default:"true"`
	RunMode           string        `envconfig:"PIPELINE_RUN_MODE" default:"periodic"`
	DelaySeconds      int           `envconfig:"PIPELINE_DELAY_SECONDS" default:"10"`
	SnapshotFrequency string        `envconfig:"SNAPSHOT_FREQUENCY" default:"weekly"`
	UseMockData       bool          `envconfig:"USE_MOCK_DATA" default:"false"`
	ValidationMode    bool          `envconfig:"VALIDATION_MODE" default:"false"`
	SnapshotNow       bool          `envconfig:"SNAPSHOT_NOW" default:"true"`
	RetryBackoff      time.Duration `envconfig:"PIPELINE_RETRY_BACKOFF" default:"1h"`

	// Externe Quellen
	SubmissionsURL   string `envconfig:"SUBMISSIONS_URL"`
	SubmissionsToken string `envconfig:"SUBMISSIONS_TOKEN"`
	EuropePMCBaseURL string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest"`

	// Citation-Fetch (Rate-Limits der externen API)
	FetchConcurrency     int           `envconfig:"FETCH_CONCURRENCY" default:"5"`
	FetchSpacing         time.Duration `envconfig:"FETCH_SPACING" default:"500ms"`
	FetchTimeout         time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	FetchMaxAttempts     int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"4"`
	VerificationAttempts int           `envconfig:"FETCH_VERIFICATION_ATTEMPTS" default:"2"`
	FailureThreshold     int           `envconfig:"FETCH_FAILURE_THRESHOLD" default:"20"`

	// Historischer Backfill
	HistoryMaxAttempts int           `envconfig:"HISTORY_MAX_ATTEMPTS" default:"3"`
	HistoryTxTimeout   time.Duration `envconfig:"HISTORY_TX_TIMEOUT" default:"30s"`

	// Snapshot-Export nach S3 (optional)
	ExportEnabled bool   `envconfig:"EXPORT_ENABLED" default:"false"`
	S3Key         string `envconfig:"S3_KEY"`
	S3Secret      string `envconfig:"S3_SECRET"`
	S3URL         string `envconfig:"S3_URL"`
	S3Region      string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3Bucket      string `envconfig:"S3_BUCKET"`
	ExportKeep    int    `envconfig:"EXPORT_KEEP" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Validate prüft Kombinationen, die envconfig allein nicht abdecken kann.
func (c *Config) Validate() error {
	if c.ExportEnabled && (c.S3Bucket == "" || c.S3URL == "") {
		return fmt.Errorf("EXPORT_ENABLED requires S3_BUCKET and S3_URL")
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be >= 1, got %d", c.FetchConcurrency)
	}
	if c.FetchMaxAttempts < 1 || c.HistoryMaxAttempts < 1 {
		return fmt.Errorf("attempt limits must be >= 1")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return &c, err
	}
	return &c, c.Validate()
}
