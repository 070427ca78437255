package services

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/config"
	"github.com/PaIIermo/DIP-compass-gamification/providers"
	"github.com/PaIIermo/DIP-compass-gamification/providers/europepmc"
	"github.com/PaIIermo/DIP-compass-gamification/providers/mock"
	"github.com/PaIIermo/DIP-compass-gamification/providers/submissions"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

const (
	mockSeed         = 42
	mockPublications = 60
)

// BuildPipeline verdrahtet Store, Quellen, Rechner und Generator aus der Konfiguration.
func BuildPipeline(cfg *config.Config, db *gorm.DB, logger *zap.Logger, exporter SnapshotExporter) *Pipeline {
	store := NewStore(db, logger)
	calc := NewCalculator(store, logger)
	writer := &SnapshotWriter{Store: store, Weights: scoring.DefaultWeights()}
	recon := &HistoricalReconstructor{
		Store:      store,
		Calculator: calc,
		Writer:     writer,
		Policy: RetryPolicy{
			MaxAttempts: cfg.HistoryMaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			TxTimeout:   cfg.HistoryTxTimeout,
		},
		Logger: logger.With(zap.String("component", "history")),
	}

	httpClient := providers.NewHTTPClient(cfg.FetchTimeout + 5*time.Second)
	live := Sources{Citations: europepmc.NewFetcher(cfg.EuropePMCBaseURL, httpClient, logger)}
	if cfg.SubmissionsURL != "" {
		live.Publications = append(live.Publications, submissions.NewClient(cfg.SubmissionsURL, cfg.SubmissionsToken, httpClient, logger))
	} else {
		logger.Warn("SUBMISSIONS_URL nicht gesetzt, Discovery nur mit Mock-Daten möglich")
	}
	m := mock.New(mockSeed, time.Now(), mockPublications)

	var locker Locker = &LocalLocker{}
	if db.Dialector.Name() == "postgres" {
		locker = &PgAdvisoryLocker{DB: db}
	}

	return &Pipeline{
		Store:      store,
		Locker:     locker,
		Calculator: calc,
		Generator: &SnapshotGenerator{
			Store:         store,
			Calculator:    calc,
			Reconstructor: recon,
			Writer:        writer,
			Logger:        logger.With(zap.String("component", "snapshots")),
		},
		Live: live,
		Mock: Sources{Publications: []providers.PublicationSource{m}, Citations: m},
		FetchPolicy: FetchPolicy{
			Concurrency:          cfg.FetchConcurrency,
			Spacing:              cfg.FetchSpacing,
			Timeout:              cfg.FetchTimeout,
			MaxAttempts:          cfg.FetchMaxAttempts,
			BaseDelay:            time.Second,
			VerificationAttempts: cfg.VerificationAttempts,
			FailureThreshold:     cfg.FailureThreshold,
		},
		Exporter: exporter,
		Logger:   logger.With(zap.String("component", "pipeline")),
	}
}

// DefaultTrigger liefert die Trigger-Optionen aus der Konfiguration.
func DefaultTrigger(cfg *config.Config) TriggerOptions {
	return TriggerOptions{
		RunMode:           RunMode(cfg.RunMode),
		DelaySeconds:      cfg.DelaySeconds,
		SnapshotFrequency: cfg.SnapshotFrequency,
		UseMockData:       cfg.UseMockData,
		ValidationMode:    cfg.ValidationMode,
		SnapshotNow:       cfg.SnapshotNow,
	}
}
