package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/providers"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// RunMode bestimmt, wie der Scheduler die Pipeline auslöst.
type RunMode string

const (
	// RunModeImmediate startet nach DelaySeconds und läuft danach periodisch weiter.
	RunModeImmediate RunMode = "immediate"
	// RunModePeriodic läuft nur an den Kalendergrenzen der Frequenz.
	RunModePeriodic RunMode = "periodic"
)

// TriggerOptions sind die Parameter eines Pipeline-Triggers.
type TriggerOptions struct {
	RunMode           RunMode `json:"run_mode"`
	DelaySeconds      int     `json:"delay_seconds"`
	SnapshotFrequency string  `json:"snapshot_frequency"`
	UseMockData       bool    `json:"use_mock_data"`
	ValidationMode    bool    `json:"validation_mode"`
	SnapshotNow       bool    `json:"snapshot_now"`
}

// Validate prüft die Optionen und liefert die geparste Frequenz.
func (o TriggerOptions) Validate() (scoring.Frequency, error) {
	switch o.RunMode {
	case RunModeImmediate, RunModePeriodic:
	default:
		return "", fmt.Errorf("invalid run_mode %q (immediate|periodic)", o.RunMode)
	}
	if o.DelaySeconds < 0 {
		return "", fmt.Errorf("delay_seconds must be >= 0, got %d", o.DelaySeconds)
	}
	return scoring.ParseFrequency(o.SnapshotFrequency)
}

// Sources sind die externen Quellen eines Laufs.
type Sources struct {
	Publications []providers.PublicationSource
	Citations    providers.CitationSource
}

// SnapshotExporter exportiert die Snapshots eines Stichtags.
type SnapshotExporter interface {
	Export(ctx context.Context, date time.Time) ([]string, error)
}

// RunReport ist das Ergebnis eines Pipeline-Laufs.
type RunReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Options    TriggerOptions    `json:"options"`
	Discovery  DiscoveryReport   `json:"discovery"`
	Ingest     IngestReport      `json:"ingest"`
	Snapshots  *SnapshotReport   `json:"snapshots,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
	Exported   []string          `json:"exported,omitempty"`
}

// Pipeline orchestriert einen vollständigen Lauf.
type Pipeline struct {
	Store       *Store
	Locker      Locker
	Calculator  *Calculator
	Generator   *SnapshotGenerator
	Live        Sources
	Mock        Sources
	FetchPolicy FetchPolicy
	Exporter    SnapshotExporter
	Logger      *zap.Logger

	Now func() time.Time
}

const pipelineLockName = "points-pipeline"

// Run führt einen Lauf aus: Sperre, Vorbedingungen, Discovery,
// Citation-Ingest, Live-Metriken, Snapshots, optional Validierung und Export.
func (p *Pipeline) Run(ctx context.Context, opts TriggerOptions) (*RunReport, error) {
	freq, err := opts.Validate()
	if err != nil {
		return nil, err
	}

	release, err := p.Locker.TryLock(ctx, pipelineLockName)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			p.Logger.Warn("Pipeline läuft bereits, Trigger wird ignoriert")
		}
		return nil, err
	}
	defer release()

	now := p.now()
	report := &RunReport{RunID: uuid.NewString(), StartedAt: now, Options: opts}
	log := p.Logger.With(zap.String("run_id", report.RunID), zap.String("frequency", string(freq)), zap.Bool("mock", opts.UseMockData))
	log.Info("Pipeline-Lauf gestartet")

	run := models.PipelineRun{
		ID:        report.RunID,
		StartedAt: now,
		RunMode:   string(opts.RunMode),
		Frequency: string(freq),
		MockData:  opts.UseMockData,
		State:     "running",
	}
	if err := p.Store.DB.WithContext(ctx).Create(&run).Error; err != nil {
		log.Warn("Lauf konnte nicht protokolliert werden", zap.Error(err))
	}

	err = p.execute(ctx, log, opts, freq, report)
	report.FinishedAt = p.now()
	p.finish(log, &run, report, err)
	return report, err
}

func (p *Pipeline) execute(ctx context.Context, log *zap.Logger, opts TriggerOptions, freq scoring.Frequency, report *RunReport) error {
	if err := p.Store.CheckPreconditions(ctx); err != nil {
		log.Error("Vorbedingungen nicht erfüllt", zap.Error(err))
		return err
	}

	src := p.Live
	if opts.UseMockData {
		src = p.Mock
	}

	fetch := NewFetchService(p.Store, log, src.Publications...)
	disc, err := fetch.DiscoverPublications(ctx)
	report.Discovery = disc
	if err != nil {
		return fmt.Errorf("discover publications: %w", err)
	}

	if src.Citations != nil {
		targets, err := p.Store.CitationTargets(ctx)
		if err != nil {
			return fmt.Errorf("citation targets: %w", err)
		}
		ingestor := NewCitationIngestor(p.Store, src.Citations, p.FetchPolicy, log)
		ing, err := ingestor.Ingest(ctx, targets, NewFailureCounter(p.FetchPolicy.FailureThreshold))
		report.Ingest = ing
		if err != nil {
			return err
		}
	}

	facts, err := p.Store.LoadFacts(ctx, nil)
	if err != nil {
		return err
	}
	ref := report.StartedAt
	current, err := p.Calculator.Run(ctx, facts, ref, StrategyLive)
	if err != nil {
		return fmt.Errorf("live metrics: %w", err)
	}

	snaps, err := p.Generator.Generate(ctx, facts, SnapshotOptions{
		Frequency:   freq,
		SnapshotNow: opts.SnapshotNow,
		Reference:   ref,
		Current:     current,
	})
	report.Snapshots = snaps
	if err != nil {
		return fmt.Errorf("generate snapshots: %w", err)
	}

	if opts.ValidationMode {
		v, err := Validate(ctx, p.Store)
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		report.Validation = v
		if !v.OK {
			log.Warn("Validierung mit Verstößen", zap.Int("violations", v.Violations()))
		}
	}

	if p.Exporter != nil && opts.SnapshotNow {
		keys, err := p.Exporter.Export(ctx, scoring.Midnight(ref))
		if err != nil {
			log.Error("Snapshot-Export fehlgeschlagen", zap.Error(err))
		} else {
			report.Exported = keys
		}
	}
	return nil
}

// finish schreibt Zustand und Statistik des Laufs.
func (p *Pipeline) finish(log *zap.Logger, run *models.PipelineRun, report *RunReport, runErr error) {
	state := "done"
	switch {
	case errors.Is(runErr, ErrBatchAborted):
		state = "aborted"
	case runErr != nil:
		state = "failed"
	}
	pipelineRuns.WithLabelValues(state).Inc()
	pipelineDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	finished := report.FinishedAt
	run.FinishedAt = &finished
	run.State = state
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if stats, err := json.Marshal(report); err == nil {
		run.Stats = datatypes.JSON(stats)
	}
	// Eigener Kontext, damit auch abgebrochene Läufe protokolliert werden.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Store.DB.WithContext(ctx).Save(run).Error; err != nil {
		log.Warn("Lauf-Protokoll konnte nicht gespeichert werden", zap.Error(err))
	}

	if runErr != nil {
		log.Error("Pipeline-Lauf beendet", zap.String("state", state), zap.Error(runErr))
		return
	}
	log.Info("Pipeline-Lauf beendet", zap.String("state", state),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
}

// RecentRuns liefert die letzten Läufe, neueste zuerst.
func (p *Pipeline) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	err := p.Store.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
