package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// Runner führt einen Pipeline-Lauf aus.
type Runner interface {
	Run(ctx context.Context, opts TriggerOptions) (*RunReport, error)
}

// SchedulerStatus beschreibt die aktuelle Planung.
type SchedulerStatus struct {
	Active  bool           `json:"active"`
	Options TriggerOptions `json:"options"`
	NextRun *time.Time     `json:"next_run,omitempty"`
	Retry   *time.Time     `json:"retry_at,omitempty"`
}

// Scheduler plant Pipeline-Läufe: sofort nach einer Verzögerung oder
// periodisch an den Kalendergrenzen der Snapshot-Frequenz (UTC).
type Scheduler struct {
	Runner       Runner
	RetryBackoff time.Duration
	Logger       *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	cron    *cron.Cron
	timer   *time.Timer
	retry   *time.Timer
	retryAt *time.Time
	opts    TriggerOptions
	active  bool

	spec func(scoring.Frequency) string
}

// NewScheduler erstellt einen Scheduler.
func NewScheduler(runner Runner, retryBackoff time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{Runner: runner, RetryBackoff: retryBackoff, Logger: logger}
}

// Start ersetzt die aktuelle Planung durch opts.
func (s *Scheduler) Start(opts TriggerOptions) error {
	freq, err := opts.Validate()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.Logger.Sugar()})),
	)
	if _, err := c.AddFunc(s.cronSpec(freq), s.fire); err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.opts = opts
	c.Start()
	s.cron = c
	s.active = true

	if opts.RunMode == RunModeImmediate {
		delay := time.Duration(opts.DelaySeconds) * time.Second
		s.timer = time.AfterFunc(delay, s.fire)
		s.Logger.Info("Pipeline geplant (immediate)", zap.Duration("delay", delay), zap.String("frequency", string(freq)))
	} else {
		s.Logger.Info("Pipeline geplant (periodic)", zap.String("frequency", string(freq)), zap.String("cron", s.cronSpec(freq)))
	}
	return nil
}

func (s *Scheduler) cronSpec(freq scoring.Frequency) string {
	if s.spec != nil {
		return s.spec(freq)
	}
	return freq.CronSpec()
}

// Stop beendet die Planung und bricht einen laufenden Lauf ab.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
		s.retryAt = nil
	}
	s.active = false
}

// Status liefert die aktuelle Planung.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{Active: s.active, Options: s.opts, Retry: s.retryAt}
	if s.active {
		if freq, err := scoring.ParseFrequency(s.opts.SnapshotFrequency); err == nil {
			next := scoring.NextBoundary(time.Now(), freq)
			st.NextRun = &next
		}
	}
	return st
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx, opts := s.ctx, s.opts
	s.retryAt = nil
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	report, err := s.Runner.Run(ctx, opts)
	switch {
	case err == nil:
		s.Logger.Info("Geplanter Lauf abgeschlossen", zap.String("run_id", report.RunID))
	case errors.Is(err, ErrLockHeld):
		s.Logger.Info("Geplanter Lauf übersprungen, Pipeline läuft bereits")
	case errors.Is(err, ErrPrecondition):
		s.Logger.Error("Geplanter Lauf abgebrochen, Vorbedingungen fehlen", zap.Error(err))
	case ctx.Err() != nil:
		s.Logger.Info("Geplanter Lauf abgebrochen", zap.Error(err))
	default:
		s.scheduleRetry(ctx, err)
	}
}

// scheduleRetry plant nach einem Fehlschlag einen einmaligen Wiederholungslauf.
func (s *Scheduler) scheduleRetry(ctx context.Context, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx != s.ctx || ctx.Err() != nil {
		return
	}
	if s.retry != nil {
		s.retry.Stop()
	}
	at := time.Now().Add(s.RetryBackoff).UTC()
	s.retryAt = &at
	s.retry = time.AfterFunc(s.RetryBackoff, s.fire)
	s.Logger.Warn("Lauf fehlgeschlagen, Wiederholung geplant",
		zap.Duration("backoff", s.RetryBackoff),
		zap.Time("retry_at", at),
		zap.Error(cause))
}

// cronLogger leitet die Meldungen von robfig/cron an zap weiter.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
