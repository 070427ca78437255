package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// RetryPolicy beschreibt Versuche und Backoff pro Stichtag.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	TxTimeout   time.Duration
}

// DefaultRetryPolicy: drei Versuche, 1s/2s Backoff, 30s pro Transaktion.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, TxTimeout: 30 * time.Second}
}

// Backoff liefert die Wartezeit vor Versuch attempt (ab 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// HistoryReport fasst einen Backfill zusammen.
type HistoryReport struct {
	Dates     int         `json:"dates"`
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Failed    []time.Time `json:"failed,omitempty"`
	Rows      int         `json:"rows"`
}

// HistoricalReconstructor rechnet Metriken für vergangene Stichtage nach,
// ohne Daten nach dem Stichtag zu verwenden.
type HistoricalReconstructor struct {
	Store      *Store
	Calculator *Calculator
	Writer     *SnapshotWriter
	Policy     RetryPolicy
	Logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Backfill verarbeitet die Stichtage aufsteigend. Ein fehlgeschlagener
// Stichtag wird protokolliert und übersprungen. Nur wenn die Datenbank
// über alle Versuche nicht erreichbar ist, bricht der Lauf ab.
func (h *HistoricalReconstructor) Backfill(ctx context.Context, facts *scoring.Facts, dates []time.Time) (HistoryReport, error) {
	report := HistoryReport{Dates: len(dates)}
	coverage, err := h.Store.SnapshotCoverage(ctx)
	if err != nil {
		return report, err
	}

	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d = scoring.Midnight(d)
		log := h.Logger.With(zap.String("date", scoring.DateKey(d)))

		view := facts.AsOf(d)
		if coverage.Complete(d, view.Publications) {
			report.Skipped++
			continue
		}

		n, err := h.processDate(ctx, facts, view, d)
		switch {
		case err == nil:
			ids := make([]uint, 0, len(view.Publications))
			for _, p := range view.Publications {
				ids = append(ids, p.ID)
			}
			coverage.Add(d, ids...)
			report.Processed++
			report.Rows += n
			historyDates.WithLabelValues("processed").Inc()
		case errors.Is(err, ErrStoreUnavailable):
			log.Error("Datenbank nicht erreichbar, Backfill abgebrochen", zap.Error(err))
			return report, err
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			log.Error("Stichtag fehlgeschlagen, überspringe", zap.Error(err))
			report.Failed = append(report.Failed, d)
			historyDates.WithLabelValues("failed").Inc()
		}
	}

	h.Logger.Info("Backfill abgeschlossen",
		zap.Int("dates", report.Dates),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// processDate versucht einen Stichtag bis zu MaxAttempts-mal. Jeder Versuch
// beginnt mit einem Health-Check und läuft in einer eigenen Transaktion.
func (h *HistoricalReconstructor) processDate(ctx context.Context, facts, view *scoring.Facts, d time.Time) (int, error) {
	attempts := h.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	pingFailures := 0
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := h.wait(ctx, h.Policy.Backoff(attempt)); err != nil {
				return 0, err
			}
		}
		n, err := h.attempt(ctx, facts, view, d)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, ErrStoreUnavailable) {
			pingFailures++
		}
		lastErr = err
		h.Logger.Warn("Stichtag-Versuch fehlgeschlagen",
			zap.String("date", scoring.DateKey(d)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if pingFailures == attempts {
		return 0, lastErr
	}
	return 0, fmt.Errorf("date %s after %d attempts: %w", scoring.DateKey(d), attempts, lastErr)
}

func (h *HistoricalReconstructor) attempt(ctx context.Context, facts, view *scoring.Facts, d time.Time) (int, error) {
	timeout := h.Policy.TxTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := h.Store.Ping(actx); err != nil {
		return 0, err
	}
	res, err := h.Calculator.Run(actx, facts, d, StrategyAsOf)
	if err != nil {
		return 0, err
	}
	var counts SnapshotCounts
	err = h.Store.DB.WithContext(actx).Transaction(func(tx *gorm.DB) error {
		var err error
		counts, err = h.Writer.Write(tx, view, res, d)
		return err
	})
	return counts.Total(), err
}

func (h *HistoricalReconstructor) wait(ctx context.Context, d time.Duration) error {
	if h.sleep != nil {
		return h.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}
