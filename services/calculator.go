package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// Strategy legt fest, woher die Kette h-Index -> Venue -> Score ihre
// Zwischenergebnisse liest.
type Strategy int

const (
	// StrategyLive persistiert jede Stufe und liest sie für die nächste zurück.
	StrategyLive Strategy = iota
	// StrategyAsOf rechnet rein im Speicher auf Facts.AsOf(d).
	StrategyAsOf
)

func (s Strategy) String() string {
	if s == StrategyAsOf {
		return "as_of"
	}
	return "live"
}

// Calculator ist der einzige Einstiegspunkt für Metrik-Berechnungen, live
// wie historisch.
type Calculator struct {
	Store  *Store
	Logger *zap.Logger
}

// NewCalculator erstellt einen neuen Calculator.
func NewCalculator(store *Store, logger *zap.Logger) *Calculator {
	return &Calculator{Store: store, Logger: logger}
}

// Run berechnet alle Metriken zum Stichtag asOf.
func (c *Calculator) Run(ctx context.Context, facts *scoring.Facts, asOf time.Time, strategy Strategy) (*scoring.Result, error) {
	start := time.Now()
	defer func() {
		calculationDuration.WithLabelValues(strategy.String()).Observe(time.Since(start).Seconds())
	}()

	if strategy == StrategyAsOf {
		return scoring.Compute(facts.AsOf(asOf), asOf), nil
	}
	return c.runLive(ctx, facts, asOf)
}

// runLive führt jede Stufe in einer eigenen Transaktion aus. Die nächste
// Stufe sieht nur, was die vorherige committet hat.
func (c *Calculator) runLive(ctx context.Context, facts *scoring.Facts, ref time.Time) (*scoring.Result, error) {
	log := c.Logger.With(zap.String("strategy", "live"), zap.Time("reference", ref))
	db := c.Store.DB.WithContext(ctx)
	res := &scoring.Result{Reference: ref}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := c.Store.RefreshCitationCounts(tx); err != nil {
			return fmt.Errorf("refresh citation counts: %w", err)
		}
		counts, err := c.Store.CitationCounts(tx)
		if err != nil {
			return err
		}
		res.CitationCounts = counts
		return c.Store.SaveHIndexes(tx, scoring.HIndexes(counts, facts.Authorships))
	})
	if err != nil {
		return nil, fmt.Errorf("h-index stage: %w", err)
	}
	log.Info("h-index stage committed", zap.Int("publications", len(res.CitationCounts)))

	err = db.Transaction(func(tx *gorm.DB) error {
		h, err := c.Store.HIndexes(tx)
		if err != nil {
			return err
		}
		res.HIndex = h
		return c.Store.SaveVenueValues(tx, scoring.VenueValues(facts.Publications, facts.Authorships, h))
	})
	if err != nil {
		return nil, fmt.Errorf("venue stage: %w", err)
	}
	log.Info("venue stage committed", zap.Int("researchers", len(res.HIndex)))

	err = db.Transaction(func(tx *gorm.DB) error {
		venues, err := c.Store.VenueValues(tx)
		if err != nil {
			return err
		}
		res.VenueValues = venues
		res.Scores = scoring.PublicationScores(facts.Publications, facts.Citations, venues, ref)
		return c.Store.SaveScores(tx, res.Scores)
	})
	if err != nil {
		return nil, fmt.Errorf("score stage: %w", err)
	}
	log.Info("score stage committed", zap.Int("venues", len(res.VenueValues)), zap.Int("scores", len(res.Scores)))
	return res, nil
}
