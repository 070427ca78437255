package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// SnapshotState ist der Zustand des Snapshot-Generators.
type SnapshotState string

const (
	StateIdle            SnapshotState = "IDLE"
	StateDiscoverGaps    SnapshotState = "DISCOVER_GAPS"
	StateBackfillHistory SnapshotState = "BACKFILL_HISTORY"
	StateCurrentSnapshot SnapshotState = "MAYBE_CURRENT_SNAPSHOT"
	StateDone            SnapshotState = "DONE"
)

// SnapshotOptions steuert einen Generator-Lauf.
type SnapshotOptions struct {
	Frequency   scoring.Frequency
	SnapshotNow bool
	Reference   time.Time
	// Current ist das Ergebnis der Live-Berechnung dieses Laufs. Fehlt es,
	// rechnet der Generator selbst live.
	Current *scoring.Result
}

// SnapshotReport fasst einen Generator-Lauf zusammen.
type SnapshotReport struct {
	States        []SnapshotState `json:"states"`
	Gaps          int             `json:"gaps"`
	History       HistoryReport   `json:"history"`
	CurrentDate   *time.Time      `json:"current_date,omitempty"`
	CurrentWrites int             `json:"current_writes"`
}

func (r *SnapshotReport) enter(s SnapshotState) {
	r.States = append(r.States, s)
}

// SnapshotCounts zählt die geschriebenen Zeilen je Familie.
type SnapshotCounts struct {
	Publications int
	Topics       int
	UserTopics   int
	UserOverall  int
}

// Total ist die Summe aller Familien.
func (c SnapshotCounts) Total() int {
	return c.Publications + c.Topics + c.UserTopics + c.UserOverall
}

// SnapshotWriter schreibt die vier Snapshot-Familien zu einem Stichtag.
type SnapshotWriter struct {
	Store   *Store
	Weights scoring.Weights
}

// Write schreibt Publikations-Snapshots aus res und leitet daraus die
// Topic- und Autoren-Rollups ab. Die Rollups lesen die Publikationswerte
// am letzten Stichtag <= d aus der Datenbank. Entitäten, die zu d noch
// nicht existieren, bekommen keine Zeile.
func (w *SnapshotWriter) Write(tx *gorm.DB, view *scoring.Facts, res *scoring.Result, d time.Time) (SnapshotCounts, error) {
	var counts SnapshotCounts
	d = scoring.Midnight(d)

	pubRows := make([]models.PublicationSnapshot, 0, len(view.Publications))
	for _, p := range view.Publications {
		sc, ok := res.Scores[p.ID]
		if !ok {
			continue
		}
		pubRows = append(pubRows, models.PublicationSnapshot{PublicationID: p.ID, Date: d, Value: sc.Overall})
	}
	if err := w.Store.UpsertPublicationSnapshots(tx, pubRows); err != nil {
		return counts, fmt.Errorf("publication snapshots: %w", err)
	}
	counts.Publications = len(pubRows)

	nearest, ok, err := w.Store.NearestSnapshotDate(tx, d)
	if err != nil {
		return counts, fmt.Errorf("nearest snapshot date: %w", err)
	}
	if !ok {
		return counts, nil
	}
	values, err := w.Store.SnapshotValues(tx, nearest)
	if err != nil {
		return counts, fmt.Errorf("snapshot values at %s: %w", scoring.DateKey(nearest), err)
	}

	rows := rollupRows(view, values, res.CitationCounts, d)
	topics := scoring.TopicRollup(rows, d, w.Weights)
	overall, perTopic := scoring.ResearcherRollup(rows, d, w.Weights)

	topicRows := make([]models.TopicSnapshot, 0, len(topics))
	for id, v := range topics {
		topicRows = append(topicRows, models.TopicSnapshot{TopicID: id, Date: d, MeanValue: v})
	}
	if err := w.Store.UpsertTopicSnapshots(tx, topicRows); err != nil {
		return counts, fmt.Errorf("topic snapshots: %w", err)
	}
	counts.Topics = len(topicRows)

	userTopicRows := make([]models.UserTopicSnapshot, 0, len(perTopic))
	for k, v := range perTopic {
		userTopicRows = append(userTopicRows, models.UserTopicSnapshot{ResearcherID: k.ResearcherID, TopicID: k.TopicID, Date: d, MeanValue: v})
	}
	if err := w.Store.UpsertUserTopicSnapshots(tx, userTopicRows); err != nil {
		return counts, fmt.Errorf("user topic snapshots: %w", err)
	}
	counts.UserTopics = len(userTopicRows)

	overallRows := make([]models.UserOverallSnapshot, 0, len(overall))
	for id, v := range overall {
		overallRows = append(overallRows, models.UserOverallSnapshot{ResearcherID: id, Date: d, MeanValue: v})
	}
	if err := w.Store.UpsertUserOverallSnapshots(tx, overallRows); err != nil {
		return counts, fmt.Errorf("user overall snapshots: %w", err)
	}
	counts.UserOverall = len(overallRows)

	snapshotRows.WithLabelValues("publication").Add(float64(counts.Publications))
	snapshotRows.WithLabelValues("topic").Add(float64(counts.Topics))
	snapshotRows.WithLabelValues("user_topic").Add(float64(counts.UserTopics))
	snapshotRows.WithLabelValues("user_overall").Add(float64(counts.UserOverall))
	return counts, nil
}

// rollupRows verbindet die Snapshot-Werte mit den Fakten der Sicht. Nur
// Publikationen, die in der Sicht existieren und einen Wert haben, zählen.
func rollupRows(view *scoring.Facts, values map[uint]float64, citations map[uint]int, d time.Time) []scoring.RollupRow {
	authors := view.AuthorsByPublication()
	topics := view.TopicsByPublication()
	rows := make([]scoring.RollupRow, 0, len(values))
	for _, p := range view.Publications {
		v, ok := values[p.ID]
		if !ok {
			continue
		}
		published := d
		if p.DatePublished != nil {
			published = *p.DatePublished
		}
		rows = append(rows, scoring.RollupRow{
			PublicationID: p.ID,
			Score:         v,
			Published:     published,
			Citations:     citations[p.ID],
			Topics:        topics[p.ID],
			Authors:       authors[p.ID],
		})
	}
	return rows
}

// SnapshotGenerator füllt Lücken in der Snapshot-Historie und schreibt
// optional den aktuellen Snapshot.
type SnapshotGenerator struct {
	Store         *Store
	Calculator    *Calculator
	Reconstructor *HistoricalReconstructor
	Writer        *SnapshotWriter
	Logger        *zap.Logger
}

// Generate durchläuft IDLE -> DISCOVER_GAPS -> BACKFILL_HISTORY ->
// MAYBE_CURRENT_SNAPSHOT -> DONE.
func (g *SnapshotGenerator) Generate(ctx context.Context, facts *scoring.Facts, opts SnapshotOptions) (*SnapshotReport, error) {
	report := &SnapshotReport{}
	report.enter(StateIdle)
	ref := opts.Reference
	if ref.IsZero() {
		ref = time.Now().UTC()
	}
	freq := opts.Frequency
	if freq == "" {
		freq = scoring.Weekly
	}
	log := g.Logger.With(zap.String("frequency", string(freq)))

	report.enter(StateDiscoverGaps)
	gaps, err := g.Store.PublicationsWithoutSnapshots(ctx, ref)
	if err != nil {
		return report, err
	}
	report.Gaps = len(gaps)

	if len(gaps) > 0 {
		report.enter(StateBackfillHistory)
		earliest := *gaps[0].DatePublished
		for _, p := range gaps[1:] {
			if p.DatePublished.Before(earliest) {
				earliest = *p.DatePublished
			}
		}
		dates := scoring.DateSequence(earliest, ref, freq)
		log.Info("Snapshot-Lücken gefunden",
			zap.Int("publications", len(gaps)),
			zap.Time("earliest", earliest),
			zap.Int("dates", len(dates)))

		hist, err := g.Reconstructor.Backfill(ctx, facts, dates)
		report.History = hist
		if err != nil {
			return report, fmt.Errorf("backfill history: %w", err)
		}
	} else {
		log.Info("Keine Snapshot-Lücken")
	}

	report.enter(StateCurrentSnapshot)
	if opts.SnapshotNow {
		current := opts.Current
		if current == nil {
			current, err = g.Calculator.Run(ctx, facts, ref, StrategyLive)
			if err != nil {
				return report, fmt.Errorf("live metrics: %w", err)
			}
		}
		day := scoring.Midnight(ref)
		err = g.Store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := g.Writer.Write(tx, currentView(facts, ref), current, day)
			report.CurrentWrites = n.Total()
			return err
		})
		if err != nil {
			return report, fmt.Errorf("current snapshot: %w", err)
		}
		report.CurrentDate = &day
		log.Info("Aktueller Snapshot geschrieben", zap.Time("date", day), zap.Int("rows", report.CurrentWrites))
	}

	report.enter(StateDone)
	return report, nil
}

// currentView enthält alle Publikationen, die bis ref erschienen sind,
// einschließlich undatierter.
func currentView(f *scoring.Facts, ref time.Time) *scoring.Facts {
	out := &scoring.Facts{Authorships: f.Authorships, Citations: f.Citations, Topics: f.Topics}
	for _, p := range f.Publications {
		if p.DatePublished != nil && p.DatePublished.After(ref) {
			continue
		}
		out.Publications = append(out.Publications, p)
	}
	return out
}
