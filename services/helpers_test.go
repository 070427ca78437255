package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

var dbCounter atomic.Int64

// newTestStore öffnet eine frische In-Memory-Datenbank mit allen Tabellen
// und geseedeter Decay-Tabelle.
func newTestStore(tb testing.TB) *Store {
	tb.Helper()
	dsn := fmt.Sprintf("file:points_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	s := NewStore(db, zap.NewNop())
	if err := s.Migrate(); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if err := s.SeedDecayLookup(context.Background()); err != nil {
		tb.Fatalf("seed decay: %v", err)
	}
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tptr(t time.Time) *time.Time { return &t }

// fixture ist ein kleiner, vollständig bekannter Bestand:
//
//	venue 1: pub 1 (2020-01-06, review 4, Autoren 1+2, Topic 1)
//	         pub 2 (2022-01-03, review 3, Autor 2, Topics 1+2)
//	venue 2: pub 3 (2023-06-05, review 5, Autor 3, Topic 2)
//
// Zitierungen: pub 1 hat 3 fremde (2020, 2021, 2022) und 1 Selbstzitierung,
// pub 2 hat 1 fremde (2023).
type fixture struct {
	venues      []models.Venue
	researchers []models.Researcher
	topics      []models.Topic
	pubs        []models.Publication
}

func seedFixture(tb testing.TB, s *Store) fixture {
	tb.Helper()
	db := s.DB
	f := fixture{
		venues: []models.Venue{
			{ExternalID: "v1", Name: "Venue One", Value: 1},
			{ExternalID: "v2", Name: "Venue Two", Value: 1},
		},
		researchers: []models.Researcher{
			{ExternalID: "r1", Name: "Anna Müller"},
			{ExternalID: "r2", Name: "Jonas Weber"},
			{ExternalID: "r3", Name: "Léa Dubois"},
		},
		topics: []models.Topic{{Name: "open data"}, {Name: "security"}},
	}
	mustCreate(tb, db, &f.venues)
	mustCreate(tb, db, &f.researchers)
	mustCreate(tb, db, &f.topics)

	doi1 := "10.1000/one"
	f.pubs = []models.Publication{
		{SubmissionID: "s1", DOI: &doi1, Title: "One", VenueID: f.venues[0].ID, ReviewScore: 4, DatePublished: tptr(day(2020, 1, 6))},
		{SubmissionID: "s2", Title: "Two", VenueID: f.venues[0].ID, ReviewScore: 3, DatePublished: tptr(day(2022, 1, 3))},
		{SubmissionID: "s3", Title: "Three", VenueID: f.venues[1].ID, ReviewScore: 5, DatePublished: tptr(day(2023, 6, 5))},
	}
	mustCreate(tb, db, &f.pubs)

	p1, p2, p3 := f.pubs[0].ID, f.pubs[1].ID, f.pubs[2].ID
	r1, r2, r3 := f.researchers[0].ID, f.researchers[1].ID, f.researchers[2].ID
	mustCreate(tb, db, &[]models.Authorship{
		{PublicationID: p1, ResearcherID: r1},
		{PublicationID: p1, ResearcherID: r2},
		{PublicationID: p2, ResearcherID: r2},
		{PublicationID: p3, ResearcherID: r3},
	})
	t1, t2 := f.topics[0].ID, f.topics[1].ID
	mustCreate(tb, db, &[]models.PublicationTopic{
		{PublicationID: p1, TopicID: t1},
		{PublicationID: p2, TopicID: t1},
		{PublicationID: p2, TopicID: t2},
		{PublicationID: p3, TopicID: t2},
	})
	mustCreate(tb, db, &[]models.Citation{
		{PublicationID: p1, ExternalID: "c1", CitedAt: day(2020, 6, 1)},
		{PublicationID: p1, ExternalID: "c2", CitedAt: day(2021, 3, 1)},
		{PublicationID: p1, ExternalID: "c3", CitedAt: day(2022, 2, 1)},
		{PublicationID: p1, ExternalID: "c4", CitedAt: day(2021, 5, 1), IsSelfCitation: true},
		{PublicationID: p2, ExternalID: "c5", CitedAt: day(2023, 1, 2)},
	})
	return f
}

func mustCreate(tb testing.TB, db *gorm.DB, v any) {
	tb.Helper()
	if err := db.Create(v).Error; err != nil {
		tb.Fatalf("create %T: %v", v, err)
	}
}

func countRows(tb testing.TB, db *gorm.DB, model any) int64 {
	tb.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		tb.Fatalf("count %T: %v", model, err)
	}
	return n
}

func loadFacts(tb testing.TB, s *Store) *scoring.Facts {
	tb.Helper()
	f, err := s.LoadFacts(context.Background(), nil)
	if err != nil {
		tb.Fatalf("load facts: %v", err)
	}
	return f
}

// newTestGenerator verdrahtet Rechner, Writer, Reconstructor und Generator
// ohne Wartezeiten.
func newTestGenerator(s *Store) *SnapshotGenerator {
	calc := NewCalculator(s, zap.NewNop())
	writer := &SnapshotWriter{Store: s, Weights: scoring.DefaultWeights()}
	recon := &HistoricalReconstructor{
		Store:      s,
		Calculator: calc,
		Writer:     writer,
		Policy:     RetryPolicy{MaxAttempts: 3, TxTimeout: 10 * time.Second},
		Logger:     zap.NewNop(),
		sleep:      func(context.Context, time.Duration) error { return nil },
	}
	return &SnapshotGenerator{Store: s, Calculator: calc, Reconstructor: recon, Writer: writer, Logger: zap.NewNop()}
}
