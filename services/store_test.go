package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/providers"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

func TestCheckPreconditions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CheckPreconditions(ctx); err != nil {
		t.Fatalf("fresh store: %v", err)
	}

	if err := s.DB.Where("days > ?", 9000).Delete(&models.DecayLookup{}).Error; err != nil {
		t.Fatal(err)
	}
	if err := s.CheckPreconditions(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("incomplete decay table: err = %v, want ErrPrecondition", err)
	}

	if err := s.SeedDecayLookup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.DB.Migrator().DropTable(&models.Topic{}); err != nil {
		t.Fatal(err)
	}
	if err := s.CheckPreconditions(ctx); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("missing table: err = %v, want ErrPrecondition", err)
	}
}

func TestSeedDecayLookupIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.SeedDecayLookup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, s.DB, &models.DecayLookup{}); n != scoring.MaxDecayDays+1 {
		t.Fatalf("rows = %d", n)
	}
	var row models.DecayLookup
	if err := s.DB.First(&row, "days = ?", 365).Error; err != nil {
		t.Fatal(err)
	}
	want, _ := scoring.LookupDecay(365)
	if diff := row.Factor - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("factor(365) = %v, want %v", row.Factor, want)
	}
}

func TestRefreshCitationCountsExcludesSelfCitations(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)

	var counts map[uint]int
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.RefreshCitationCounts(tx); err != nil {
			return err
		}
		var err error
		counts, err = s.CitationCounts(tx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[uint]int{f.pubs[0].ID: 3, f.pubs[1].ID: 1, f.pubs[2].ID: 0}
	for id, n := range want {
		if counts[id] != n {
			t.Errorf("citation_count[%d] = %d, want %d", id, counts[id], n)
		}
	}
}

func TestLoadFacts(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	f := loadFacts(t, s)
	if len(f.Publications) != 3 || len(f.Authorships) != 4 || len(f.Citations) != 5 || len(f.Topics) != 4 {
		t.Fatalf("facts = %d pubs, %d authorships, %d citations, %d topics",
			len(f.Publications), len(f.Authorships), len(f.Citations), len(f.Topics))
	}
	self := 0
	for _, c := range f.Citations {
		if c.SelfCitation {
			self++
		}
	}
	if self != 1 {
		t.Fatalf("self citations = %d, want 1", self)
	}
}

func TestUpsertSubmissionIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := providers.SubmissionRecord{
		SubmissionID:    "sub-1",
		DOI:             "https://doi.org/10.1234/ABC",
		Title:           "A paper",
		VenueExternalID: "venue-1",
		VenueName:       "Venue",
		ReviewScore:     4,
		DatePublished:   tptr(day(2023, 3, 1)),
		Authors:         []providers.AuthorRecord{{ExternalID: "u1", Name: "Anna"}, {ExternalID: "u2", Name: "Jonas"}},
		Topics:          []string{"Open  Data", "open data", " "},
	}

	created, err := s.UpsertSubmission(ctx, rec)
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	created, err = s.UpsertSubmission(ctx, rec)
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}

	if n := countRows(t, s.DB, &models.Publication{}); n != 1 {
		t.Errorf("publications = %d", n)
	}
	if n := countRows(t, s.DB, &models.Researcher{}); n != 2 {
		t.Errorf("researchers = %d", n)
	}
	if n := countRows(t, s.DB, &models.Topic{}); n != 1 {
		t.Errorf("topics = %d, want 1 after normalization", n)
	}
	if n := countRows(t, s.DB, &models.PublicationTopic{}); n != 1 {
		t.Errorf("publication topics = %d", n)
	}

	var p models.Publication
	if err := s.DB.First(&p).Error; err != nil {
		t.Fatal(err)
	}
	if p.DOI == nil || *p.DOI != "10.1234/abc" {
		t.Errorf("doi = %v", p.DOI)
	}
	if p.Identifier() != "10.1234/abc" {
		t.Errorf("identifier = %q", p.Identifier())
	}
}

func TestInsertCitationsSkipsKnownExternalIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedFixture(t, s)
	p3 := f.pubs[2].ID

	n, err := s.InsertCitations(ctx, []models.Citation{
		{PublicationID: p3, ExternalID: "x1", CitedAt: day(2024, 1, 1)},
		{PublicationID: p3, ExternalID: "x2", CitedAt: day(2024, 1, 2)},
	})
	if err != nil || n != 2 {
		t.Fatalf("first insert: n=%d err=%v", n, err)
	}
	n, err = s.InsertCitations(ctx, []models.Citation{
		{PublicationID: p3, ExternalID: "x1", CitedAt: day(2024, 1, 1)},
		{PublicationID: p3, ExternalID: "x3", CitedAt: day(2024, 1, 3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("second insert affected %d rows, want 1", n)
	}
	var total int64
	s.DB.Model(&models.Citation{}).Where("publication_id = ?", p3).Count(&total)
	if total != 3 {
		t.Errorf("citations of pub 3 = %d, want 3", total)
	}
}

func TestPublicationsWithoutSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedFixture(t, s)
	err := s.UpsertPublicationSnapshots(s.DB, []models.PublicationSnapshot{
		{PublicationID: f.pubs[0].ID, Date: day(2022, 1, 3), Value: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	gaps, err := s.PublicationsWithoutSnapshots(ctx, day(2023, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(gaps) != 1 || gaps[0].ID != f.pubs[1].ID {
		t.Fatalf("gaps = %+v, want only pub 2", gaps)
	}
}

func TestNearestSnapshotDate(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	p1 := f.pubs[0].ID
	err := s.UpsertPublicationSnapshots(s.DB, []models.PublicationSnapshot{
		{PublicationID: p1, Date: day(2022, 1, 3), Value: 1},
		{PublicationID: p1, Date: day(2022, 1, 10), Value: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		at   time.Time
		want time.Time
		ok   bool
	}{
		{at: day(2022, 1, 9), want: day(2022, 1, 3), ok: true},
		{at: day(2022, 1, 10), want: day(2022, 1, 10), ok: true},
		{at: day(2022, 2, 1), want: day(2022, 1, 10), ok: true},
		{at: day(2022, 1, 1), ok: false},
	}
	for _, tt := range tests {
		got, ok, err := s.NearestSnapshotDate(s.DB, tt.at)
		if err != nil {
			t.Fatal(err)
		}
		if ok != tt.ok {
			t.Errorf("nearest(%v) ok = %v", tt.at, ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("nearest(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestUpsertPublicationSnapshotsOverwrites(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	key := models.PublicationSnapshot{PublicationID: f.pubs[0].ID, Date: day(2024, 1, 1)}

	for _, v := range []float64{1.5, 2.25} {
		row := key
		row.Value = v
		if err := s.UpsertPublicationSnapshots(s.DB, []models.PublicationSnapshot{row}); err != nil {
			t.Fatal(err)
		}
	}
	var rows []models.PublicationSnapshot
	if err := s.DB.Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Value != 2.25 {
		t.Fatalf("rows = %+v, want single row with 2.25", rows)
	}
}
