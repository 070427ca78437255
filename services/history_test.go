package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{10, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func snapshotCountAt(t *testing.T, s *Store, model any, d time.Time) int64 {
	t.Helper()
	var n int64
	if err := s.DB.Model(model).Where("date = ?", d).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestBackfillHasNoLookAhead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedFixture(t, s)
	facts := loadFacts(t, s)
	gen := newTestGenerator(s)
	dates := []time.Time{day(2021, 1, 4), day(2022, 1, 3), day(2023, 1, 2)}

	report, err := gen.Reconstructor.Backfill(ctx, facts, dates)
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 3 || report.Skipped != 0 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}

	wantPubs := []int64{1, 2, 2}
	for i, d := range dates {
		if n := snapshotCountAt(t, s, &models.PublicationSnapshot{}, d); n != wantPubs[i] {
			t.Errorf("publication snapshots at %s = %d, want %d", scoring.DateKey(d), n, wantPubs[i])
		}
	}

	var snap models.PublicationSnapshot
	if err := s.DB.Where("publication_id = ? AND date = ?", f.pubs[0].ID, dates[0]).First(&snap).Error; err != nil {
		t.Fatal(err)
	}
	want := scoring.Compute(facts.AsOf(dates[0]), dates[0]).Scores[f.pubs[0].ID].Overall
	if snap.Value != want {
		t.Errorf("value at %s = %v, want %v", scoring.DateKey(dates[0]), snap.Value, want)
	}

	// Topic 2 und Autor 3 existieren 2021 noch nicht: keine Zeile statt 0.
	if n := snapshotCountAt(t, s, &models.TopicSnapshot{}, dates[0]); n != 1 {
		t.Errorf("topic snapshots at 2021 = %d, want 1", n)
	}
	var n int64
	s.DB.Model(&models.UserOverallSnapshot{}).Where("user_id = ?", f.researchers[2].ID).Count(&n)
	if n != 0 {
		t.Errorf("researcher 3 has %d overall snapshots before publishing", n)
	}
	if c := snapshotCountAt(t, s, &models.UserOverallSnapshot{}, dates[0]); c != 2 {
		t.Errorf("overall snapshots at 2021 = %d, want 2", c)
	}
}

func TestBackfillSkipsCoveredDates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFixture(t, s)
	facts := loadFacts(t, s)
	gen := newTestGenerator(s)
	dates := []time.Time{day(2021, 1, 4), day(2022, 1, 3)}

	if _, err := gen.Reconstructor.Backfill(ctx, facts, dates); err != nil {
		t.Fatal(err)
	}
	before := countRows(t, s.DB, &models.PublicationSnapshot{})

	report, err := gen.Reconstructor.Backfill(ctx, facts, dates)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 2 || report.Processed != 0 {
		t.Fatalf("second backfill = %+v, want all skipped", report)
	}
	if after := countRows(t, s.DB, &models.PublicationSnapshot{}); after != before {
		t.Fatalf("rows changed from %d to %d", before, after)
	}
}

func TestBackfillIsolatesFailedDates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFixture(t, s)
	facts := loadFacts(t, s)
	gen := newTestGenerator(s)
	if err := s.DB.Migrator().DropTable(&models.UserOverallSnapshot{}); err != nil {
		t.Fatal(err)
	}

	dates := []time.Time{day(2021, 1, 4), day(2022, 1, 3)}
	report, err := gen.Reconstructor.Backfill(ctx, facts, dates)
	if err != nil {
		t.Fatalf("failed dates must not abort the run: %v", err)
	}
	if len(report.Failed) != 2 || report.Processed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if n := countRows(t, s.DB, &models.PublicationSnapshot{}); n != 0 {
		t.Fatalf("failed transactions left %d publication snapshots", n)
	}
}

func TestProcessDateStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	facts := loadFacts(t, s)
	gen := newTestGenerator(s)
	sleeps := 0
	gen.Reconstructor.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	sqlDB, _ := s.DB.DB()
	sqlDB.Close()

	d := day(2022, 1, 3)
	_, err := gen.Reconstructor.processDate(context.Background(), facts, facts.AsOf(d), d)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if sleeps != 2 {
		t.Fatalf("backoff sleeps = %d, want 2", sleeps)
	}
}
