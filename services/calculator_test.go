package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

func TestCalculatorLivePersistsEachStage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	f := seedFixture(t, s)
	facts := loadFacts(t, s)
	ref := day(2024, 6, 3)

	res, err := NewCalculator(s, zap.NewNop()).Run(ctx, facts, ref, StrategyLive)
	if err != nil {
		t.Fatal(err)
	}

	var researchers []models.Researcher
	s.DB.Order("id").Find(&researchers)
	wantH := []int{1, 1, 0}
	for i, r := range researchers {
		if r.HIndex != wantH[i] {
			t.Errorf("researcher %s h_index = %d, want %d", r.ExternalID, r.HIndex, wantH[i])
		}
	}

	var venues []models.Venue
	s.DB.Find(&venues)
	for _, v := range venues {
		if v.Value != 1 {
			t.Errorf("venue %s value = %v, want 1", v.ExternalID, v.Value)
		}
	}

	var pubs []models.Publication
	s.DB.Order("id").Find(&pubs)
	for _, p := range pubs {
		sc := res.Scores[p.ID]
		if p.OverallScore != sc.Overall {
			t.Errorf("publication %d overall_score = %v, want %v", p.ID, p.OverallScore, sc.Overall)
		}
	}
	if pubs[0].CitationCount != 3 || pubs[1].CitationCount != 1 || pubs[2].CitationCount != 0 {
		t.Errorf("citation counts = %d/%d/%d", pubs[0].CitationCount, pubs[1].CitationCount, pubs[2].CitationCount)
	}
	if res.CitationCounts[f.pubs[0].ID] != 3 {
		t.Errorf("result citation count = %d", res.CitationCounts[f.pubs[0].ID])
	}
}

func TestCalculatorStrategiesAgreeAtReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedFixture(t, s)
	facts := loadFacts(t, s)
	ref := day(2024, 6, 3)
	calc := NewCalculator(s, zap.NewNop())

	live, err := calc.Run(ctx, facts, ref, StrategyLive)
	if err != nil {
		t.Fatal(err)
	}
	asOf, err := calc.Run(ctx, facts, ref, StrategyAsOf)
	if err != nil {
		t.Fatal(err)
	}
	for id, sc := range live.Scores {
		if got := asOf.Scores[id].Overall; got != sc.Overall {
			t.Errorf("publication %d: as-of %v, live %v", id, got, sc.Overall)
		}
	}
}

// seedFractionalVenue legt ein Venue an, dessen Autoren die h-Indizes 1, 2
// und 4 haben. Der Venue-Wert ist damit 7/3.
func seedFractionalVenue(t *testing.T, s *Store) models.Venue {
	t.Helper()
	venue := models.Venue{ExternalID: "frac", Name: "Fraction", Value: 1}
	mustCreate(t, s.DB, &venue)
	researchers := []models.Researcher{
		{ExternalID: "h1", Name: "Ida Berg"},
		{ExternalID: "h2", Name: "Paul Keller"},
		{ExternalID: "h4", Name: "Mia Rossi"},
	}
	mustCreate(t, s.DB, &researchers)

	cite := 0
	for i, r := range researchers {
		h := []int{1, 2, 4}[i]
		for p := 0; p < h; p++ {
			pub := models.Publication{
				SubmissionID:  fmt.Sprintf("frac-%d-%d", i, p),
				Title:         "Fraction",
				VenueID:       venue.ID,
				ReviewScore:   float64(3 + p%3),
				DatePublished: tptr(day(2022, 1, 3)),
			}
			mustCreate(t, s.DB, &pub)
			mustCreate(t, s.DB, &models.Authorship{PublicationID: pub.ID, ResearcherID: r.ID})
			for c := 0; c < h; c++ {
				cite++
				mustCreate(t, s.DB, &models.Citation{
					PublicationID: pub.ID,
					ExternalID:    fmt.Sprintf("frac-cite-%d", cite),
					CitedAt:       day(2023, 1, 2),
				})
			}
		}
	}
	return venue
}

func TestCalculatorStrategiesAgreeOnFractionalVenue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	venue := seedFractionalVenue(t, s)
	facts := loadFacts(t, s)
	ref := day(2024, 6, 3)
	calc := NewCalculator(s, zap.NewNop())

	live, err := calc.Run(ctx, facts, ref, StrategyLive)
	if err != nil {
		t.Fatal(err)
	}
	asOf, err := calc.Run(ctx, facts, ref, StrategyAsOf)
	if err != nil {
		t.Fatal(err)
	}
	if live.VenueValues[venue.ID] != 2.333 || asOf.VenueValues[venue.ID] != 2.333 {
		t.Fatalf("venue live=%v as-of=%v, want 2.333", live.VenueValues[venue.ID], asOf.VenueValues[venue.ID])
	}
	if len(live.Scores) != 7 {
		t.Fatalf("scores = %d, want 7", len(live.Scores))
	}
	for id, sc := range live.Scores {
		if got := asOf.Scores[id].Overall; got != sc.Overall {
			t.Errorf("publication %d: as-of %v, live %v", id, got, sc.Overall)
		}
	}
}

func TestCalculatorAsOfIgnoresLaterData(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	facts := loadFacts(t, s)
	d := day(2021, 1, 4)

	res, err := NewCalculator(s, zap.NewNop()).Run(context.Background(), facts, d, StrategyAsOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Scores) != 1 {
		t.Fatalf("scores = %d, want only publication 1", len(res.Scores))
	}
	if got := res.CitationCounts[f.pubs[0].ID]; got != 1 {
		t.Fatalf("citations as of %s = %d, want 1", d.Format(time.DateOnly), got)
	}
	want := scoring.Compute(facts.AsOf(d), d).Scores[f.pubs[0].ID].Overall
	if res.Scores[f.pubs[0].ID].Overall != want {
		t.Fatalf("overall = %v, want %v", res.Scores[f.pubs[0].ID].Overall, want)
	}

	// Die Live-Tabellen bleiben unberührt.
	var p models.Publication
	s.DB.First(&p, f.pubs[0].ID)
	if p.OverallScore != 0 || p.CitationCount != 0 {
		t.Fatalf("as-of run wrote live columns: %+v", p)
	}
}
