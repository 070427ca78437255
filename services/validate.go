package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// ValidationCheck ist das Ergebnis einer einzelnen Invarianten-Prüfung.
type ValidationCheck struct {
	Name       string   `json:"name"`
	Violations int      `json:"violations"`
	Examples   []string `json:"examples,omitempty"`
}

// ValidationReport sammelt alle Prüfungen des Validierungsmodus.
type ValidationReport struct {
	OK     bool              `json:"ok"`
	Checks []ValidationCheck `json:"checks"`
}

// Violations summiert die Verstöße aller Prüfungen.
func (r *ValidationReport) Violations() int {
	n := 0
	for _, c := range r.Checks {
		n += c.Violations
	}
	return n
}

const maxExamples = 5

// Validate prüft die gespeicherten Metriken gegen ihre Invarianten.
func Validate(ctx context.Context, s *Store) (*ValidationReport, error) {
	db := s.DB.WithContext(ctx)
	report := &ValidationReport{}
	add := func(c ValidationCheck) {
		report.Checks = append(report.Checks, c)
	}

	var researchers []models.Researcher
	if err := db.Select("id", "h_index").Find(&researchers).Error; err != nil {
		return nil, err
	}
	hc := ValidationCheck{Name: "h_index_range"}
	for _, r := range researchers {
		if r.HIndex < 0 || r.HIndex > scoring.MaxHIndex {
			hc.note(fmt.Sprintf("researcher %d: %d", r.ID, r.HIndex))
		}
	}
	add(hc)

	var venues []models.Venue
	if err := db.Select("id", "value").Find(&venues).Error; err != nil {
		return nil, err
	}
	vc := ValidationCheck{Name: "venue_value_range"}
	for _, v := range venues {
		if v.Value < scoring.MinVenueValue || v.Value > scoring.MaxVenueValue {
			vc.note(fmt.Sprintf("venue %d: %.3f", v.ID, v.Value))
		}
	}
	add(vc)

	type countRow struct {
		PublicationID uint
		N             int
	}
	var counts []countRow
	err := db.Model(&models.Citation{}).
		Select("publication_id, COUNT(*) AS n").
		Where("is_self_citation = ?", false).
		Group("publication_id").Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	want := make(map[uint]int, len(counts))
	for _, c := range counts {
		want[c.PublicationID] = c.N
	}
	var pubs []models.Publication
	if err := db.Select("id", "citation_count", "overall_score").Find(&pubs).Error; err != nil {
		return nil, err
	}
	cc := ValidationCheck{Name: "citation_count_matches_rows"}
	sc := ValidationCheck{Name: "overall_score_non_negative"}
	for _, p := range pubs {
		if p.CitationCount != want[p.ID] {
			cc.note(fmt.Sprintf("publication %d: cached %d, rows %d", p.ID, p.CitationCount, want[p.ID]))
		}
		if p.OverallScore < 0 {
			sc.note(fmt.Sprintf("publication %d: %.3f", p.ID, p.OverallScore))
		}
	}
	add(cc)
	add(sc)

	families := []struct {
		name  string
		model any
		col   string
	}{
		{"publication_snapshots", &models.PublicationSnapshot{}, "value"},
		{"topic_snapshots", &models.TopicSnapshot{}, "mean_value"},
		{"user_topic_snapshots", &models.UserTopicSnapshot{}, "mean_value"},
		{"user_overall_snapshots", &models.UserOverallSnapshot{}, "mean_value"},
	}
	for _, f := range families {
		var n int64
		if err := db.Model(f.model).Where(f.col+" < ?", 0).Count(&n).Error; err != nil {
			return nil, err
		}
		add(ValidationCheck{Name: f.name + "_non_negative", Violations: int(n)})
	}

	report.OK = report.Violations() == 0
	s.Logger.Info("Validierung abgeschlossen",
		zap.Bool("ok", report.OK),
		zap.Int("checks", len(report.Checks)),
		zap.Int("violations", report.Violations()))
	return report, nil
}

func (c *ValidationCheck) note(example string) {
	c.Violations++
	if len(c.Examples) < maxExamples {
		c.Examples = append(c.Examples, example)
	}
}
