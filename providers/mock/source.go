// Package mock erzeugt einen deterministischen Testbestand für USE_MOCK_DATA.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

var (
	venueNames = []string{"Compass Summit", "DIP Workshop", "Open Science Days", "Data Forum"}
	topicNames = []string{"Machine Learning", "Open Data", "Bioinformatics", "Human-Computer Interaction", "Security"}
	firstNames = []string{"Anna", "Jonas", "Léa", "Mateo", "Sofia", "Lukas", "Zoë", "Noah", "Mia", "Elias", "Ida", "Paul"}
	lastNames  = []string{"Müller", "Schmidt", "Novák", "García", "Rossi", "Weber", "Horváth", "Fischer", "Dubois", "Keller", "Berg", "Šimek"}
)

// Source ist Publikations- und Zitierquelle zugleich.
type Source struct {
	Seed         int64
	Reference    time.Time
	Publications int

	once      sync.Once
	records   []providers.SubmissionRecord
	citations map[string][]providers.CitationRecord
}

// New erstellt eine Mock-Quelle mit n Publikationen bis ref.
func New(seed int64, ref time.Time, n int) *Source {
	return &Source{Seed: seed, Reference: ref.UTC(), Publications: n}
}

// Name gibt den Namen der Quelle zurück.
func (s *Source) Name() string { return "mock" }

// Discover liefert alle Einreichungen, die nach since erschienen sind.
func (s *Source) Discover(ctx context.Context, since *time.Time) ([]providers.SubmissionRecord, error) {
	s.once.Do(s.generate)
	var out []providers.SubmissionRecord
	for _, r := range s.records {
		if since != nil && r.DatePublished != nil && !r.DatePublished.After(*since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// FetchCitations liefert die Zitierungen zu einer Mock-DOI.
func (s *Source) FetchCitations(ctx context.Context, identifier string) ([]providers.CitationRecord, error) {
	s.once.Do(s.generate)
	if err := ctx.Err(); err != nil {
		return nil, &providers.FetchError{Source: s.Name(), Identifier: identifier, Err: err}
	}
	recs := s.citations[providers.NormalizeDOI(identifier)]
	out := make([]providers.CitationRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (s *Source) generate() {
	rng := rand.New(rand.NewSource(s.Seed))
	ref := s.Reference
	if ref.IsZero() {
		ref = time.Now().UTC()
	}
	s.citations = make(map[string][]providers.CitationRecord)

	authors := make([]providers.AuthorRecord, len(firstNames))
	for i := range authors {
		authors[i] = providers.AuthorRecord{
			ExternalID: fmt.Sprintf("mock-user-%02d", i+1),
			Name:       firstNames[i] + " " + lastNames[i],
		}
	}

	for i := 0; i < s.Publications; i++ {
		ageDays := rng.Intn(5 * 365)
		published := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -ageDays)
		v := rng.Intn(len(venueNames))
		doi := fmt.Sprintf("10.5555/mock.%04d", i+1)

		rec := providers.SubmissionRecord{
			SubmissionID:    fmt.Sprintf("mock-sub-%04d", i+1),
			DOI:             doi,
			Title:           fmt.Sprintf("Mock publication %d", i+1),
			VenueExternalID: fmt.Sprintf("mock-venue-%d", v+1),
			VenueName:       venueNames[v],
			ReviewScore:     float64(1+rng.Intn(9)) / 2,
			DatePublished:   &published,
		}
		for _, j := range rng.Perm(len(authors))[:1+rng.Intn(3)] {
			rec.Authors = append(rec.Authors, authors[j])
		}
		for _, j := range rng.Perm(len(topicNames))[:1+rng.Intn(2)] {
			rec.Topics = append(rec.Topics, topicNames[j])
		}
		s.records = append(s.records, rec)

		n := rng.Intn(12)
		for c := 0; c < n; c++ {
			created := published.AddDate(0, 0, rng.Intn(ageDays+1))
			citing := []string{authors[rng.Intn(len(authors))].Name}
			self := rng.Intn(5) == 0
			if self {
				citing = append(citing, rec.Authors[0].Name)
			}
			s.citations[doi] = append(s.citations[doi], providers.CitationRecord{
				ExternalID:       fmt.Sprintf("mock:%s:%d", doi, c+1),
				CitingIdentifier: fmt.Sprintf("10.5555/citing.%04d.%d", i+1, c+1),
				CreatedDate:      created,
				IsSelfCitation:   self,
				CitingAuthors:    citing,
			})
		}
	}
}
