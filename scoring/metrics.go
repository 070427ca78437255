package scoring

import (
	"sort"
	"time"
)

const (
	// MaxHIndex ist die Obergrenze des h-Index.
	MaxHIndex = 100
	// MinVenueValue und MaxVenueValue begrenzen den Venue-Value.
	MinVenueValue = 1.0
	MaxVenueValue = 100.0
	// MinReviewScore und MaxReviewScore begrenzen den Review-Score.
	MinReviewScore = 1.0
	MaxReviewScore = 5.0
	// CitationBonusDivisor teilt den Venue-Value je Zitierung.
	CitationBonusDivisor = 5.0
)

// PublicationScore ist das Ergebnis der Score-Berechnung für eine Publikation.
type PublicationScore struct {
	CitationCount int
	Base          float64
	AgeDecay      float64
	CitationBonus float64
	Overall       float64
}

// Result bündelt die drei Stufen der Kette h-Index -> Venue -> Score.
type Result struct {
	Reference      time.Time
	HIndex         map[uint]int
	VenueValues    map[uint]float64
	Scores         map[uint]PublicationScore
	CitationCounts map[uint]int
}

// HIndex ist der größte Rang r, bei dem die r-meistzitierte Publikation
// mindestens r Zitierungen hat, begrenzt auf MaxHIndex.
func HIndex(counts []int) int {
	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	h := 0
	for i, c := range sorted {
		rank := i + 1
		if c < rank {
			break
		}
		h = rank
		if h >= MaxHIndex {
			return MaxHIndex
		}
	}
	return h
}

// HIndexes berechnet den h-Index je Autor aus den Zitierzahlen seiner
// Publikationen. Autoren ohne Publikationen fehlen in der Map.
func HIndexes(citationCounts map[uint]int, authorships []AuthorshipFact) map[uint]int {
	perAuthor := make(map[uint][]int)
	seen := make(map[AuthorshipFact]struct{}, len(authorships))
	for _, a := range authorships {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		c, ok := citationCounts[a.PublicationID]
		if !ok {
			continue
		}
		perAuthor[a.ResearcherID] = append(perAuthor[a.ResearcherID], c)
	}
	out := make(map[uint]int, len(perAuthor))
	for id, counts := range perAuthor {
		out[id] = HIndex(counts)
	}
	return out
}

// VenueValues mittelt die h-Indizes der verschiedenen Autoren je Venue. Nur
// Autoren mit Publikationen in diesem Venue zählen. Ergebnis in [1, 100],
// auf drei Stellen gerundet wie die numeric(12,3)-Spalte.
func VenueValues(pubs []PublicationFact, authorships []AuthorshipFact, hindex map[uint]int) map[uint]float64 {
	venueOf := make(map[uint]uint, len(pubs))
	for _, p := range pubs {
		venueOf[p.ID] = p.VenueID
	}

	type pair struct{ venue, researcher uint }
	pairs := make(map[pair]struct{})
	for _, a := range authorships {
		v, ok := venueOf[a.PublicationID]
		if !ok {
			continue
		}
		pairs[pair{v, a.ResearcherID}] = struct{}{}
	}

	sum := make(map[uint]float64)
	n := make(map[uint]int)
	for p := range pairs {
		sum[p.venue] += float64(hindex[p.researcher])
		n[p.venue]++
	}

	out := make(map[uint]float64)
	for _, v := range venueOf {
		if _, done := out[v]; done {
			continue
		}
		if n[v] == 0 {
			out[v] = MinVenueValue
			continue
		}
		out[v] = Round3(clamp(sum[v]/float64(n[v]), MinVenueValue, MaxVenueValue))
	}
	return out
}

// PublicationScores berechnet Base-Score, Alters-Decay und Zitierbonus zum
// Referenzdatum ref. Ohne Erscheinungsdatum gilt ref als Bezugsdatum.
func PublicationScores(pubs []PublicationFact, citations []CitationFact, venueValues map[uint]float64, ref time.Time) map[uint]PublicationScore {
	byPub := make(map[uint][]CitationFact)
	for _, c := range citations {
		if c.SelfCitation {
			continue
		}
		byPub[c.PublicationID] = append(byPub[c.PublicationID], c)
	}

	out := make(map[uint]PublicationScore, len(pubs))
	for _, p := range pubs {
		venue, ok := venueValues[p.VenueID]
		if !ok {
			venue = MinVenueValue
		}
		published := ref
		if p.DatePublished != nil {
			published = *p.DatePublished
		}

		s := PublicationScore{
			CitationCount: len(byPub[p.ID]),
			Base:          clamp(p.ReviewScore, MinReviewScore, MaxReviewScore) * venue,
			AgeDecay:      decayTerm(published, ref),
		}
		perCitation := venue / CitationBonusDivisor
		for _, c := range byPub[p.ID] {
			from := c.CreatedAt
			if from.Before(published) {
				from = published
			}
			s.CitationBonus += perCitation * decayTerm(from, ref)
		}
		s.Overall = Round3(s.Base*s.AgeDecay + s.CitationBonus)
		s.Base = Round3(s.Base)
		s.CitationBonus = Round3(s.CitationBonus)
		out[p.ID] = s
	}
	return out
}

// Compute führt die komplette Kette auf den übergebenen Fakten aus. Für
// historische Stichtage werden vorher Facts.AsOf angewendet.
func Compute(f *Facts, ref time.Time) *Result {
	counts := f.CitationCounts()
	h := HIndexes(counts, f.Authorships)
	venues := VenueValues(f.Publications, f.Authorships, h)
	return &Result{
		Reference:      ref,
		HIndex:         h,
		VenueValues:    venues,
		Scores:         PublicationScores(f.Publications, f.Citations, venues, ref),
		CitationCounts: counts,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
