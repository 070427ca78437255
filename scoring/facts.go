package scoring

import "time"

// PublicationFact sind die für die Berechnung relevanten Felder einer Publikation.
type PublicationFact struct {
	ID            uint
	VenueID       uint
	ReviewScore   float64
	DatePublished *time.Time
}

// AuthorshipFact verknüpft Publikation und Autor.
type AuthorshipFact struct {
	PublicationID uint
	ResearcherID  uint
}

// CitationFact ist eine Zitierung mit Erstellungsdatum.
type CitationFact struct {
	PublicationID uint
	CreatedAt     time.Time
	SelfCitation  bool
}

// TopicFact verknüpft Publikation und Topic.
type TopicFact struct {
	PublicationID uint
	TopicID       uint
}

// Facts ist das Zwischenergebnis eines Pipeline-Laufs: alle Rohdaten, aus
// denen sich die Metriken ableiten. Es wird einmal pro Lauf geladen und
// explizit zwischen den Stufen weitergereicht.
type Facts struct {
	Publications []PublicationFact
	Authorships  []AuthorshipFact
	Citations    []CitationFact
	Topics       []TopicFact
}

// AsOf schränkt die Fakten auf den Stand am Stichtag d ein: nur
// Publikationen, die bis d erschienen sind (undatierte fallen heraus), und
// nur Zitierungen bis d. Nichts nach d fließt ein.
func (f *Facts) AsOf(d time.Time) *Facts {
	out := &Facts{}
	alive := make(map[uint]struct{}, len(f.Publications))
	for _, p := range f.Publications {
		if p.DatePublished == nil || p.DatePublished.After(d) {
			continue
		}
		alive[p.ID] = struct{}{}
		out.Publications = append(out.Publications, p)
	}
	for _, a := range f.Authorships {
		if _, ok := alive[a.PublicationID]; ok {
			out.Authorships = append(out.Authorships, a)
		}
	}
	for _, c := range f.Citations {
		if _, ok := alive[c.PublicationID]; !ok || c.CreatedAt.After(d) {
			continue
		}
		out.Citations = append(out.Citations, c)
	}
	for _, t := range f.Topics {
		if _, ok := alive[t.PublicationID]; ok {
			out.Topics = append(out.Topics, t)
		}
	}
	return out
}

// CitationCounts zählt die Fremdzitierungen je Publikation. Publikationen
// ohne Zitierung erscheinen mit 0.
func (f *Facts) CitationCounts() map[uint]int {
	counts := make(map[uint]int, len(f.Publications))
	for _, p := range f.Publications {
		counts[p.ID] = 0
	}
	for _, c := range f.Citations {
		if c.SelfCitation {
			continue
		}
		if _, ok := counts[c.PublicationID]; ok {
			counts[c.PublicationID]++
		}
	}
	return counts
}

// AuthorsByPublication gruppiert die Autoren je Publikation.
func (f *Facts) AuthorsByPublication() map[uint][]uint {
	out := make(map[uint][]uint)
	for _, a := range f.Authorships {
		out[a.PublicationID] = append(out[a.PublicationID], a.ResearcherID)
	}
	return out
}

// TopicsByPublication gruppiert die Topics je Publikation.
func (f *Facts) TopicsByPublication() map[uint][]uint {
	out := make(map[uint][]uint)
	for _, t := range f.Topics {
		out[t.PublicationID] = append(out[t.PublicationID], t.TopicID)
	}
	return out
}

// Publication sucht eine Publikation per ID.
func (f *Facts) Publication(id uint) (PublicationFact, bool) {
	for _, p := range f.Publications {
		if p.ID == id {
			return p, true
		}
	}
	return PublicationFact{}, false
}
