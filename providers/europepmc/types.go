package europepmc

import (
	"strconv"
	"time"
)

// SearchResponse ist die Antwort des Search-Endpoints.
type SearchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article ist ein Treffer der Suche; nur die Felder zur Auflösung der DOI.
type Article struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	DOI    string `json:"doi"`
}

// CitationsResponse ist eine Seite des Citations-Endpoints.
type CitationsResponse struct {
	HitCount     int `json:"hitCount"`
	CitationList struct {
		Citation []Citation `json:"citation"`
	} `json:"citationList"`
}

// Citation ist ein zitierendes Werk.
type Citation struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	PubYear              int    `json:"pubYear"`
	FirstPublicationDate string `json:"firstPublicationDate"`
}

// createdDate wählt das genaueste verfügbare Datum.
func (c Citation) createdDate() (time.Time, bool) {
	if t := parseEuroDate(c.FirstPublicationDate); t != nil {
		return *t, true
	}
	if c.PubYear > 0 {
		if t := parseEuroDate(strconv.Itoa(c.PubYear)); t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

// Hilfsfunktion zum sicheren Parsen von Daten.
func parseEuroDate(dateStr string) *time.Time {
	layouts := []string{"2006-01-02", "2006-01", "2006"}
	for _, layout := range layouts {
		t, err := time.Parse(layout, dateStr)
		if err == nil {
			return &t
		}
	}
	return nil
}
