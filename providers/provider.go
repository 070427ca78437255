package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CitationSource liefert die eingehenden Zitierungen einer Publikation.
type CitationSource interface {
	// FetchCitations gibt alle bekannten Zitierungen für identifier (DOI
	// oder Submission-ID) zurück. Fehler sind vom Typ *FetchError.
	FetchCitations(ctx context.Context, identifier string) ([]CitationRecord, error)

	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. "europepmc").
	Name() string
}

// PublicationSource liefert neu veröffentlichte Einreichungen.
type PublicationSource interface {
	Discover(ctx context.Context, since *time.Time) ([]SubmissionRecord, error)
	Name() string
}

// CitationRecord ist eine Zitierung, wie sie die externe Quelle meldet.
type CitationRecord struct {
	ExternalID       string
	CitingIdentifier string
	CreatedDate      time.Time
	// IsSelfCitation ist gesetzt, wenn die Quelle selbst die Überschneidung kennt.
	IsSelfCitation bool
	CitingAuthors  []string
}

// AuthorRecord ist ein Autor einer Einreichung.
type AuthorRecord struct {
	ExternalID string `json:"id"`
	Name       string `json:"name"`
}

// SubmissionRecord ist eine veröffentlichte Einreichung aus dem Submission-System.
type SubmissionRecord struct {
	SubmissionID    string         `json:"submission_id"`
	DOI             string         `json:"doi"`
	Title           string         `json:"title"`
	VenueExternalID string         `json:"venue_id"`
	VenueName       string         `json:"venue_name"`
	ReviewScore     float64        `json:"review_score"`
	DatePublished   *time.Time     `json:"date_published"`
	Authors         []AuthorRecord `json:"authors"`
	Topics          []string       `json:"topics"`
}

// DOIPtr liefert die normalisierte DOI oder nil.
func (s SubmissionRecord) DOIPtr() *string {
	d := NormalizeDOI(s.DOI)
	if d == "" {
		return nil
	}
	return &d
}

// FetchError ist ein (meist vorübergehender) Fehler einer externen Quelle.
type FetchError struct {
	Source     string
	Identifier string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: fetch %s: status %d: %v", e.Source, e.Identifier, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.Identifier, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary meldet, ob ein erneuter Versuch sinnvoll ist. 4xx außer 429
// gelten als endgültig.
func (e *FetchError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// userAgentTransport fügt jeder Anfrage einen User-Agent-Header hinzu.
type userAgentTransport struct {
	Transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "compass-points/1.0 (+https://compass.dip)")
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient erstellt den HTTP-Client für alle externen Quellen.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{Transport: http.DefaultTransport},
	}
}

// NormalizeName macht Autorennamen vergleichbar: Diakritika entfernen,
// Kleinbuchstaben, Satzzeichen zu Leerzeichen, Mehrfach-Leerzeichen zusammenfassen.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// NormalizeTopic vereinheitlicht Topic-Namen (NFC, getrimmt, Kleinbuchstaben).
func NormalizeTopic(s string) string {
	out, _, err := transform.String(norm.NFC, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// NormalizeDOI entfernt Resolver-Präfixe und schreibt klein.
func NormalizeDOI(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, p := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		s = strings.TrimPrefix(s, p)
	}
	return s
}

// SharesAuthor meldet, ob beide Autorenlisten einen Autor gemeinsam haben.
// Verglichen wird der normalisierte volle Name und die Kurzform
// "nachname initial", wie sie Literaturdatenbanken liefern.
func SharesAuthor(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, 2*len(a))
	for _, n := range a {
		for _, k := range nameKeys(n) {
			seen[k] = struct{}{}
		}
	}
	for _, n := range b {
		for _, k := range nameKeys(n) {
			if _, ok := seen[k]; ok {
				return true
			}
		}
	}
	return false
}

func nameKeys(name string) []string {
	full := NormalizeName(name)
	if full == "" {
		return nil
	}
	parts := strings.Fields(full)
	if len(parts) < 2 {
		return []string{full}
	}
	first := []rune(parts[0])
	short := parts[len(parts)-1] + " " + string(first[0])
	return []string{full, short}
}
