package europepmc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

const (
	// DefaultBaseURL ist die REST-Basis von Europe PMC.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"
	pageSize       = 1000
	maxPages       = 50
)

var errNotJSON = errors.New("unexpected response body")

// Fetcher implementiert providers.CitationSource für Europe PMC.
type Fetcher struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
func NewFetcher(baseURL string, client *http.Client, logger *zap.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = providers.NewHTTPClient(60 * time.Second)
	}
	return &Fetcher{BaseURL: strings.TrimRight(baseURL, "/"), Client: client, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// FetchCitations löst die DOI zu einem Europe-PMC-Eintrag auf und lädt alle
// Seiten seiner Zitierungen. Unbekannte Identifier liefern eine leere Liste.
func (f *Fetcher) FetchCitations(ctx context.Context, identifier string) ([]providers.CitationRecord, error) {
	log := f.Logger.With(zap.String("identifier", identifier))

	doi := providers.NormalizeDOI(identifier)
	if !strings.HasPrefix(doi, "10.") {
		log.Debug("Kein DOI, Europe PMC wird übersprungen.")
		return nil, nil
	}

	article, err := f.resolve(ctx, doi)
	if err != nil {
		return nil, err
	}
	if article == nil {
		log.Debug("DOI bei Europe PMC nicht gefunden.")
		return nil, nil
	}

	var out []providers.CitationRecord
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("format", "json")
		q.Set("page", fmt.Sprint(page))
		q.Set("pageSize", fmt.Sprint(pageSize))
		u := fmt.Sprintf("%s/%s/%s/citations?%s", f.BaseURL, article.Source, article.ID, q.Encode())

		var resp CitationsResponse
		if err := f.getJSON(ctx, u, identifier, &resp); err != nil {
			return nil, err
		}
		for _, c := range resp.CitationList.Citation {
			created, ok := c.createdDate()
			if !ok {
				log.Debug("Zitierung ohne Datum übersprungen", zap.String("citing", c.ID))
				continue
			}
			out = append(out, providers.CitationRecord{
				ExternalID:       fmt.Sprintf("europepmc:%s:%s:%s/%s", article.Source, article.ID, c.Source, c.ID),
				CitingIdentifier: c.Source + "/" + c.ID,
				CreatedDate:      created.UTC(),
				CitingAuthors:    splitAuthors(c.AuthorString),
			})
		}
		if len(resp.CitationList.Citation) < pageSize || page*pageSize >= resp.HitCount {
			break
		}
	}

	log.Debug("Zitierungen von Europe PMC geladen", zap.Int("count", len(out)))
	return out, nil
}

func (f *Fetcher) resolve(ctx context.Context, doi string) (*Article, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("DOI:\"%s\"", doi))
	q.Set("format", "json")
	q.Set("resultType", "lite")
	u := fmt.Sprintf("%s/search?%s", f.BaseURL, q.Encode())

	var resp SearchResponse
	if err := f.getJSON(ctx, u, doi, &resp); err != nil {
		return nil, err
	}
	for _, a := range resp.ResultList.Result {
		if a.ID != "" && a.Source != "" {
			return &a, nil
		}
	}
	return nil, nil
}

func (f *Fetcher) getJSON(ctx context.Context, u, identifier string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &providers.FetchError{Source: f.Name(), Identifier: identifier, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return &providers.FetchError{Source: f.Name(), Identifier: identifier, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &providers.FetchError{Source: f.Name(), Identifier: identifier, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &providers.FetchError{Source: f.Name(), Identifier: identifier, Err: fmt.Errorf("%w: %v", errNotJSON, err)}
	}
	return nil
}

// splitAuthors zerlegt "Smith J, Doe A." in einzelne Namen.
func splitAuthors(s string) []string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
