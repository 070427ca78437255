package submissions

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

const maxPages = 200

// Page ist eine Seite des Publikations-Feeds.
type Page struct {
	Items []providers.SubmissionRecord `json:"items"`
	Next  string                       `json:"next"`
}

// Client liest veröffentlichte Einreichungen aus dem Submission-System.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Logger  *zap.Logger
}

// NewClient erstellt einen neuen Feed-Client.
func NewClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(60 * time.Second)
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, HTTP: httpClient, Logger: logger}
}

// Name gibt den Namen der Quelle zurück.
func (c *Client) Name() string { return "submissions" }

// Discover lädt alle Einreichungen, die seit since veröffentlicht wurden.
// Ohne since wird der komplette Bestand geliefert.
func (c *Client) Discover(ctx context.Context, since *time.Time) ([]providers.SubmissionRecord, error) {
	var out []providers.SubmissionRecord
	cursor := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("state", "published")
		if since != nil {
			q.Set("published_since", since.UTC().Format(time.RFC3339))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var p Page
		if err := c.get(ctx, c.BaseURL+"/publications?"+q.Encode(), &p); err != nil {
			return out, err
		}
		for _, rec := range p.Items {
			if rec.SubmissionID == "" || rec.VenueExternalID == "" {
				c.Logger.Warn("Unvollständige Einreichung übersprungen", zap.String("submission_id", rec.SubmissionID))
				continue
			}
			out = append(out, rec)
		}
		if p.Next == "" {
			break
		}
		cursor = p.Next
	}
	c.Logger.Info("Einreichungen geladen", zap.Int("count", len(out)))
	return out, nil
}

func (c *Client) get(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &providers.FetchError{Source: c.Name(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &providers.FetchError{Source: c.Name(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &providers.FetchError{Source: c.Name(), StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &providers.FetchError{Source: c.Name(), Err: fmt.Errorf("decode page: %w", err)}
	}
	return nil
}
