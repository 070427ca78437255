package submissions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

func TestDiscoverFollowsCursor(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		q := r.URL.Query()
		if r.URL.Path != "/publications" || q.Get("state") != "published" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if q.Get("published_since") != "2024-01-01T00:00:00Z" {
			t.Errorf("published_since = %q", q.Get("published_since"))
		}
		var p Page
		switch q.Get("cursor") {
		case "":
			p = Page{
				Items: []providers.SubmissionRecord{
					{SubmissionID: "a", VenueExternalID: "v1", Title: "A"},
					{SubmissionID: "", VenueExternalID: "v1"},
				},
				Next: "c2",
			}
		case "c2":
			p = Page{Items: []providers.SubmissionRecord{{SubmissionID: "b", VenueExternalID: "v2"}}}
		default:
			t.Errorf("unexpected cursor %q", q.Get("cursor"))
		}
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", srv.Client(), zap.NewNop())
	recs, err := c.Discover(context.Background(), &since)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].SubmissionID != "a" || recs[1].SubmissionID != "b" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestDiscoverStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", srv.Client(), zap.NewNop()).Discover(context.Background(), nil)
	fe, ok := err.(*providers.FetchError)
	if !ok || fe.StatusCode != http.StatusUnauthorized || fe.Temporary() {
		t.Fatalf("err = %v", err)
	}
}
