package europepmc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFetcher(srv.URL, srv.Client(), zap.NewNop())
}

func TestFetchCitations(t *testing.T) {
	var searched string
	f := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			searched = r.URL.Query().Get("query")
			fmt.Fprint(w, `{"hitCount":1,"resultList":{"result":[{"id":"123","source":"MED","doi":"10.1/abc"}]}}`)
		case r.URL.Path == "/MED/123/citations":
			if r.URL.Query().Get("page") != "1" {
				t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
			}
			fmt.Fprint(w, `{"hitCount":3,"citationList":{"citation":[
				{"id":"9","source":"MED","authorString":"Müller A, Weber J.","firstPublicationDate":"2023-04-05"},
				{"id":"10","source":"PMC","authorString":"Doe J","pubYear":2021},
				{"id":"11","source":"MED","authorString":"Nobody N"}
			]}}`)
		default:
			http.NotFound(w, r)
		}
	})

	recs, err := f.FetchCitations(context.Background(), "https://doi.org/10.1/ABC")
	if err != nil {
		t.Fatal(err)
	}
	if searched != `DOI:"10.1/abc"` {
		t.Errorf("search query = %q", searched)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %+v, want 2 dated citations", recs)
	}
	first := recs[0]
	if first.ExternalID != "europepmc:MED:123:MED/9" {
		t.Errorf("external id = %q", first.ExternalID)
	}
	if !first.CreatedDate.Equal(time.Date(2023, 4, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %v", first.CreatedDate)
	}
	if len(first.CitingAuthors) != 2 || first.CitingAuthors[1] != "Weber J" {
		t.Errorf("authors = %v", first.CitingAuthors)
	}
	if recs[1].CreatedDate.Year() != 2021 {
		t.Errorf("pubYear fallback = %v", recs[1].CreatedDate)
	}
}

func TestFetchCitationsSkipsNonDOI(t *testing.T) {
	f := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})
	recs, err := f.FetchCitations(context.Background(), "sub-42")
	if err != nil || recs != nil {
		t.Fatalf("recs = %v, err = %v", recs, err)
	}
}

func TestFetchCitationsUnknownDOI(t *testing.T) {
	f := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hitCount":0,"resultList":{"result":[]}}`)
	})
	recs, err := f.FetchCitations(context.Background(), "10.1/missing")
	if err != nil || len(recs) != 0 {
		t.Fatalf("recs = %v, err = %v", recs, err)
	}
}

func TestFetchCitationsStatusError(t *testing.T) {
	f := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := f.FetchCitations(context.Background(), "10.1/abc")
	var fe *providers.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != http.StatusServiceUnavailable || !fe.Temporary() {
		t.Fatalf("fetch error = %+v", fe)
	}
}

func TestFetchCitationsPaging(t *testing.T) {
	pages := 0
	f := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			fmt.Fprint(w, `{"resultList":{"result":[{"id":"1","source":"MED"}]}}`)
			return
		}
		pages++
		n := pageSize
		if pages == 2 {
			n = 5
		}
		items := make([]string, n)
		for i := range items {
			items[i] = fmt.Sprintf(`{"id":"%d-%d","source":"MED","pubYear":2020}`, pages, i)
		}
		fmt.Fprintf(w, `{"hitCount":%d,"citationList":{"citation":[%s]}}`, pageSize+5, strings.Join(items, ","))
	})
	recs, err := f.FetchCitations(context.Background(), "10.1/paged")
	if err != nil {
		t.Fatal(err)
	}
	if pages != 2 || len(recs) != pageSize+5 {
		t.Fatalf("pages = %d, records = %d", pages, len(recs))
	}
}

func TestSplitAuthors(t *testing.T) {
	got := splitAuthors(" Smith J, Doe A, .")
	if len(got) != 2 || got[0] != "Smith J" || got[1] != "Doe A" {
		t.Fatalf("splitAuthors = %v", got)
	}
	if splitAuthors("") != nil {
		t.Fatal("empty author string must be nil")
	}
}
