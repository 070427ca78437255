package mock

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

func TestSourceIsDeterministic(t *testing.T) {
	ctx := context.Background()
	ref := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	a, _ := New(42, ref, 20).Discover(ctx, nil)
	b, _ := New(42, ref, 20).Discover(ctx, nil)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different corpora")
	}
	if len(a) != 20 {
		t.Fatalf("records = %d", len(a))
	}
	for _, r := range a {
		if r.DatePublished == nil || r.DatePublished.After(ref) {
			t.Fatalf("%s published %v after reference", r.SubmissionID, r.DatePublished)
		}
		if len(r.Authors) == 0 || len(r.Topics) == 0 {
			t.Fatalf("%s without authors or topics", r.SubmissionID)
		}
	}
}

func TestSourceCitationsNotBeforePublication(t *testing.T) {
	ctx := context.Background()
	ref := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	s := New(1, ref, 30)
	recs, _ := s.Discover(ctx, nil)
	for _, r := range recs {
		cites, err := s.FetchCitations(ctx, "https://doi.org/"+r.DOI)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range cites {
			if c.CreatedDate.Before(*r.DatePublished) || c.CreatedDate.After(ref) {
				t.Fatalf("%s cited at %v, published %v", r.DOI, c.CreatedDate, r.DatePublished)
			}
			if c.IsSelfCitation && !providers.SharesAuthor(authorNames(r), c.CitingAuthors) {
				t.Fatalf("%s flagged self without shared author", c.ExternalID)
			}
		}
	}
}

func TestSourceDiscoverSince(t *testing.T) {
	ctx := context.Background()
	ref := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	s := New(3, ref, 25)
	since := ref.AddDate(-1, 0, 0)
	recs, _ := s.Discover(ctx, &since)
	for _, r := range recs {
		if !r.DatePublished.After(since) {
			t.Fatalf("%s published %v, not after %v", r.SubmissionID, r.DatePublished, since)
		}
	}
}

func TestFetchCitationsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(1, time.Now(), 1).FetchCitations(ctx, "10.5555/mock.0001")
	if _, ok := err.(*providers.FetchError); !ok {
		t.Fatalf("err = %v, want *FetchError", err)
	}
}

func authorNames(r providers.SubmissionRecord) []string {
	out := make([]string, len(r.Authors))
	for i, a := range r.Authors {
		out[i] = a.Name
	}
	return out
}
