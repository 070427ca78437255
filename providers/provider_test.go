package providers

import (
	"errors"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Anna Müller":       "anna muller",
		"  Léa   Dubois ":   "lea dubois",
		"Šimek, Ida":        "simek ida",
		"O'Brien-Smith J.":  "o brien smith j",
		"":                  "",
		"Zoë Horváth (2nd)": "zoe horvath 2nd",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTopic(t *testing.T) {
	if got := NormalizeTopic("  Open   Data "); got != "open data" {
		t.Fatalf("NormalizeTopic = %q", got)
	}
}

func TestNormalizeDOI(t *testing.T) {
	tests := map[string]string{
		"https://doi.org/10.1234/ABC": "10.1234/abc",
		"doi:10.1/x":                  "10.1/x",
		" 10.5555/Mock.0001 ":         "10.5555/mock.0001",
		"https://dx.doi.org/10.9/y":   "10.9/y",
	}
	for in, want := range tests {
		if got := NormalizeDOI(in); got != want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSharesAuthor(t *testing.T) {
	authors := []string{"Anna Müller", "Jonas Weber"}
	tests := []struct {
		name   string
		citing []string
		want   bool
	}{
		{"full name with diacritics", []string{"Anna Muller"}, true},
		{"surname and initial", []string{"Weber J"}, true},
		{"different initial", []string{"Weber K"}, false},
		{"no overlap", []string{"Léa Dubois", "Paul Berg"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SharesAuthor(authors, tt.citing); got != tt.want {
				t.Fatalf("SharesAuthor(%v) = %v, want %v", tt.citing, got, tt.want)
			}
		})
	}
}

func TestFetchErrorTemporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &FetchError{Source: "x", StatusCode: tt.status, Err: errors.New("e")}
		if got := e.Temporary(); got != tt.want {
			t.Errorf("status %d: Temporary() = %v, want %v", tt.status, got, tt.want)
		}
	}

	cause := errors.New("cause")
	var err error = &FetchError{Source: "x", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("FetchError does not unwrap")
	}
}

func TestSubmissionRecordDOIPtr(t *testing.T) {
	if (SubmissionRecord{DOI: " "}).DOIPtr() != nil {
		t.Fatal("blank DOI must be nil")
	}
	if p := (SubmissionRecord{DOI: "DOI:10.1/A"}).DOIPtr(); p == nil || *p != "10.1/a" {
		t.Fatalf("DOIPtr = %v", p)
	}
}
