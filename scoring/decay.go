// Package scoring enthält die reinen Berechnungen des Punktesystems: den
// Decay-Lookup, h-Index, Venue-Value, Publikations-Scores und die
// gewichteten Rollups für Topics und Autoren. Das Paket macht kein I/O.
package scoring

import (
	"math"
	"time"
)

const (
	// HalfLifeDays ist die Halbwertszeit des Score-Decays (ein tropisches Jahr).
	HalfLifeDays = 365.242374
	// MaxDecayDays ist der letzte vorberechnete Tag der Lookup-Tabelle.
	MaxDecayDays = 10000
)

var decayTable = buildDecayTable()

func buildDecayTable() []float64 {
	t := make([]float64, MaxDecayDays+1)
	for d := range t {
		t[d] = math.Pow(0.5, float64(d)/HalfLifeDays)
	}
	return t
}

// LookupDecay verhält sich wie der Join gegen decay_lookups: Tage außerhalb
// von [0, MaxDecayDays] haben keinen Treffer und liefern (0, false).
func LookupDecay(days int) (float64, bool) {
	if days < 0 || days > MaxDecayDays {
		return 0, false
	}
	return decayTable[days], true
}

// DecayFactor liefert den Faktor für die auf [0, MaxDecayDays] begrenzte Anzahl Tage.
func DecayFactor(days int) float64 {
	f, _ := LookupDecay(ClampDays(days))
	return f
}

// ClampDays begrenzt days auf den Bereich der Lookup-Tabelle.
func ClampDays(days int) int {
	if days < 0 {
		return 0
	}
	if days > MaxDecayDays {
		return MaxDecayDays
	}
	return days
}

// DecayTable liefert eine Kopie der Tabelle, z.B. zum Seeden der Datenbank.
func DecayTable() []float64 {
	out := make([]float64, len(decayTable))
	copy(out, decayTable)
	return out
}

// DaysBetween zählt die vollen UTC-Kalendertage von from bis to. Negativ,
// wenn to vor from liegt.
func DaysBetween(from, to time.Time) int {
	f := Midnight(from)
	t := Midnight(to)
	return int(math.Round(t.Sub(f).Hours() / 24))
}

// elapsedDays ist DaysBetween, aber nie negativ: ein Ereignis "nach" dem
// Referenzdatum gilt als gerade eben passiert.
func elapsedDays(from, to time.Time) int {
	d := DaysBetween(from, to)
	if d < 0 {
		return 0
	}
	return d
}

// decayTerm wendet den Lookup an; ohne Treffer trägt der Term 0 bei.
func decayTerm(from, ref time.Time) float64 {
	f, ok := LookupDecay(elapsedDays(from, ref))
	if !ok {
		return 0
	}
	return f
}

// Round3 rundet auf die drei Nachkommastellen der numeric(12,3)-Spalten.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
