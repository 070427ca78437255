package scoring

import (
	"fmt"
	"strings"
	"time"
)

// Frequency ist die Kadenz der Snapshot-Stichtage.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// ParseFrequency akzeptiert weekly, monthly und quarterly (Groß-/Kleinschreibung egal).
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Weekly, Monthly, Quarterly:
		return f, nil
	case "":
		return Weekly, nil
	default:
		return "", fmt.Errorf("unknown snapshot frequency %q", s)
	}
}

// CronSpec liefert den Cron-Ausdruck der nächsten Kalendergrenze in UTC.
func (f Frequency) CronSpec() string {
	switch f {
	case Monthly:
		return "0 0 1 * *"
	case Quarterly:
		return "0 0 1 1,4,7,10 *"
	default:
		return "0 0 * * 1"
	}
}

// Midnight normalisiert t auf 00:00 UTC desselben Tages.
func Midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// floorBoundary liefert die letzte Grenze <= t.
func floorBoundary(t time.Time, f Frequency) time.Time {
	d := Midnight(t)
	switch f {
	case Monthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Quarterly:
		q := (int(d.Month())-1)/3*3 + 1
		return time.Date(d.Year(), time.Month(q), 1, 0, 0, 0, 0, time.UTC)
	default:
		back := (int(d.Weekday()) + 6) % 7 // Montag = 0
		return d.AddDate(0, 0, -back)
	}
}

func step(t time.Time, f Frequency) time.Time {
	switch f {
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Quarterly:
		return t.AddDate(0, 3, 0)
	default:
		return t.AddDate(0, 0, 7)
	}
}

// NextBoundary liefert die erste Kalendergrenze strikt nach t: nächster
// Montag, Monatserster oder Quartalserster, jeweils 00:00 UTC.
func NextBoundary(t time.Time, f Frequency) time.Time {
	return step(floorBoundary(t, f), f)
}

// CeilBoundary liefert t selbst, wenn t exakt auf einer Grenze liegt, sonst NextBoundary.
func CeilBoundary(t time.Time, f Frequency) time.Time {
	b := floorBoundary(t, f)
	if b.Equal(t.UTC()) {
		return b
	}
	return step(b, f)
}

// DateSequence zählt alle Grenzen im Intervall [from, to] aufsteigend auf.
func DateSequence(from, to time.Time, f Frequency) []time.Time {
	var out []time.Time
	for d := CeilBoundary(from, f); !d.After(to); d = step(d, f) {
		out = append(out, d)
	}
	return out
}

// DateKey ist der Map-Schlüssel für einen Stichtag.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
