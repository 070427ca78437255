package scoring

import (
	"math"
	"time"
)

// VolumeTier gewährt einen Bonus, wenn ein Topic mehr als MinCount Publikationen hat.
type VolumeTier struct {
	MinCount   int
	Multiplier float64
}

// Weights sind die Gewichtungskonstanten der Rollups. Sie sind Stellschrauben,
// keine abgeleiteten Größen.
type Weights struct {
	// Topic-Rollup
	TopicRecentYears  int
	TopicRecentWeight float64
	TopicOldWeight    float64
	QualityThreshold  float64
	QualityHighWeight float64
	QualityLowWeight  float64
	VolumeTiers       []VolumeTier // absteigend nach MinCount

	// Autoren-Rollup
	RampFloor          float64
	RampMonths         float64
	PeakMonths         float64
	DecayHalfLifeYears float64
	OverallFloor       float64
	TopicFloor         float64
	CitationBoost      float64
	CitationsPerYear   float64
}

// DefaultWeights liefert die produktiven Konstanten. OverallFloor (0.1) und
// TopicFloor (0.2) weichen voneinander ab.
func DefaultWeights() Weights {
	return Weights{
		TopicRecentYears:  2,
		TopicRecentWeight: 1.5,
		TopicOldWeight:    0.2,
		QualityThreshold:  5.0,
		QualityHighWeight: 2.0,
		QualityLowWeight:  0.5,
		VolumeTiers: []VolumeTier{
			{MinCount: 100, Multiplier: 1.5},
			{MinCount: 50, Multiplier: 1.3},
			{MinCount: 10, Multiplier: 1.1},
		},

		RampFloor:          0.2,
		RampMonths:         24,
		PeakMonths:         36,
		DecayHalfLifeYears: 5,
		OverallFloor:       0.1,
		TopicFloor:         0.2,
		CitationBoost:      0.3,
		CitationsPerYear:   2,
	}
}

const (
	daysPerYear  = 365.2425
	daysPerMonth = daysPerYear / 12
)

// RollupRow ist eine Publikation mit ihrem Snapshot-Wert am Stichtag.
type RollupRow struct {
	PublicationID uint
	Score         float64
	Published     time.Time
	Citations     int
	Topics        []uint
	Authors       []uint
}

// ResearcherTopic ist der Schlüssel der Autor-pro-Topic-Rollups.
type ResearcherTopic struct {
	ResearcherID uint
	TopicID      uint
}

// VolumeBonus liefert den Multiplikator für n Publikationen; die Schwellen
// sind exklusiv (genau 100 bekommt noch nicht den >100-Bonus).
func (w Weights) VolumeBonus(n int) float64 {
	for _, t := range w.VolumeTiers {
		if n > t.MinCount {
			return t.Multiplier
		}
	}
	return 1.0
}

// TopicWeight kombiniert Aktualität und Qualität einer Publikation.
func (w Weights) TopicWeight(score float64, published, d time.Time) float64 {
	recency := w.TopicOldWeight
	if !published.AddDate(w.TopicRecentYears, 0, 0).Before(d) {
		recency = w.TopicRecentWeight
	}
	quality := w.QualityLowWeight
	if score >= w.QualityThreshold {
		quality = w.QualityHighWeight
	}
	return recency * quality
}

// ResearcherWeight ist die dreiphasige Gewichtskurve über das Alter der
// Publikation (Reifung, Plateau, Decay) plus Zitier-Performance, max. 1.0.
func (w Weights) ResearcherWeight(published, d time.Time, citations int, floor float64) float64 {
	ageDays := float64(elapsedDays(published, d))
	months := ageDays / daysPerMonth

	var weight float64
	switch {
	case months < w.RampMonths:
		weight = w.RampFloor + (1-w.RampFloor)*months/w.RampMonths
	case months <= w.PeakMonths:
		weight = 1.0
	default:
		weight = math.Pow(0.5, (months-w.PeakMonths)/(w.DecayHalfLifeYears*12))
		if weight < floor {
			weight = floor
		}
	}

	years := math.Max(ageDays/daysPerYear, 1.0/12)
	perf := math.Min(1, float64(citations)/(years*w.CitationsPerYear))
	return math.Min(1, weight+perf*w.CitationBoost)
}

type accumulator struct {
	sumW, sumWS float64
	n           int
}

func (a *accumulator) add(weight, score float64) {
	a.sumW += weight
	a.sumWS += weight * score
	a.n++
}

func (a accumulator) mean() float64 {
	if a.sumW == 0 {
		return 0
	}
	return a.sumWS / a.sumW
}

// TopicRollup berechnet den gewichteten Mittelwert je Topic inkl.
// Volumenbonus. Topics ohne Publikationen fehlen im Ergebnis.
func TopicRollup(rows []RollupRow, d time.Time, w Weights) map[uint]float64 {
	acc := make(map[uint]*accumulator)
	for _, r := range rows {
		weight := w.TopicWeight(r.Score, r.Published, d)
		for _, t := range r.Topics {
			a := acc[t]
			if a == nil {
				a = &accumulator{}
				acc[t] = a
			}
			a.add(weight, r.Score)
		}
	}
	out := make(map[uint]float64, len(acc))
	for t, a := range acc {
		out[t] = Round3(a.mean() * w.VolumeBonus(a.n))
	}
	return out
}

// ResearcherRollup berechnet den Gesamt-Score je Autor (Floor OverallFloor)
// und je Autor und Topic (Floor TopicFloor).
func ResearcherRollup(rows []RollupRow, d time.Time, w Weights) (map[uint]float64, map[ResearcherTopic]float64) {
	overall := make(map[uint]*accumulator)
	perTopic := make(map[ResearcherTopic]*accumulator)
	for _, r := range rows {
		wo := w.ResearcherWeight(r.Published, d, r.Citations, w.OverallFloor)
		wt := w.ResearcherWeight(r.Published, d, r.Citations, w.TopicFloor)
		for _, a := range r.Authors {
			if overall[a] == nil {
				overall[a] = &accumulator{}
			}
			overall[a].add(wo, r.Score)
			for _, t := range r.Topics {
				k := ResearcherTopic{ResearcherID: a, TopicID: t}
				if perTopic[k] == nil {
					perTopic[k] = &accumulator{}
				}
				perTopic[k].add(wt, r.Score)
			}
		}
	}
	outO := make(map[uint]float64, len(overall))
	for id, a := range overall {
		outO[id] = Round3(a.mean())
	}
	outT := make(map[ResearcherTopic]float64, len(perTopic))
	for k, a := range perTopic {
		outT[k] = Round3(a.mean())
	}
	return outO, outT
}
