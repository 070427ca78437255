package services

import "github.com/prometheus/client_golang/prometheus"

var (
	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_pipeline_runs_total",
			Help: "Anzahl der Pipeline-Läufe nach Ergebnis.",
		},
		[]string{"state"},
	)
	pipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "points_pipeline_duration_seconds",
			Help:    "Dauer eines Pipeline-Laufs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
	calculationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "points_calculation_duration_seconds",
			Help:    "Dauer der Metrik-Berechnung je Strategie.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	fetchResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_citation_fetches_total",
			Help: "Citation-Fetches je Publikation nach Ergebnis.",
		},
		[]string{"result"},
	)
	citationsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_citations_inserted_total",
			Help: "Neu gespeicherte Zitierungen.",
		},
	)
	publicationsDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_publications_discovered_total",
			Help: "Neu angelegte Publikationen.",
		},
	)
	historyDates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_history_dates_total",
			Help: "Historische Stichtage nach Ergebnis.",
		},
		[]string{"result"},
	)
	snapshotRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_snapshot_rows_total",
			Help: "Geschriebene Snapshot-Zeilen je Familie.",
		},
		[]string{"family"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRuns,
		pipelineDuration,
		calculationDuration,
		fetchResults,
		citationsInserted,
		publicationsDiscovered,
		historyDates,
		snapshotRows,
	)
}
