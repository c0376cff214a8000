package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingestion_runs_total",
	Help: "The number of ingestion runs by mode and outcome",
}, []string{"mode", "outcome"})

var runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingestion_run_failures_total",
	Help: "The number of failed ingestion runs by error kind",
}, []string{"kind"})

var activitiesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingestion_activities_fetched_total",
	Help: "The number of activities fetched from the source API",
}, []string{"mode"})

var pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingestion_pages_fetched_total",
	Help: "The number of activity pages requested from the source API",
}, []string{"mode"})

var runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ingestion_run_duration_seconds",
	Help:    "The duration of an ingestion run",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
}, []string{"mode", "outcome"})
