package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"llm-finetune/core/models"
)

// JobCounter counts jobs per state
type JobCounter interface {
	CountByState() map[models.JobState]int
}

// DatasetLister lists stored datasets
type DatasetLister interface {
	List() []models.Dataset
}

// LaunchCounter reports how many jobs were launched since startup
type LaunchCounter interface {
	Launches() int64
}

var jobStates = []models.JobState{
	models.JobStatePending,
	models.JobStateRunning,
	models.JobStateSucceeded,
	models.JobStateFailed,
	models.JobStateCancelled,
}

// MetricsExporter exports job and dataset metrics for Prometheus. Values
// are read at scrape time, so nothing is cached here.
type MetricsExporter struct {
	jobs     JobCounter
	datasets DatasetLister
	launches LaunchCounter

	jobsDesc     *prometheus.Desc
	datasetsDesc *prometheus.Desc
	launchesDesc *prometheus.Desc
}

// NewMetricsExporter creates a new metrics exporter
func NewMetricsExporter(jobs JobCounter, datasets DatasetLister, launches LaunchCounter) *MetricsExporter {
	return &MetricsExporter{
		jobs:     jobs,
		datasets: datasets,
		launches: launches,
		jobsDesc: prometheus.NewDesc(
			"finetune_jobs", "Number of known training jobs by state.", []string{"state"}, nil),
		datasetsDesc: prometheus.NewDesc(
			"finetune_datasets_total", "Number of stored datasets.", nil, nil),
		launchesDesc: prometheus.NewDesc(
			"finetune_job_launches_total", "Training processes started since startup.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (me *MetricsExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- me.jobsDesc
	ch <- me.datasetsDesc
	ch <- me.launchesDesc
}

// Collect implements prometheus.Collector. Values are read on every scrape.
func (me *MetricsExporter) Collect(ch chan<- prometheus.Metric) {
	counts := me.jobs.CountByState()
	for _, state := range jobStates {
		ch <- prometheus.MustNewConstMetric(me.jobsDesc, prometheus.GaugeValue, float64(counts[state]), string(state))
	}
	ch <- prometheus.MustNewConstMetric(me.datasetsDesc, prometheus.GaugeValue, float64(len(me.datasets.List())))
	ch <- prometheus.MustNewConstMetric(me.launchesDesc, prometheus.CounterValue, float64(me.launches.Launches()))
}

// Registry returns a registry holding the exporter and the Go runtime collectors
func (me *MetricsExporter) Registry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(me); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}
