package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

const statsTimeout = 5 * time.Second

// StatsSource reports aggregated corpus statistics.
type StatsSource interface {
	Statistics(ctx context.Context) (model.CorpusStats, error)
}

type corpusStatsCollector struct {
	source        StatsSource
	unitsByPhase  *prometheus.Desc
	jobsByState   *prometheus.Desc
	openManifests *prometheus.Desc
	completions   *prometheus.Desc
}

func newCorpusStatsCollector(s StatsSource) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_corpus_%s", phaseOrchestrator, name)
	}

	return &corpusStatsCollector{
		source: s,
		unitsByPhase: prometheus.NewDesc(
			fqName("units_total"),
			"Stored corpus units by phase.",
			[]string{phaseLabel},
			nil,
		),
		jobsByState: prometheus.NewDesc(
			fqName("job_records_total"),
			"Persisted job records by last known state.",
			[]string{stateLabel},
			nil,
		),
		openManifests: prometheus.NewDesc(
			fqName("unresolved_manifests_total"),
			"Collision manifests not yet resolved.",
			nil,
			nil,
		),
		completions: prometheus.NewDesc(
			fqName("phase_completions_total"),
			"Recorded phase completions.",
			nil,
			nil,
		),
	}
}

// RegisterStatsCollector exposes the corpus statistics of s on the default registry.
func RegisterStatsCollector(s StatsSource) error {
	return prometheus.Register(newCorpusStatsCollector(s))
}

func (c *corpusStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.unitsByPhase
	ch <- c.jobsByState
	ch <- c.openManifests
	ch <- c.completions
}

// Collect implements Collector.
func (c *corpusStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	stats, err := c.source.Statistics(ctx)
	if err != nil {
		zap.S().Named("stats_collector").Errorw("failed to collect corpus statistics", "error", err)
		return
	}

	for phase, total := range stats.UnitsByPhase {
		ch <- prometheus.MustNewConstMetric(c.unitsByPhase, prometheus.GaugeValue, float64(total), strconv.Itoa(phase))
	}
	for state, total := range stats.JobsByState {
		ch <- prometheus.MustNewConstMetric(c.jobsByState, prometheus.GaugeValue, float64(total), state)
	}
	ch <- prometheus.MustNewConstMetric(c.openManifests, prometheus.GaugeValue, float64(stats.OpenManifests))
	ch <- prometheus.MustNewConstMetric(c.completions, prometheus.GaugeValue, float64(stats.Completions))
}
