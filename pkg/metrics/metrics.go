package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	phaseOrchestrator = "phase_orchestrator"

	// Job metrics
	jobStateCount  = "job_state_count"
	jobCyclesTotal = "reextraction_cycles_total"

	// Channel and dispatch metrics
	channelsDetectedTotal = "channels_detected_total"
	dispatchFailuresTotal = "dispatch_failures_total"
	watcherErrorsTotal    = "watcher_errors_total"

	// Conflict metrics
	collisionsTotal = "collisions_total"

	// Labels
	phaseLabel = "phase"
	stateLabel = "state"
)

/**
* Metrics definition
**/
var jobStateCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: phaseOrchestrator,
		Name:      jobStateCount,
		Help:      "number of active jobs in each state",
	},
	[]string{phaseLabel, stateLabel},
)

var jobCyclesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: phaseOrchestrator,
		Name:      jobCyclesTotal,
		Help:      "number of re-extraction cycles started",
	},
	[]string{phaseLabel},
)

var channelsDetectedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: phaseOrchestrator,
		Name:      channelsDetectedTotal,
		Help:      "number of output channels detected by the watchers",
	},
	[]string{phaseLabel},
)

var dispatchFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: phaseOrchestrator,
		Name:      dispatchFailuresTotal,
		Help:      "number of worker spawns that failed",
	},
	[]string{phaseLabel},
)

var watcherErrorsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: phaseOrchestrator,
		Name:      watcherErrorsTotal,
		Help:      "number of failed watcher polls",
	},
	[]string{phaseLabel},
)

var collisionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: phaseOrchestrator,
		Name:      collisionsTotal,
		Help:      "number of key collisions detected",
	},
	[]string{phaseLabel},
)

func phaseLabels(phase int) prometheus.Labels {
	return prometheus.Labels{phaseLabel: strconv.Itoa(phase)}
}

// MoveJobState moves one job of the phase from one state gauge to another.
// An empty from only increments.
func MoveJobState(phase int, from, to string) {
	p := strconv.Itoa(phase)
	if from != "" {
		jobStateCountMetric.With(prometheus.Labels{phaseLabel: p, stateLabel: from}).Dec()
	}
	if to != "" {
		jobStateCountMetric.With(prometheus.Labels{phaseLabel: p, stateLabel: to}).Inc()
	}
}

func IncreaseCyclesTotal(phase int) {
	jobCyclesTotalMetric.With(phaseLabels(phase)).Inc()
}

func IncreaseChannelsDetected(phase int, count int) {
	channelsDetectedTotalMetric.With(phaseLabels(phase)).Add(float64(count))
}

func IncreaseDispatchFailures(phase int) {
	dispatchFailuresTotalMetric.With(phaseLabels(phase)).Inc()
}

func IncreaseWatcherErrors(phase int) {
	watcherErrorsTotalMetric.With(phaseLabels(phase)).Inc()
}

func IncreaseCollisions(phase int, count int) {
	collisionsTotalMetric.With(phaseLabels(phase)).Add(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobStateCountMetric)
	prometheus.MustRegister(jobCyclesTotalMetric)
	prometheus.MustRegister(channelsDetectedTotalMetric)
	prometheus.MustRegister(dispatchFailuresTotalMetric)
	prometheus.MustRegister(watcherErrorsTotalMetric)
	prometheus.MustRegister(collisionsTotalMetric)
}
