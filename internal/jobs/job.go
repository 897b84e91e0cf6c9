package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
)

// Milestone names.
const (
	MilestonePlanComputed     = "plan_computed"
	MilestoneWorkerSpawned    = "worker_spawned"
	MilestoneWatcherStarted   = "watcher_started"
	MilestoneChannelDetected  = "channel_detected"
	MilestoneSegmentReported  = "segment_reported"
	MilestoneMergeStarted     = "merge_started"
	MilestoneMergeDone        = "merge_done"
	MilestoneDedupStarted     = "dedup_started"
	MilestoneDedupDone        = "dedup_done"
	MilestoneConflictsChecked = "conflicts_checked"
	MilestoneRetry            = "retry"
	MilestoneCompleted        = "completed"
	MilestoneFailed           = "failed"
)

type Milestone struct {
	Name   string    `json:"name"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Job is one run of a phase for a course. Its fields are only accessed with
// the job lock held.
type Job struct {
	ID       uuid.UUID
	CourseID string
	Phase    int
	Params   map[string]any

	lock            sync.Mutex
	state           State
	startedAt       time.Time
	cycleStartedAt  time.Time
	plan            segmentation.Plan
	cyclePlan       segmentation.Plan
	expected        []string
	channels        []channels.Channel
	err             string
	warnings        []string
	milestones      []Milestone
	cycle           int
	retries         map[int]int
	missingSegments []int
	manifest        *corpus.CollisionManifest
	avoid           []corpus.Avoidance
	corpus          *corpus.Corpus

	cancel context.CancelFunc
	done   chan struct{}

	// persistLock orders snapshot writes so the newest state is saved last.
	persistLock sync.Mutex
}

func newJob(courseID string, phase int, params map[string]any, now time.Time) *Job {
	return &Job{
		ID:        uuid.New(),
		CourseID:  courseID,
		Phase:     phase,
		Params:    params,
		state:     StatePlanning,
		startedAt: now,
		retries:   map[int]int{},
		corpus:    corpus.New(),
		done:      make(chan struct{}),
	}
}

func (j *Job) State() State {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.state
}

// Done is closed when the supervisor of the job returns.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// setState applies a validated transition and returns the previous state.
func (j *Job) setState(to State) (State, error) {
	j.lock.Lock()
	defer j.lock.Unlock()

	from := j.state
	if !CanTransition(from, to) {
		return from, NewErrInvalidTransition(from, to)
	}
	j.state = to
	return from, nil
}

func (j *Job) addMilestone(name, detail string, now time.Time) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.milestones = append(j.milestones, Milestone{Name: name, At: now, Detail: detail})
}

func (j *Job) addWarning(w string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.warnings = append(j.warnings, w)
}

func (j *Job) addChannel(ch channels.Channel) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.channels = append(j.channels, ch)
}

// Velocity estimates the arrival rate of the current cycle's channels.
type Velocity struct {
	Observed    int       `json:"observed"`
	Expected    int       `json:"expected"`
	AvgInterval string    `json:"avgInterval"`
	ETA         time.Time `json:"eta"`
}

// Snapshot is a copy of the job state.
type Snapshot struct {
	ID              string                    `json:"id"`
	CourseID        string                    `json:"courseId"`
	Phase           int                       `json:"phase"`
	State           State                     `json:"state"`
	StartedAt       time.Time                 `json:"startedAt"`
	Elapsed         string                    `json:"elapsed"`
	Plan            segmentation.Plan         `json:"segmentation"`
	CyclePlan       *segmentation.Plan        `json:"cyclePlan,omitempty"`
	Milestones      []Milestone               `json:"milestones"`
	Warnings        []string                  `json:"warnings"`
	Error           string                    `json:"error,omitempty"`
	Cycle           int                       `json:"cycle"`
	Retries         map[int]int               `json:"retries,omitempty"`
	Channels        []channels.Channel        `json:"channels"`
	MissingSegments []int                     `json:"missingSegments,omitempty"`
	Manifest        *corpus.CollisionManifest `json:"manifest,omitempty"`
	Velocity        *Velocity                 `json:"velocity,omitempty"`
	Units           int                       `json:"units"`
}

func (j *Job) Snapshot(now time.Time) Snapshot {
	j.lock.Lock()
	defer j.lock.Unlock()

	s := Snapshot{
		ID:              j.ID.String(),
		CourseID:        j.CourseID,
		Phase:           j.Phase,
		State:           j.state,
		StartedAt:       j.startedAt,
		Elapsed:         now.Sub(j.startedAt).Round(time.Second).String(),
		Plan:            j.plan,
		Milestones:      append([]Milestone{}, j.milestones...),
		Warnings:        append([]string{}, j.warnings...),
		Error:           j.err,
		Cycle:           j.cycle,
		Channels:        append([]channels.Channel{}, j.channels...),
		MissingSegments: append([]int(nil), j.missingSegments...),
		Manifest:        j.manifest,
		Units:           j.corpus.Len(),
	}
	if j.cycle > 0 {
		cp := j.cyclePlan
		s.CyclePlan = &cp
	}
	if len(j.retries) > 0 {
		s.Retries = make(map[int]int, len(j.retries))
		for k, v := range j.retries {
			s.Retries[k] = v
		}
	}
	s.Velocity = j.velocity(now)
	return s
}

// velocity averages the inter-arrival time of the channels of the current
// cycle, measured from the cycle start, and extrapolates the remaining ones.
func (j *Job) velocity(now time.Time) *Velocity {
	var times []time.Time
	for _, ch := range j.channels {
		if !ch.DetectedAt.Before(j.cycleStartedAt) {
			times = append(times, ch.DetectedAt)
		}
	}
	if len(times) == 0 {
		return nil
	}
	sort.Slice(times, func(a, b int) bool { return times[a].Before(times[b]) })

	avg := times[len(times)-1].Sub(j.cycleStartedAt) / time.Duration(len(times))
	v := &Velocity{
		Observed:    len(times),
		Expected:    len(j.expected),
		AvgInterval: avg.Round(time.Millisecond).String(),
	}
	remaining := v.Expected - v.Observed
	if remaining < 0 {
		remaining = 0
	}
	v.ETA = now.Add(avg * time.Duration(remaining))
	return v
}
