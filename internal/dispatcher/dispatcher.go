package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
	"github.com/corpusforge/phase-orchestrator/pkg/metrics"
)

const DefaultStagger = 3 * time.Second

// Spawner starts one worker for a task and returns an opaque reference.
type Spawner interface {
	Spawn(ctx context.Context, task Task) (string, error)
}

type DispatchRequest struct {
	CourseID string
	Phase    int
	Cycle    int
	Segment  segmentation.Segment
	Params   map[string]any
	// Known holds the authoritative units accumulated so far. Each task gets
	// the keys introduced before its range.
	Known []corpus.Unit
	Avoid []corpus.Avoidance
	// Agents restricts the dispatch to these agent numbers. Empty means all.
	Agents []int
}

type Dispatcher struct {
	spawner Spawner
	stagger map[int]time.Duration
	def     time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(d *Dispatcher)

// WithStagger sets the delay between two spawns of the same segment.
func WithStagger(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.def = d
	}
}

// WithPhaseStagger overrides the stagger for one phase.
func WithPhaseStagger(phase int, d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.stagger[phase] = d
	}
}

func NewDispatcher(spawner Spawner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		spawner: spawner,
		stagger: map[int]time.Duration{},
		def:     DefaultStagger,
		sleep:   sleepCtx,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) Stagger(phase int) time.Duration {
	if s, ok := d.stagger[phase]; ok {
		return s
	}
	return d.def
}

// Dispatch spawns one worker per agent slot of the segment. Spawn failures
// are returned as warnings. The only error is a cancelled context.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) ([]Handle, []Warning, error) {
	logger := zap.S().Named("dispatcher").With("course_id", req.CourseID, "phase", req.Phase, "segment", req.Segment.Number)

	var (
		handles  []Handle
		warnings []Warning
		spawned  int
	)
	for _, r := range req.Segment.AgentRanges() {
		if len(req.Agents) > 0 && !funk.ContainsInt(req.Agents, r.Agent) {
			continue
		}
		if spawned > 0 {
			if err := d.sleep(ctx, d.Stagger(req.Phase)); err != nil {
				return handles, warnings, err
			}
		}
		spawned++

		task := d.buildTask(req, r)
		ref, err := d.spawner.Spawn(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return handles, warnings, ctx.Err()
			}
			metrics.IncreaseDispatchFailures(req.Phase)
			logger.Warnw("failed to spawn worker", "agent", r.Agent, "error", err)
			warnings = append(warnings, Warning{
				Segment: req.Segment.Number,
				Agent:   r.Agent,
				Message: fmt.Sprintf("failed to spawn agent %d of segment %d: %s", r.Agent, req.Segment.Number, err),
			})
			continue
		}
		logger.Debugw("worker spawned", "agent", r.Agent, "channel", task.Channel, "ref", ref)
		handles = append(handles, Handle{Task: task, Ref: ref, SpawnedAt: time.Now()})
	}

	return handles, warnings, nil
}

// ExpectedChannels lists the channel names the agents of the segment will write.
func ExpectedChannels(courseID string, phase, cycle int, seg segmentation.Segment) []string {
	names := make([]string, 0, seg.AgentCount)
	for _, r := range seg.AgentRanges() {
		names = append(names, channelAddress(courseID, phase, cycle, seg.Number, r).Name())
	}
	return names
}

func (d *Dispatcher) buildTask(req DispatchRequest, r segmentation.AgentRange) Task {
	var known []string
	for _, u := range req.Known {
		if u.Provenance.UnitIndex < r.StartUnit && u.New {
			known = append(known, u.Key)
		}
	}
	return Task{
		ID:        uuid.NewString(),
		CourseID:  req.CourseID,
		Phase:     req.Phase,
		Cycle:     req.Cycle,
		Segment:   req.Segment.Number,
		Agent:     r.Agent,
		StartUnit: r.StartUnit,
		EndUnit:   r.EndUnit,
		Channel:   channelAddress(req.CourseID, req.Phase, req.Cycle, req.Segment.Number, r).Name(),
		Context:   TaskContext{Params: req.Params, KnownKeys: known},
		Avoid:     corpus.AvoidancesFor(req.Avoid, r.StartUnit, r.EndUnit),
	}
}

func channelAddress(courseID string, phase, cycle, segment int, r segmentation.AgentRange) channels.Address {
	return channels.Address{
		CourseID:  courseID,
		Phase:     phase,
		Cycle:     cycle,
		Segment:   segment,
		Agent:     r.Agent,
		StartUnit: r.StartUnit,
		EndUnit:   r.EndUnit,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
