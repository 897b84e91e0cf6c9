package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/dispatcher"
	"github.com/corpusforge/phase-orchestrator/internal/events"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
	"github.com/corpusforge/phase-orchestrator/internal/store"
	"github.com/corpusforge/phase-orchestrator/internal/store/model"
	"github.com/corpusforge/phase-orchestrator/internal/watcher"
	"github.com/corpusforge/phase-orchestrator/pkg/metrics"
)

// Segment report statuses.
const (
	SegmentComplete = "complete"
	SegmentFailed   = "failed"
)

// Emitter receives typed phase events.
type Emitter interface {
	Emit(ctx context.Context, kind string, v any) error
}

type Options struct {
	PollInterval   time.Duration
	WatcherTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	ConflictWindow int
	MaxCycles      int
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   watcher.DefaultInterval,
		WatcherTimeout: watcher.DefaultTimeout,
		MaxRetries:     2,
		RetryDelay:     30 * time.Second,
		ConflictWindow: corpus.DefaultWindow,
		MaxCycles:      5,
	}
}

type StartRequest struct {
	CourseID   string
	Phase      int
	TotalUnits int
	Params     map[string]any
}

type Manager struct {
	registry   *Registry
	store      store.Store
	channels   channels.Store
	dispatcher *dispatcher.Dispatcher
	emitter    Emitter
	opts       Options
	now        func() time.Time

	wg sync.WaitGroup
}

func NewManager(registry *Registry, st store.Store, chs channels.Store, d *dispatcher.Dispatcher, emitter Emitter, opts Options) *Manager {
	return &Manager{
		registry:   registry,
		store:      st,
		channels:   chs,
		dispatcher: d,
		emitter:    emitter,
		opts:       opts,
		now:        time.Now,
	}
}

// Start plans a new job and hands it to its supervisor. It returns as soon
// as the job is registered.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Snapshot, error) {
	if req.CourseID == "" {
		return nil, NewErrInvalidRequest("course id is required")
	}
	if req.Phase < 1 {
		return nil, NewErrInvalidRequest("invalid phase %d", req.Phase)
	}
	plan, err := segmentation.Compute(req.TotalUnits)
	if err != nil {
		return nil, err
	}

	job := newJob(req.CourseID, req.Phase, req.Params, m.now())
	job.plan = plan
	job.cyclePlan = plan
	if err := m.registry.Add(job); err != nil {
		return nil, err
	}
	metrics.MoveJobState(job.Phase, "", string(StatePlanning))
	job.addMilestone(MilestonePlanComputed, fmt.Sprintf("%s strategy, %d segments, %d agents",
		plan.Strategy, len(plan.Segments), plan.AgentCount()), m.now())

	zap.S().Named("job_manager").Infow("job started", "job_id", job.ID, "course_id", job.CourseID,
		"phase", job.Phase, "units", req.TotalUnits, "strategy", plan.Strategy)

	m.launch(ctx, job)
	snapshot := job.Snapshot(m.now())
	return &snapshot, nil
}

// Reextract starts a targeted cycle over the stored corpus of a course phase
// that has no active job. Without explicit units the stored manifest is used.
func (m *Manager) Reextract(ctx context.Context, courseID string, phase int, affected []int, manifest *corpus.CollisionManifest) (*Snapshot, error) {
	if _, active := m.registry.Get(courseID, phase); active {
		return nil, NewErrReextractNotAllowed(courseID, phase)
	}

	if manifest == nil {
		stored, err := m.store.Manifest().Get(ctx, courseID, phase)
		switch {
		case err == nil:
			manifest = &stored.Document.Data
		case !errors.Is(err, store.ErrRecordNotFound):
			return nil, err
		}
	}
	if len(affected) == 0 && manifest != nil {
		affected = manifest.AffectedUnits
	}
	if len(affected) == 0 {
		return nil, NewErrInvalidRequest("no affected units to re-extract for course %s phase %d", courseID, phase)
	}

	plan, err := segmentation.Subset(affected)
	if err != nil {
		return nil, NewErrInvalidRequest("%s", err)
	}

	units, err := m.store.Corpus().List(ctx, store.NewCorpusQueryFilter().ByCourse(courseID, phase))
	if err != nil {
		return nil, err
	}

	job := newJob(courseID, phase, nil, m.now())
	job.corpus = units.Corpus()
	job.plan = plan
	job.cyclePlan = plan
	job.cycle = 1
	if manifest != nil {
		job.cycle = manifest.Cycle + 1
		job.avoid = manifest.Avoidances()
		job.manifest = manifest
	}
	if err := m.registry.Add(job); err != nil {
		return nil, NewErrReextractNotAllowed(courseID, phase)
	}
	metrics.MoveJobState(job.Phase, "", string(StatePlanning))

	job.corpus.RemoveUnits(plan.Units())
	if err := m.store.Corpus().DeleteUnits(ctx, courseID, phase, plan.Units()); err != nil {
		m.registry.RemoveJob(job)
		metrics.MoveJobState(job.Phase, string(StatePlanning), "")
		return nil, err
	}
	job.addMilestone(MilestonePlanComputed, fmt.Sprintf("re-extraction of %d units", len(plan.Units())), m.now())
	metrics.IncreaseCyclesTotal(phase)

	zap.S().Named("job_manager").Infow("re-extraction started", "job_id", job.ID, "course_id", courseID,
		"phase", phase, "cycle", job.cycle, "units", plan.TotalUnits)

	m.launch(ctx, job)
	snapshot := job.Snapshot(m.now())
	return &snapshot, nil
}

func (m *Manager) launch(ctx context.Context, job *Job) {
	// the supervisor outlives the request that started it
	supCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job.lock.Lock()
	job.cancel = cancel
	job.lock.Unlock()

	if err := m.transition(supCtx, job, StateSpawning); err != nil {
		zap.S().Named("job_manager").Errorw("failed to enter spawning", "job_id", job.ID, "error", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()
		m.supervise(supCtx, job)
	}()
}

// Status returns the active job or, failing that, the last persisted record.
func (m *Manager) Status(ctx context.Context, courseID string, phase int) (*Snapshot, error) {
	if job, ok := m.registry.Get(courseID, phase); ok {
		s := job.Snapshot(m.now())
		return &s, nil
	}

	record, err := m.store.Job().Latest(ctx, courseID, phase)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(courseID, phase)
		}
		return nil, err
	}
	var s Snapshot
	if record.Snapshot != nil {
		if err := json.Unmarshal(record.Snapshot.Data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode job record %s: %w", record.ID, err)
		}
	}
	s.ID = record.ID.String()
	s.CourseID = record.CourseID
	s.Phase = record.Phase
	s.State = State(record.State)
	s.Cycle = record.Cycle
	s.Error = record.Error
	s.Velocity = nil
	return &s, nil
}

// Stop cancels the supervisor of the active job. Stopping an unknown job is
// not an error.
func (m *Manager) Stop(ctx context.Context, courseID string, phase int) error {
	job, ok := m.registry.Remove(courseID, phase)
	if !ok {
		return nil
	}
	job.lock.Lock()
	cancel := job.cancel
	job.lock.Unlock()
	if cancel != nil {
		cancel()
	}

	from, err := job.setState(StateStopped)
	if err != nil {
		// already terminal, the supervisor finished on its own
		return nil
	}
	metrics.MoveJobState(job.Phase, string(from), "")
	job.addMilestone(string(StateStopped), "", m.now())
	m.persist(ctx, job)
	m.emit(ctx, events.JobStateKind, events.JobStateEvent{
		JobID: job.ID.String(), CourseID: job.CourseID, Phase: job.Phase, State: string(StateStopped),
	})

	zap.S().Named("job_manager").Infow("job stopped", "job_id", job.ID, "course_id", courseID, "phase", phase)
	return nil
}

// ReportWorkerOutput merges units pushed by a worker. Identical submissions
// leave the corpus unchanged.
func (m *Manager) ReportWorkerOutput(ctx context.Context, courseID string, phase int, units []corpus.Unit) (corpus.MergeResult, error) {
	for i, u := range units {
		if err := u.Validate(); err != nil {
			return corpus.MergeResult{}, NewErrInvalidRequest("unit %d: %s", i, err)
		}
	}

	// merge upserts the units, reruns dedup and returns the rows whose
	// stored form changed, dedup markers included
	merge := func(c *corpus.Corpus) (*corpus.Corpus, []corpus.Unit, corpus.MergeResult) {
		before := c.Clone()
		var res corpus.MergeResult
		for _, u := range units {
			r := c.Upsert(u)
			res.Added += r.Added
			res.Updated += r.Updated
			res.Unchanged += r.Unchanged
		}
		if !res.Changed() {
			return c, nil, res
		}
		deduped := corpus.Deduplicate(c)
		return deduped, corpus.Changed(before, deduped), res
	}

	var (
		changed []corpus.Unit
		res     corpus.MergeResult
	)
	if job, ok := m.registry.Get(courseID, phase); ok {
		job.lock.Lock()
		job.corpus, changed, res = merge(job.corpus)
		job.lock.Unlock()
	} else {
		stored, err := m.store.Corpus().List(ctx, store.NewCorpusQueryFilter().ByCourse(courseID, phase))
		if err != nil {
			return corpus.MergeResult{}, err
		}
		_, changed, res = merge(stored.Corpus())
	}

	if len(changed) > 0 {
		if err := m.store.Corpus().Upsert(ctx, model.NewCorpusUnits(courseID, phase, changed)); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ReportPhaseComplete records a segment's own report. Channels remain the
// source of truth for completion.
func (m *Manager) ReportPhaseComplete(ctx context.Context, courseID string, phase int, segment int, status string) error {
	job, ok := m.registry.Get(courseID, phase)
	if !ok {
		return NewErrJobNotFound(courseID, phase)
	}
	job.addMilestone(MilestoneSegmentReported, fmt.Sprintf("segment %d reported %s", segment, status), m.now())
	if status == SegmentFailed {
		job.addWarning(fmt.Sprintf("segment %d reported failure", segment))
	}
	return nil
}

// Corpus returns the merged corpus of a course phase.
func (m *Manager) Corpus(ctx context.Context, courseID string, phase int) (corpus.Document, error) {
	if job, ok := m.registry.Get(courseID, phase); ok {
		job.lock.Lock()
		doc := job.corpus.Document(courseID, phase)
		job.lock.Unlock()
		return doc, nil
	}
	units, err := m.store.Corpus().List(ctx, store.NewCorpusQueryFilter().ByCourse(courseID, phase))
	if err != nil {
		return corpus.Document{}, err
	}
	if len(units) == 0 {
		return corpus.Document{}, NewErrCorpusNotFound(courseID, phase)
	}
	return units.Corpus().Document(courseID, phase), nil
}

// StartPhase lets the phase sequencer start the next phase of a course.
func (m *Manager) StartPhase(ctx context.Context, courseID string, phase int, totalUnits int) error {
	_, err := m.Start(ctx, StartRequest{CourseID: courseID, Phase: phase, TotalUnits: totalUnits})
	return err
}

// Shutdown stops every active job and waits for their supervisors.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, job := range m.registry.List() {
		if err := m.Stop(ctx, job.CourseID, job.Phase); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) transition(ctx context.Context, job *Job, to State) error {
	from, err := job.setState(to)
	if err != nil {
		return err
	}

	next := string(to)
	if to.Terminal() {
		next = ""
	}
	metrics.MoveJobState(job.Phase, string(from), next)
	job.lock.Lock()
	cycle := job.cycle
	job.lock.Unlock()

	zap.S().Named("job_manager").Debugw("job transition", "job_id", job.ID, "from", from, "to", to, "cycle", cycle)
	m.persist(ctx, job)
	m.emit(ctx, events.JobStateKind, events.JobStateEvent{
		JobID: job.ID.String(), CourseID: job.CourseID, Phase: job.Phase, State: string(to), Cycle: cycle,
	})
	return nil
}

func (m *Manager) persist(ctx context.Context, job *Job) {
	job.persistLock.Lock()
	defer job.persistLock.Unlock()

	snapshot := job.Snapshot(m.now())
	data, err := json.Marshal(snapshot)
	if err != nil {
		zap.S().Named("job_manager").Errorw("failed to encode job snapshot", "job_id", job.ID, "error", err)
		return
	}
	record := model.JobRecord{
		ID:        job.ID,
		CourseID:  job.CourseID,
		Phase:     job.Phase,
		State:     string(snapshot.State),
		Cycle:     snapshot.Cycle,
		Error:     snapshot.Error,
		Snapshot:  model.MakeJSONField(json.RawMessage(data)),
		StartedAt: snapshot.StartedAt,
	}
	// records outlive a cancelled supervisor
	if err := m.store.Job().Save(context.WithoutCancel(ctx), record); err != nil {
		zap.S().Named("job_manager").Errorw("failed to persist job record", "job_id", job.ID, "error", err)
	}
}

func (m *Manager) emit(ctx context.Context, kind string, v any) {
	if m.emitter == nil {
		return
	}
	if err := m.emitter.Emit(ctx, kind, v); err != nil {
		zap.S().Named("job_manager").Warnw("failed to emit event", "kind", kind, "error", err)
	}
}
