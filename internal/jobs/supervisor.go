package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/dispatcher"
	"github.com/corpusforge/phase-orchestrator/internal/events"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
	"github.com/corpusforge/phase-orchestrator/internal/store/model"
	"github.com/corpusforge/phase-orchestrator/internal/watcher"
	"github.com/corpusforge/phase-orchestrator/pkg/metrics"
)

// supervise drives a job from spawning to a terminal state. It is the only
// writer of the job's lifecycle; Stop interrupts it through ctx.
func (m *Manager) supervise(ctx context.Context, job *Job) {
	logger := zap.S().Named("supervisor").With("job_id", job.ID, "course_id", job.CourseID, "phase", job.Phase)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("supervisor panicked", "panic", r)
			m.fail(ctx, job, ReasonInternal, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	// stopped before the supervisor got scheduled
	if job.State().Terminal() {
		return
	}

	for {
		res, ok := m.spawnAndWatch(ctx, job)
		if !ok {
			break
		}
		if !m.merge(ctx, job, res.Channels) {
			break
		}
		if !m.deduplicate(ctx, job) {
			break
		}
		if again := m.checkConflicts(ctx, job); !again {
			break
		}
	}

	if ctx.Err() != nil {
		logger.Infow("supervisor stopped")
	}
}

// spawnAndWatch dispatches the current cycle and waits for its channels,
// retrying missing segments. It returns false when the job cannot go on.
func (m *Manager) spawnAndWatch(ctx context.Context, job *Job) (watcher.Result, bool) {
	job.lock.Lock()
	cycle := job.cycle
	plan := job.cyclePlan
	avoid := job.avoid
	known := job.corpus.Authoritative()
	var expected []string
	for _, seg := range plan.Segments {
		expected = append(expected, dispatcher.ExpectedChannels(job.CourseID, job.Phase, cycle, seg)...)
	}
	job.expected = expected
	job.cycleStartedAt = m.now()
	job.lock.Unlock()

	for _, seg := range plan.Segments {
		if !m.dispatch(ctx, job, cycle, seg, known, avoid, nil) {
			return watcher.Result{}, false
		}
	}
	if err := m.transition(ctx, job, StateWatching); err != nil {
		return watcher.Result{}, false
	}

	prefix := channels.Prefix(job.CourseID, job.Phase, cycle)
	var seen []channels.Channel
	strays := map[string]struct{}{}
	for attempt := 0; ; attempt++ {
		job.addMilestone(MilestoneWatcherStarted, prefix, m.now())
		w := watcher.New(m.channels, prefix, expected,
			watcher.WithPhase(job.Phase),
			watcher.WithInterval(m.opts.PollInterval),
			watcher.WithTimeout(m.opts.WatcherTimeout),
			watcher.WithSeen(seen),
			watcher.WithOnDetected(func(ch channels.Channel) {
				job.addChannel(ch)
				job.addMilestone(MilestoneChannelDetected, ch.Name, ch.DetectedAt)
			}),
			watcher.WithOnUnexpected(func(name string) {
				if _, ok := strays[name]; ok {
					return
				}
				strays[name] = struct{}{}
				job.addWarning(fmt.Sprintf("unexpected object %s ignored", name))
			}),
		)
		res, err := w.Run(ctx)
		if err != nil {
			return res, false
		}
		if res.Complete {
			return res, true
		}

		if attempt >= m.opts.MaxRetries {
			m.fail(ctx, job, ReasonChannelsMissing,
				fmt.Sprintf("%d channels still missing after %d retries", len(res.Missing), m.opts.MaxRetries),
				res.MissingSegments)
			return res, false
		}
		seen = res.Channels

		if err := wait(ctx, m.opts.RetryDelay); err != nil {
			return res, false
		}
		if err := m.transition(ctx, job, StateSpawning); err != nil {
			return res, false
		}
		missing := missingAgents(res.Missing)
		job.lock.Lock()
		for seg := range missing {
			job.retries[seg]++
		}
		job.lock.Unlock()
		job.addMilestone(MilestoneRetry, fmt.Sprintf("attempt %d for segments %v", attempt+1, res.MissingSegments), m.now())

		for _, segNumber := range res.MissingSegments {
			seg, ok := plan.Segment(segNumber)
			if !ok {
				continue
			}
			if !m.dispatch(ctx, job, cycle, seg, known, avoid, missing[segNumber]) {
				return res, false
			}
		}
		if err := m.transition(ctx, job, StateWatching); err != nil {
			return res, false
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, job *Job, cycle int, seg segmentation.Segment, known []corpus.Unit, avoid []corpus.Avoidance, agents []int) bool {
	handles, warnings, err := m.dispatcher.Dispatch(ctx, dispatcher.DispatchRequest{
		CourseID: job.CourseID,
		Phase:    job.Phase,
		Cycle:    cycle,
		Segment:  seg,
		Params:   job.Params,
		Known:    known,
		Avoid:    avoid,
		Agents:   agents,
	})
	for _, h := range handles {
		job.addMilestone(MilestoneWorkerSpawned, h.Task.Channel, h.SpawnedAt)
	}
	for _, w := range warnings {
		job.addWarning(w.Message)
	}
	return err == nil
}

// merge reads every channel of the cycle. A channel that cannot be read or
// decoded is skipped with a warning and never partially merged.
func (m *Manager) merge(ctx context.Context, job *Job, chs []channels.Channel) bool {
	if err := m.transition(ctx, job, StateMerging); err != nil {
		return false
	}
	job.addMilestone(MilestoneMergeStarted, fmt.Sprintf("%d channels", len(chs)), m.now())

	var total corpus.MergeResult
	for _, ch := range chs {
		data, err := m.channels.Read(ctx, ch.Name)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			job.addWarning(fmt.Sprintf("channel %s unreadable: %s", ch.Name, err))
			continue
		}
		fragment, err := corpus.DecodeFragment(data)
		if err != nil {
			job.addWarning(fmt.Sprintf("channel %s malformed: %s", ch.Name, err))
			continue
		}

		job.lock.Lock()
		res := job.corpus.Merge(fragment.Units)
		for i := range job.channels {
			if job.channels[i].Name == ch.Name {
				job.channels[i].Merged = true
			}
		}
		job.lock.Unlock()

		total.Added += res.Added
		total.Updated += res.Updated
		total.Unchanged += res.Unchanged
	}

	job.addMilestone(MilestoneMergeDone, fmt.Sprintf("added %d, updated %d, unchanged %d",
		total.Added, total.Updated, total.Unchanged), m.now())
	return true
}

func (m *Manager) deduplicate(ctx context.Context, job *Job) bool {
	if err := m.transition(ctx, job, StateDeduplicating); err != nil {
		return false
	}
	job.addMilestone(MilestoneDedupStarted, "", m.now())

	job.lock.Lock()
	job.corpus = corpus.Deduplicate(job.corpus)
	units := job.corpus.Units()
	keys := len(job.corpus.Authoritative())
	job.lock.Unlock()

	if err := m.store.Corpus().Replace(ctx, job.CourseID, job.Phase, model.NewCorpusUnits(job.CourseID, job.Phase, units)); err != nil {
		if ctx.Err() == nil {
			m.fail(ctx, job, ReasonInternal, fmt.Sprintf("failed to persist corpus: %s", err), nil)
		}
		return false
	}
	job.addMilestone(MilestoneDedupDone, fmt.Sprintf("%d units, %d keys", len(units), keys), m.now())
	return true
}

// checkConflicts completes the job when the corpus is clean. Otherwise it
// prepares the next re-extraction cycle and returns true.
func (m *Manager) checkConflicts(ctx context.Context, job *Job) bool {
	if err := m.transition(ctx, job, StateCheckingConflicts); err != nil {
		return false
	}

	job.lock.Lock()
	manifest := corpus.DetectConflicts(job.corpus, m.opts.ConflictWindow)
	manifest.Cycle = job.cycle
	job.lock.Unlock()

	metrics.IncreaseCollisions(job.Phase, len(manifest.Collisions))
	job.addMilestone(MilestoneConflictsChecked, fmt.Sprintf("%d collisions, %d affected units",
		len(manifest.Collisions), len(manifest.AffectedUnits)), m.now())

	if manifest.Clean() {
		if err := m.store.Manifest().Delete(ctx, job.CourseID, job.Phase); err != nil {
			zap.S().Named("supervisor").Warnw("failed to delete resolved manifest", "job_id", job.ID, "error", err)
		}
		m.complete(ctx, job)
		return false
	}

	if manifest.Cycle >= m.opts.MaxCycles {
		job.lock.Lock()
		job.manifest = &manifest
		job.lock.Unlock()
		if err := m.saveManifest(ctx, job, manifest, model.ManifestStatusCycleExceeded); err != nil {
			zap.S().Named("supervisor").Errorw("failed to persist collision manifest", "job_id", job.ID, "error", err)
		}
		m.fail(ctx, job, ReasonCycleLimitExceeded,
			fmt.Sprintf("%s: %d collisions left after %d cycles", ReasonCycleLimitExceeded, len(manifest.Collisions), manifest.Cycle),
			nil)
		return false
	}

	plan, err := segmentation.Subset(manifest.AffectedUnits)
	if err != nil {
		m.fail(ctx, job, ReasonInternal, fmt.Sprintf("failed to plan re-extraction: %s", err), nil)
		return false
	}

	// the open manifest and the discarded units are written together so a
	// stored manifest always matches the stored corpus
	err = m.store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := m.saveManifest(ctx, job, manifest, model.ManifestStatusOpen); err != nil {
			return err
		}
		return m.store.Corpus().DeleteUnits(ctx, job.CourseID, job.Phase, manifest.AffectedUnits)
	})
	if err != nil {
		if ctx.Err() == nil {
			m.fail(ctx, job, ReasonInternal, fmt.Sprintf("failed to persist re-extraction cycle: %s", err), nil)
		}
		return false
	}

	job.lock.Lock()
	job.manifest = &manifest
	job.corpus.RemoveUnits(manifest.AffectedUnits)
	job.cycle++
	job.cyclePlan = plan
	job.avoid = manifest.Avoidances()
	job.lock.Unlock()

	metrics.IncreaseCyclesTotal(job.Phase)

	return m.transition(ctx, job, StateSpawning) == nil
}

func (m *Manager) saveManifest(ctx context.Context, job *Job, manifest corpus.CollisionManifest, status string) error {
	return m.store.Manifest().Save(ctx, model.CollisionManifest{
		CourseID: job.CourseID,
		Phase:    job.Phase,
		Cycle:    manifest.Cycle,
		Status:   status,
		Document: model.MakeJSONField(manifest),
	})
}

func (m *Manager) complete(ctx context.Context, job *Job) {
	job.lock.Lock()
	job.manifest = nil
	cycles := job.cycle
	units := job.corpus.Len()
	keys := len(job.corpus.Authoritative())
	job.lock.Unlock()

	job.addMilestone(MilestoneCompleted, "", m.now())
	if err := m.transition(ctx, job, StateComplete); err != nil {
		return
	}
	m.registry.RemoveJob(job)

	m.emit(ctx, events.PhaseCompletedKind, events.PhaseCompletedEvent{
		JobID:       job.ID.String(),
		CourseID:    job.CourseID,
		Phase:       job.Phase,
		Cycles:      cycles,
		Units:       units,
		Keys:        keys,
		CompletedAt: m.now(),
	})
	zap.S().Named("supervisor").Infow("phase complete", "job_id", job.ID, "course_id", job.CourseID,
		"phase", job.Phase, "cycles", cycles, "units", units)
}

func (m *Manager) fail(ctx context.Context, job *Job, reason, message string, missing []int) {
	job.lock.Lock()
	job.err = message
	job.missingSegments = missing
	job.lock.Unlock()

	job.addMilestone(MilestoneFailed, reason, m.now())
	if err := m.transition(ctx, job, StateFailed); err != nil {
		return
	}
	m.registry.RemoveJob(job)

	m.emit(ctx, events.PhaseFailedKind, events.PhaseFailedEvent{
		JobID:           job.ID.String(),
		CourseID:        job.CourseID,
		Phase:           job.Phase,
		Reason:          reason,
		MissingSegments: missing,
		FailedAt:        m.now(),
	})
	zap.S().Named("supervisor").Warnw("phase failed", "job_id", job.ID, "course_id", job.CourseID,
		"phase", job.Phase, "reason", reason, "error", message)
}

// missingAgents groups missing channel names by segment.
func missingAgents(names []string) map[int][]int {
	out := map[int][]int{}
	for _, name := range names {
		a, ok := channels.Parse(name)
		if !ok {
			continue
		}
		out[a.Segment] = append(out[a.Segment], a.Agent)
	}
	for seg := range out {
		sort.Ints(out[seg])
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
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
