package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/config"
	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/dispatcher"
	"github.com/corpusforge/phase-orchestrator/internal/events"
	"github.com/corpusforge/phase-orchestrator/internal/jobs"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
	st "github.com/corpusforge/phase-orchestrator/internal/store"
	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

type produceFunc func(task dispatcher.Task, unit int) (key, payload string)

// channelWorker plays the external workers: every spawn immediately writes
// the fragment of its range to the task's channel.
type channelWorker struct {
	lock    sync.Mutex
	store   channels.Store
	produce produceFunc
	// skip suppresses the output of a task; the attempt counter starts at 1.
	skip     func(task dispatcher.Task, attempt int) bool
	garbage  func(task dispatcher.Task) bool
	tasks    []dispatcher.Task
	attempts map[string]int
}

func newChannelWorker(store channels.Store, produce produceFunc) *channelWorker {
	return &channelWorker{store: store, produce: produce, attempts: map[string]int{}}
}

func (w *channelWorker) Spawn(ctx context.Context, task dispatcher.Task) (string, error) {
	w.lock.Lock()
	w.tasks = append(w.tasks, task)
	w.attempts[task.Channel]++
	attempt := w.attempts[task.Channel]
	skip := w.skip != nil && w.skip(task, attempt)
	garbage := w.garbage != nil && w.garbage(task)
	w.lock.Unlock()

	if skip {
		return task.ID, nil
	}
	if garbage {
		return task.ID, w.store.Write(ctx, task.Channel, []byte(`{"units": [{"id": `))
	}

	fragment := corpus.Fragment{
		CourseID:  task.CourseID,
		Phase:     task.Phase,
		Segment:   task.Segment,
		Agent:     task.Agent,
		StartUnit: task.StartUnit,
		EndUnit:   task.EndUnit,
	}
	for u := task.StartUnit; u <= task.EndUnit; u++ {
		key, payload := w.produce(task, u)
		fragment.Units = append(fragment.Units, corpus.Unit{
			ID:         corpus.UnitID(u, 1),
			Key:        key,
			Payload:    payload,
			Provenance: corpus.Provenance{UnitIndex: u, Segment: task.Segment, Seq: 1},
			New:        true,
		})
	}
	data, err := json.Marshal(fragment)
	if err != nil {
		return "", err
	}
	return task.ID, w.store.Write(ctx, task.Channel, data)
}

func (w *channelWorker) Tasks() []dispatcher.Task {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]dispatcher.Task{}, w.tasks...)
}

func distinct(_ dispatcher.Task, unit int) (string, string) {
	return fmt.Sprintf("k%d", unit), fmt.Sprintf("p%d", unit)
}

// colliding makes units 3 and 7 produce different payloads for one key.
// Unless stubborn, a task told to avoid the rejected payload reuses the
// retained one.
func colliding(stubborn bool) produceFunc {
	return func(task dispatcher.Task, unit int) (string, string) {
		switch unit {
		case 3:
			return "shared", "A"
		case 7:
			if !stubborn {
				for _, a := range task.Avoid {
					if a.Key == "shared" {
						return "shared", a.Retained
					}
				}
			}
			return "shared", "B"
		}
		return distinct(task, unit)
	}
}

type recordedEvent struct {
	kind string
	v    any
}

type recordingEmitter struct {
	lock   sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(_ context.Context, kind string, v any) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, v: v})
	return nil
}

func (r *recordingEmitter) Of(kind string) []any {
	r.lock.Lock()
	defer r.lock.Unlock()
	var out []any
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e.v)
		}
	}
	return out
}

// failingDeleteStore keeps every store operation except unit deletion, which
// always fails.
type failingDeleteStore struct {
	st.Store
}

func (s failingDeleteStore) Corpus() st.Corpus {
	return failingDeleteCorpus{s.Store.Corpus()}
}

type failingDeleteCorpus struct {
	st.Corpus
}

func (failingDeleteCorpus) DeleteUnits(context.Context, string, int, []int) error {
	return errors.New("disk full")
}

var _ = Describe("job manager", Ordered, func() {
	var (
		store    st.Store
		registry *jobs.Registry
		chs      *channels.MemoryStore
		emitter  *recordingEmitter
		opts     jobs.Options
		ctx      context.Context
	)

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		store = st.NewStore(db)
		Expect(store.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		store.Close()
	})

	BeforeEach(func() {
		ctx = context.TODO()
		registry = jobs.NewRegistry()
		chs = channels.NewMemoryStore()
		emitter = &recordingEmitter{}
		opts = jobs.DefaultOptions()
		opts.PollInterval = 10 * time.Millisecond
		opts.WatcherTimeout = 300 * time.Millisecond
		opts.RetryDelay = 0
		opts.MaxRetries = 1
	})

	newManager := func(sp dispatcher.Spawner) *jobs.Manager {
		d := dispatcher.NewDispatcher(sp, dispatcher.WithStagger(0))
		return jobs.NewManager(registry, store, chs, d, emitter, opts)
	}

	stateOf := func(m *jobs.Manager, courseID string) func() jobs.State {
		return func() jobs.State {
			s, err := m.Status(ctx, courseID, 1)
			if err != nil {
				return ""
			}
			return s.State
		}
	}

	Context("start", func() {
		It("completes a clean phase in a single cycle", func() {
			worker := newChannelWorker(chs, distinct)
			m := newManager(worker)

			snapshot, err := m.Start(ctx, jobs.StartRequest{CourseID: "clean", Phase: 1, TotalUnits: 50})
			Expect(err).To(BeNil())
			Expect(snapshot.Plan.Strategy).To(Equal(segmentation.StrategyMedium))
			Expect(snapshot.Plan.AgentCount()).To(Equal(5))

			Eventually(stateOf(m, "clean"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateComplete))
			Expect(registry.Len()).To(Equal(0))

			s, err := m.Status(ctx, "clean", 1)
			Expect(err).To(BeNil())
			Expect(s.Cycle).To(Equal(0))
			Expect(s.Channels).To(HaveLen(5))
			Expect(s.Units).To(Equal(50))

			doc, err := m.Corpus(ctx, "clean", 1)
			Expect(err).To(BeNil())
			Expect(doc.Units).To(HaveLen(50))

			completed := emitter.Of(events.PhaseCompletedKind)
			Expect(completed).To(HaveLen(1))
			ev := completed[0].(events.PhaseCompletedEvent)
			Expect(ev.Units).To(Equal(50))
			Expect(ev.Keys).To(Equal(50))
			Expect(ev.Cycles).To(Equal(0))
		})

		It("heals a collision with a re-extraction cycle", func() {
			worker := newChannelWorker(chs, colliding(false))
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "heal", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "heal"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateComplete))

			s, err := m.Status(ctx, "heal", 1)
			Expect(err).To(BeNil())
			Expect(s.Cycle).To(Equal(1))
			Expect(s.Manifest).To(BeNil())
			Expect(s.CyclePlan).ToNot(BeNil())
			Expect(s.CyclePlan.Units()).To(Equal([]int{7}))

			var reextracted []dispatcher.Task
			for _, t := range worker.Tasks() {
				if t.Cycle == 1 {
					reextracted = append(reextracted, t)
				}
			}
			Expect(reextracted).To(HaveLen(1))
			Expect(reextracted[0].StartUnit).To(Equal(7))
			Expect(reextracted[0].EndUnit).To(Equal(7))
			Expect(reextracted[0].Avoid).To(HaveLen(1))
			Expect(reextracted[0].Avoid[0].Forbidden).To(Equal([]string{"B"}))

			doc, err := m.Corpus(ctx, "heal", 1)
			Expect(err).To(BeNil())
			Expect(doc.Units).To(HaveLen(10))
			for _, u := range doc.Units {
				if u.Provenance.UnitIndex == 7 {
					Expect(u.New).To(BeFalse())
					Expect(u.Ref).To(Equal(corpus.UnitID(3, 1)))
				}
			}

			_, err = store.Manifest().Get(ctx, "heal", 1)
			Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())

			completed := emitter.Of(events.PhaseCompletedKind)
			Expect(completed).To(HaveLen(1))
			Expect(completed[0].(events.PhaseCompletedEvent).Cycles).To(Equal(1))
			Expect(completed[0].(events.PhaseCompletedEvent).Keys).To(Equal(9))
		})

		It("fails once the cycle limit is reached", func() {
			opts.MaxCycles = 1
			worker := newChannelWorker(chs, colliding(true))
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "stubborn", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "stubborn"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateFailed))

			s, err := m.Status(ctx, "stubborn", 1)
			Expect(err).To(BeNil())
			Expect(s.Cycle).To(Equal(1))
			Expect(s.Error).To(ContainSubstring(jobs.ReasonCycleLimitExceeded))
			Expect(s.Manifest).ToNot(BeNil())
			Expect(s.Manifest.AffectedUnits).To(Equal([]int{7}))

			stored, err := store.Manifest().Get(ctx, "stubborn", 1)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.ManifestStatusCycleExceeded))
			Expect(stored.Cycle).To(Equal(1))

			failed := emitter.Of(events.PhaseFailedKind)
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].(events.PhaseFailedEvent).Reason).To(Equal(jobs.ReasonCycleLimitExceeded))
		})

		It("fails with the missing segments after the retries", func() {
			worker := newChannelWorker(chs, distinct)
			worker.skip = func(task dispatcher.Task, _ int) bool { return task.Segment == 2 }
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "missing", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "missing"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateFailed))

			s, err := m.Status(ctx, "missing", 1)
			Expect(err).To(BeNil())
			Expect(s.MissingSegments).To(Equal([]int{2}))
			Expect(s.Retries).To(HaveKeyWithValue(2, 1))

			var segment2 int
			for _, t := range worker.Tasks() {
				if t.Segment == 2 {
					segment2++
				}
			}
			Expect(segment2).To(Equal(4))

			failed := emitter.Of(events.PhaseFailedKind)
			Expect(failed).To(HaveLen(1))
			ev := failed[0].(events.PhaseFailedEvent)
			Expect(ev.Reason).To(Equal(jobs.ReasonChannelsMissing))
			Expect(ev.MissingSegments).To(Equal([]int{2}))
		})

		It("recovers a missing agent on retry", func() {
			worker := newChannelWorker(chs, distinct)
			worker.skip = func(task dispatcher.Task, attempt int) bool {
				return task.Segment == 2 && task.Agent == 1 && attempt == 1
			}
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "retry", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "retry"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateComplete))

			s, err := m.Status(ctx, "retry", 1)
			Expect(err).To(BeNil())
			Expect(s.Retries).To(HaveKeyWithValue(2, 1))
			Expect(s.Units).To(Equal(10))

			var retried []dispatcher.Task
			for _, t := range worker.Tasks() {
				if t.Segment == 2 && t.Agent == 1 {
					retried = append(retried, t)
				}
			}
			Expect(retried).To(HaveLen(2))
		})

		It("skips a malformed channel with a warning", func() {
			worker := newChannelWorker(chs, distinct)
			worker.garbage = func(task dispatcher.Task) bool { return task.Segment == 2 && task.Agent == 2 }
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "malformed", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "malformed"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateComplete))

			s, err := m.Status(ctx, "malformed", 1)
			Expect(err).To(BeNil())
			Expect(s.Units).To(Equal(8))
			Expect(s.Warnings).To(ContainElement(ContainSubstring("malformed")))
		})

		It("does not count stray objects as channels", func() {
			Expect(chs.Write(ctx, channels.Prefix("stray", 1, 0)+"notes.txt", []byte("scratch"))).To(Succeed())
			worker := newChannelWorker(chs, distinct)
			worker.skip = func(task dispatcher.Task, _ int) bool { return task.Segment == 2 && task.Agent == 1 }
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "stray", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "stray"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateFailed))

			s, err := m.Status(ctx, "stray", 1)
			Expect(err).To(BeNil())
			Expect(s.MissingSegments).To(Equal([]int{2}))
			Expect(s.Channels).To(HaveLen(3))
			Expect(s.Warnings).To(ContainElement(ContainSubstring("unexpected object")))
		})

		It("keeps the manifest and the corpus consistent when discarding units fails", func() {
			worker := newChannelWorker(chs, colliding(false))
			d := dispatcher.NewDispatcher(worker, dispatcher.WithStagger(0))
			m := jobs.NewManager(registry, failingDeleteStore{store}, chs, d, emitter, opts)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "torn", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "torn"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateFailed))

			s, err := m.Status(ctx, "torn", 1)
			Expect(err).To(BeNil())
			Expect(s.Error).To(ContainSubstring("disk full"))

			_, err = store.Manifest().Get(ctx, "torn", 1)
			Expect(errors.Is(err, st.ErrRecordNotFound)).To(BeTrue())

			units, err := store.Corpus().List(ctx, st.NewCorpusQueryFilter().ByCourse("torn", 1))
			Expect(err).To(BeNil())
			Expect(units).To(HaveLen(10))

			failed := emitter.Of(events.PhaseFailedKind)
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].(events.PhaseFailedEvent).Reason).To(Equal(jobs.ReasonInternal))
		})

		It("rejects an invalid unit count", func() {
			m := newManager(newChannelWorker(chs, distinct))
			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "empty", Phase: 1, TotalUnits: 0})
			var invalid *segmentation.ErrInvalidUnitCount
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(registry.Len()).To(Equal(0))
		})

		It("rejects a second job for the same course phase", func() {
			worker := newChannelWorker(chs, distinct)
			worker.skip = func(dispatcher.Task, int) bool { return true }
			opts.WatcherTimeout = time.Minute
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "busy", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())

			_, err = m.Start(ctx, jobs.StartRequest{CourseID: "busy", Phase: 1, TotalUnits: 10})
			var active *jobs.ErrJobAlreadyActive
			Expect(errors.As(err, &active)).To(BeTrue())

			_, err = m.Reextract(ctx, "busy", 1, []int{1}, nil)
			var notAllowed *jobs.ErrReextractNotAllowed
			Expect(errors.As(err, &notAllowed)).To(BeTrue())

			Expect(m.Stop(ctx, "busy", 1)).To(Succeed())
		})
	})

	Context("stop", func() {
		It("is idempotent and keeps the stopped record", func() {
			worker := newChannelWorker(chs, distinct)
			worker.skip = func(dispatcher.Task, int) bool { return true }
			opts.WatcherTimeout = time.Minute
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "stop", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			job, ok := registry.Get("stop", 1)
			Expect(ok).To(BeTrue())

			Expect(m.Stop(ctx, "stop", 1)).To(Succeed())
			Expect(m.Stop(ctx, "stop", 1)).To(Succeed())
			Eventually(job.Done(), 5*time.Second).Should(BeClosed())

			Expect(job.State()).To(Equal(jobs.StateStopped))
			Expect(stateOf(m, "stop")()).To(Equal(jobs.StateStopped))
			Expect(registry.Len()).To(Equal(0))
		})

		It("stops every job on shutdown", func() {
			worker := newChannelWorker(chs, distinct)
			worker.skip = func(dispatcher.Task, int) bool { return true }
			opts.WatcherTimeout = time.Minute
			m := newManager(worker)

			for _, course := range []string{"shutdown-a", "shutdown-b"} {
				_, err := m.Start(ctx, jobs.StartRequest{CourseID: course, Phase: 1, TotalUnits: 10})
				Expect(err).To(BeNil())
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(m.Shutdown(shutdownCtx)).To(Succeed())
			Expect(registry.Len()).To(Equal(0))
			Expect(stateOf(m, "shutdown-a")()).To(Equal(jobs.StateStopped))
		})
	})

	Context("reextract", func() {
		It("re-runs the given units over the stored corpus", func() {
			worker := newChannelWorker(chs, distinct)
			m := newManager(worker)

			_, err := m.Start(ctx, jobs.StartRequest{CourseID: "again", Phase: 1, TotalUnits: 10})
			Expect(err).To(BeNil())
			Eventually(stateOf(m, "again"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateComplete))

			snapshot, err := m.Reextract(ctx, "again", 1, []int{2, 3}, nil)
			Expect(err).To(BeNil())
			Expect(snapshot.Cycle).To(Equal(1))
			Eventually(stateOf(m, "again"), 5*time.Second, 20*time.Millisecond).Should(Equal(jobs.StateComplete))

			var cycle1 []dispatcher.Task
			for _, t := range worker.Tasks() {
				if t.Cycle == 1 {
					cycle1 = append(cycle1, t)
				}
			}
			Expect(cycle1).To(HaveLen(1))
			Expect(cycle1[0].StartUnit).To(Equal(2))
			Expect(cycle1[0].EndUnit).To(Equal(3))

			doc, err := m.Corpus(ctx, "again", 1)
			Expect(err).To(BeNil())
			Expect(doc.Units).To(HaveLen(10))
		})

		It("needs affected units", func() {
			m := newManager(newChannelWorker(chs, distinct))
			_, err := m.Reextract(ctx, "nothing", 1, nil, nil)
			var invalid *jobs.ErrInvalidRequest
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})
	})

	Context("worker output", func() {
		It("merges pushed units idempotently", func() {
			m := newManager(newChannelWorker(chs, distinct))
			units := []corpus.Unit{
				{ID: corpus.UnitID(1, 1), Key: "a", Payload: "x", Provenance: corpus.Provenance{UnitIndex: 1, Segment: 1, Seq: 1}},
				{ID: corpus.UnitID(2, 1), Key: "b", Payload: "y", Provenance: corpus.Provenance{UnitIndex: 2, Segment: 1, Seq: 1}},
			}

			res, err := m.ReportWorkerOutput(ctx, "pushed", 1, units)
			Expect(err).To(BeNil())
			Expect(res.Added).To(Equal(2))

			res, err = m.ReportWorkerOutput(ctx, "pushed", 1, units)
			Expect(err).To(BeNil())
			Expect(res.Unchanged).To(Equal(2))
			Expect(res.Changed()).To(BeFalse())

			doc, err := m.Corpus(ctx, "pushed", 1)
			Expect(err).To(BeNil())
			Expect(doc.Units).To(HaveLen(2))
		})

		It("deduplicates pushed units without an active job", func() {
			m := newManager(newChannelWorker(chs, distinct))
			first := corpus.Unit{ID: corpus.UnitID(4, 1), Key: "shared", Payload: "x",
				Provenance: corpus.Provenance{UnitIndex: 4, Segment: 1, Seq: 1}}
			later := corpus.Unit{ID: corpus.UnitID(6, 1), Key: "shared", Payload: "y",
				Provenance: corpus.Provenance{UnitIndex: 6, Segment: 1, Seq: 1}}
			earlier := corpus.Unit{ID: corpus.UnitID(2, 1), Key: "shared", Payload: "z",
				Provenance: corpus.Provenance{UnitIndex: 2, Segment: 1, Seq: 1}}

			_, err := m.ReportWorkerOutput(ctx, "offline", 1, []corpus.Unit{first})
			Expect(err).To(BeNil())
			_, err = m.ReportWorkerOutput(ctx, "offline", 1, []corpus.Unit{later})
			Expect(err).To(BeNil())

			authoritative, err := store.Corpus().List(ctx, st.NewCorpusQueryFilter().ByCourse("offline", 1).OnlyAuthoritative())
			Expect(err).To(BeNil())
			Expect(authoritative).To(HaveLen(1))
			Expect(authoritative[0].UnitID).To(Equal(first.ID))

			_, err = m.ReportWorkerOutput(ctx, "offline", 1, []corpus.Unit{earlier})
			Expect(err).To(BeNil())

			rows, err := store.Corpus().List(ctx, st.NewCorpusQueryFilter().ByCourse("offline", 1))
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(3))
			for _, r := range rows {
				if r.UnitID == earlier.ID {
					Expect(r.New).To(BeTrue())
					continue
				}
				Expect(r.New).To(BeFalse())
				Expect(r.Ref).To(Equal(earlier.ID))
				Expect(r.Payload).To(Equal("z"))
			}
		})

		It("rejects invalid units", func() {
			m := newManager(newChannelWorker(chs, distinct))
			_, err := m.ReportWorkerOutput(ctx, "pushed", 1, []corpus.Unit{{ID: "u1"}})
			var invalid *jobs.ErrInvalidRequest
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})
	})

	Context("lookups", func() {
		It("reports unknown jobs and corpora", func() {
			m := newManager(newChannelWorker(chs, distinct))

			_, err := m.Status(ctx, "ghost", 1)
			var notFound *jobs.ErrJobNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())

			_, err = m.Corpus(ctx, "ghost", 1)
			var noCorpus *jobs.ErrCorpusNotFound
			Expect(errors.As(err, &noCorpus)).To(BeTrue())

			err = m.ReportPhaseComplete(ctx, "ghost", 1, 1, jobs.SegmentComplete)
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})
})
