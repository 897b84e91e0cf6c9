package events

import (
	"context"
	"encoding/json"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

type fakePhaseStore struct {
	lock    sync.Mutex
	records []model.PhaseCompletion
}

func (f *fakePhaseStore) Record(_ context.Context, c model.PhaseCompletion) (*model.PhaseCompletion, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.records = append(f.records, c)
	return &c, nil
}

func (f *fakePhaseStore) List(_ context.Context, courseID string) (model.PhaseCompletionList, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var out model.PhaseCompletionList
	for _, r := range f.records {
		if r.CourseID == courseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newEvent(kind string, v any) cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID("id")
	e.SetSource(eventSource)
	e.SetType(kind)
	data, err := json.Marshal(v)
	Expect(err).To(BeNil())
	Expect(e.SetData(*cloudevents.StringOfApplicationJSON(), data)).To(Succeed())
	return e
}

var _ = Describe("phase sequencer", func() {
	var phases *fakePhaseStore

	BeforeEach(func() {
		phases = &fakePhaseStore{}
	})

	It("records completions", func() {
		s := NewPhaseSequencer(phases)
		err := s.Write(context.TODO(), defaultTopic, newEvent(PhaseCompletedKind, PhaseCompletedEvent{CourseID: "c1", Phase: 1, Units: 30, Keys: 12}))
		Expect(err).To(BeNil())
		Expect(phases.records).To(HaveLen(1))
		Expect(phases.records[0].Units).To(Equal(30))
	})

	It("starts the next phase when auto advance is set", func() {
		var started []int
		starter := NextPhaseStarterFunc(func(_ context.Context, courseID string, phase int, total int) error {
			started = append(started, phase, total)
			return nil
		})
		next := func(phase int) (int, bool) { return phase + 1, phase < 3 }
		s := NewPhaseSequencer(phases, WithAutoAdvance(starter, next))

		Expect(s.Write(context.TODO(), defaultTopic, newEvent(PhaseCompletedKind, PhaseCompletedEvent{CourseID: "c1", Phase: 1, Keys: 12}))).To(Succeed())
		Expect(started).To(Equal([]int{2, 12}))

		Expect(s.Write(context.TODO(), defaultTopic, newEvent(PhaseCompletedKind, PhaseCompletedEvent{CourseID: "c1", Phase: 3, Keys: 5}))).To(Succeed())
		Expect(started).To(Equal([]int{2, 12}))
	})

	It("tracks failures until the phase completes", func() {
		s := NewPhaseSequencer(phases)
		Expect(s.Write(context.TODO(), defaultTopic, newEvent(PhaseFailedKind, PhaseFailedEvent{CourseID: "c1", Phase: 2, Reason: "cycle_limit_exceeded"}))).To(Succeed())

		ev, ok := s.Failed("c1", 2)
		Expect(ok).To(BeTrue())
		Expect(ev.Reason).To(Equal("cycle_limit_exceeded"))

		Expect(s.Write(context.TODO(), defaultTopic, newEvent(PhaseCompletedKind, PhaseCompletedEvent{CourseID: "c1", Phase: 2, Keys: 1}))).To(Succeed())
		_, ok = s.Failed("c1", 2)
		Expect(ok).To(BeFalse())
	})

	It("ignores other event types", func() {
		s := NewPhaseSequencer(phases)
		Expect(s.Write(context.TODO(), defaultTopic, newEvent(JobStateKind, JobStateEvent{State: "watching"}))).To(Succeed())
		Expect(phases.records).To(BeEmpty())
	})
})
