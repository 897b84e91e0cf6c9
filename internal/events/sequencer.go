package events

import (
	"context"
	"fmt"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/store"
	"github.com/corpusforge/phase-orchestrator/internal/store/model"
)

// NextPhaseStarter starts a phase of a course over totalUnits units.
type NextPhaseStarter interface {
	StartPhase(ctx context.Context, courseID string, phase int, totalUnits int) error
}

type NextPhaseStarterFunc func(ctx context.Context, courseID string, phase int, totalUnits int) error

func (f NextPhaseStarterFunc) StartPhase(ctx context.Context, courseID string, phase int, totalUnits int) error {
	return f(ctx, courseID, phase, totalUnits)
}

// PhaseSequencer consumes phase events. It records every completion and,
// when auto advance is set, starts the following phase.
type PhaseSequencer struct {
	phases  store.Phase
	starter NextPhaseStarter
	next    func(phase int) (int, bool)

	lock   sync.Mutex
	failed map[string]PhaseFailedEvent
}

type SequencerOption func(s *PhaseSequencer)

// WithAutoAdvance starts the phase returned by next after each completion.
func WithAutoAdvance(starter NextPhaseStarter, next func(phase int) (int, bool)) SequencerOption {
	return func(s *PhaseSequencer) {
		s.starter = starter
		s.next = next
	}
}

func NewPhaseSequencer(phases store.Phase, opts ...SequencerOption) *PhaseSequencer {
	s := &PhaseSequencer{
		phases: phases,
		failed: map[string]PhaseFailedEvent{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *PhaseSequencer) Write(ctx context.Context, _ string, e cloudevents.Event) error {
	switch e.Type() {
	case PhaseCompletedKind:
		var ev PhaseCompletedEvent
		if err := e.DataAs(&ev); err != nil {
			return fmt.Errorf("failed to decode %s: %w", e.Type(), err)
		}
		return s.onCompleted(ctx, ev)
	case PhaseFailedKind:
		var ev PhaseFailedEvent
		if err := e.DataAs(&ev); err != nil {
			return fmt.Errorf("failed to decode %s: %w", e.Type(), err)
		}
		s.lock.Lock()
		s.failed[failedKey(ev.CourseID, ev.Phase)] = ev
		s.lock.Unlock()
		zap.S().Named("sequencer").Warnw("phase failed", "course_id", ev.CourseID, "phase", ev.Phase, "reason", ev.Reason)
	}
	return nil
}

func (s *PhaseSequencer) onCompleted(ctx context.Context, ev PhaseCompletedEvent) error {
	logger := zap.S().Named("sequencer").With("course_id", ev.CourseID, "phase", ev.Phase)

	if _, err := s.phases.Record(ctx, model.PhaseCompletion{
		CourseID:    ev.CourseID,
		Phase:       ev.Phase,
		JobID:       ev.JobID,
		Units:       ev.Units,
		Cycles:      ev.Cycles,
		CompletedAt: ev.CompletedAt,
	}); err != nil {
		return fmt.Errorf("failed to record completion of phase %d for %s: %w", ev.Phase, ev.CourseID, err)
	}

	s.lock.Lock()
	delete(s.failed, failedKey(ev.CourseID, ev.Phase))
	s.lock.Unlock()
	logger.Infow("phase completed", "units", ev.Units, "cycles", ev.Cycles)

	if s.starter == nil {
		return nil
	}
	next, ok := s.next(ev.Phase)
	if !ok {
		return nil
	}
	if ev.Keys < 1 {
		logger.Warnw("not starting next phase over an empty corpus", "next_phase", next)
		return nil
	}
	if err := s.starter.StartPhase(ctx, ev.CourseID, next, ev.Keys); err != nil {
		return fmt.Errorf("failed to start phase %d for %s: %w", next, ev.CourseID, err)
	}
	logger.Infow("next phase started", "next_phase", next, "units", ev.Keys)
	return nil
}

// Failed returns the last failure of a course phase not followed by a completion.
func (s *PhaseSequencer) Failed(courseID string, phase int) (PhaseFailedEvent, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ev, ok := s.failed[failedKey(courseID, phase)]
	return ev, ok
}

func (s *PhaseSequencer) Close(_ context.Context) error {
	return nil
}

func failedKey(courseID string, phase int) string {
	return fmt.Sprintf("%s/%d", courseID, phase)
}
