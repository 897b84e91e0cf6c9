package watcher_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/internal/watcher"
)

// cannedStore returns a scripted listing per call and repeats the last one.
type cannedStore struct {
	lock     sync.Mutex
	listings [][]string
	errs     []error
	calls    int
}

func (c *cannedStore) List(_ context.Context, _ string) ([]string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.listings) {
		i = len(c.listings) - 1
	}
	return c.listings[i], nil
}

func (c *cannedStore) Read(context.Context, string) ([]byte, error) { return nil, channels.ErrChannelNotFound }
func (c *cannedStore) Write(context.Context, string, []byte) error  { return nil }
func (c *cannedStore) Type() string                                  { return "canned" }

const (
	chA = "c1/phase-1/cycle-0/seg-1-agent-1-units-1-10.json"
	chB = "c1/phase-1/cycle-0/seg-1-agent-2-units-11-20.json"
	chC = "c1/phase-1/cycle-0/seg-2-agent-1-units-21-30.json"
)

var _ = Describe("watcher", func() {
	var expected []string

	BeforeEach(func() {
		expected = []string{chA, chB, chC}
	})

	It("records new channels across ticks", func() {
		store := &cannedStore{listings: [][]string{{}, {chA}, {chA, chB}, {chA, chB, chC}}}
		var detected []string
		w := watcher.New(store, channels.Prefix("c1", 1, 0), expected,
			watcher.WithOnDetected(func(ch channels.Channel) { detected = append(detected, ch.Name) }))

		Expect(w.Tick(context.TODO())).To(BeFalse())
		Expect(w.Tick(context.TODO())).To(BeFalse())
		Expect(detected).To(Equal([]string{chA}))

		Expect(w.Tick(context.TODO())).To(BeFalse())
		res := w.Result()
		Expect(res.Complete).To(BeFalse())
		Expect(res.Missing).To(Equal([]string{chC}))
		Expect(res.MissingSegments).To(Equal([]int{2}))

		Expect(w.Tick(context.TODO())).To(BeTrue())
		Expect(detected).To(Equal([]string{chA, chB, chC}))
		res = w.Result()
		Expect(res.Complete).To(BeTrue())
		Expect(res.Channels).To(HaveLen(3))
		Expect(res.Channels[2].Segment).To(Equal(2))
	})

	It("keeps polling after a failed list", func() {
		store := &cannedStore{
			listings: [][]string{nil, {chA, chB, chC}},
			errs:     []error{errors.New("connection reset")},
		}
		w := watcher.New(store, "c1/", expected)

		Expect(w.Tick(context.TODO())).To(BeFalse())
		Expect(w.Tick(context.TODO())).To(BeTrue())
		Expect(w.Result().Errors).To(Equal(1))
	})

	It("returns the partial set on timeout", func() {
		store := &cannedStore{listings: [][]string{{chA}}}
		w := watcher.New(store, "c1/", expected,
			watcher.WithInterval(5*time.Millisecond), watcher.WithTimeout(30*time.Millisecond))

		res, err := w.Run(context.TODO())
		Expect(err).To(BeNil())
		Expect(res.Complete).To(BeFalse())
		Expect(res.Missing).To(ConsistOf(chB, chC))
		Expect(res.MissingSegments).To(Equal([]int{1, 2}))
	})

	It("stops when cancelled", func() {
		store := &cannedStore{listings: [][]string{{}}}
		w := watcher.New(store, "c1/", expected, watcher.WithInterval(time.Hour))

		ctx, cancel := context.WithCancel(context.TODO())
		done := make(chan error)
		go func() {
			defer GinkgoRecover()
			_, err := w.Run(ctx)
			done <- err
		}()
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("does not report seeded channels again", func() {
		store := &cannedStore{listings: [][]string{{chA, chB, chC}}}
		var detected []string
		w := watcher.New(store, "c1/", expected,
			watcher.WithSeen([]channels.Channel{channels.NewChannel(chA, time.Now())}),
			watcher.WithOnDetected(func(ch channels.Channel) { detected = append(detected, ch.Name) }))

		Expect(w.Tick(context.TODO())).To(BeTrue())
		Expect(detected).To(Equal([]string{chB, chC}))
	})

	It("does not count stray objects toward completion", func() {
		stray := "c1/phase-1/cycle-0/notes.txt"
		misranged := "c1/phase-1/cycle-0/seg-2-agent-1-units-21-29.json"
		store := &cannedStore{listings: [][]string{{chA, chB, stray, misranged}}}
		var unexpected []string
		w := watcher.New(store, channels.Prefix("c1", 1, 0), expected,
			watcher.WithOnUnexpected(func(name string) { unexpected = append(unexpected, name) }))

		Expect(w.Tick(context.TODO())).To(BeFalse())
		Expect(w.Tick(context.TODO())).To(BeFalse())
		Expect(unexpected).To(ConsistOf(stray, misranged))

		res := w.Result()
		Expect(res.Complete).To(BeFalse())
		Expect(res.Missing).To(Equal([]string{chC}))
		Expect(res.MissingSegments).To(Equal([]int{2}))
		Expect(res.Unexpected).To(Equal([]string{stray, misranged}))
		Expect(res.Channels).To(HaveLen(2))
	})
})
