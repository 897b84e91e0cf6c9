package watcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/channels"
	"github.com/corpusforge/phase-orchestrator/pkg/metrics"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 30 * time.Minute
)

// Result is what the watcher observed when it stopped.
type Result struct {
	Complete        bool               `json:"complete"`
	Channels        []channels.Channel `json:"channels"`
	Missing         []string           `json:"missing,omitempty"`
	MissingSegments []int              `json:"missingSegments,omitempty"`
	// Unexpected lists names under the prefix that no worker of the cycle was
	// told to write. They never count toward completion.
	Unexpected []string `json:"unexpected,omitempty"`
	Errors     int      `json:"errors"`
}

// Watcher polls a channel store until every expected channel of a cycle
// has been written or the timeout expires.
type Watcher struct {
	store        channels.Store
	prefix       string
	expected     []string
	expectedSet  map[string]struct{}
	phase        int
	interval     time.Duration
	timeout      time.Duration
	onDetected   func(channels.Channel)
	onUnexpected func(name string)
	now          func() time.Time

	lock       sync.Mutex
	seen       map[string]channels.Channel
	unexpected map[string]struct{}
	errors     int
}

type Option func(w *Watcher)

func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		w.timeout = d
	}
}

// WithOnDetected registers a hook called once per newly seen channel.
func WithOnDetected(fn func(channels.Channel)) Option {
	return func(w *Watcher) {
		w.onDetected = fn
	}
}

// WithOnUnexpected registers a hook called once per name found under the
// prefix that is not an expected channel.
func WithOnUnexpected(fn func(name string)) Option {
	return func(w *Watcher) {
		w.onUnexpected = fn
	}
}

// WithSeen seeds channels observed by a previous watcher so they are not
// reported again.
func WithSeen(chs []channels.Channel) Option {
	return func(w *Watcher) {
		for _, ch := range chs {
			if _, ok := w.expectedSet[ch.Name]; ok {
				w.seen[ch.Name] = ch
			}
		}
	}
}

func WithPhase(phase int) Option {
	return func(w *Watcher) {
		w.phase = phase
	}
}

func New(store channels.Store, prefix string, expected []string, opts ...Option) *Watcher {
	w := &Watcher{
		store:       store,
		prefix:      prefix,
		expected:    expected,
		expectedSet: make(map[string]struct{}, len(expected)),
		interval:    DefaultInterval,
		timeout:     DefaultTimeout,
		now:         time.Now,
		seen:        make(map[string]channels.Channel),
		unexpected:  make(map[string]struct{}),
	}
	for _, name := range expected {
		w.expectedSet[name] = struct{}{}
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Tick polls the store once and reports whether every expected channel was seen.
// A failed poll is logged and counted, never returned.
func (w *Watcher) Tick(ctx context.Context) bool {
	names, err := w.store.List(ctx, w.prefix)
	if err != nil {
		w.lock.Lock()
		w.errors++
		w.lock.Unlock()
		metrics.IncreaseWatcherErrors(w.phase)
		zap.S().Named("watcher").Warnw("failed to list channels", "prefix", w.prefix, "error", err)
		return w.complete()
	}

	var (
		detected []channels.Channel
		strays   []string
	)
	w.lock.Lock()
	for _, name := range names {
		if _, ok := w.seen[name]; ok {
			continue
		}
		if _, ok := w.expectedSet[name]; !ok {
			if _, known := w.unexpected[name]; !known {
				w.unexpected[name] = struct{}{}
				strays = append(strays, name)
			}
			continue
		}
		ch := channels.NewChannel(name, w.now())
		w.seen[name] = ch
		detected = append(detected, ch)
	}
	w.lock.Unlock()

	if len(detected) > 0 {
		metrics.IncreaseChannelsDetected(w.phase, len(detected))
	}
	for _, name := range strays {
		zap.S().Named("watcher").Warnw("unexpected object under channel prefix", "prefix", w.prefix, "name", name)
		if w.onUnexpected != nil {
			w.onUnexpected(name)
		}
	}
	for _, ch := range detected {
		zap.S().Named("watcher").Debugw("channel detected", "name", ch.Name)
		if w.onDetected != nil {
			w.onDetected(ch)
		}
	}

	return w.complete()
}

// Run polls until complete, timed out or cancelled. On cancellation the
// partial result is returned with the context error.
func (w *Watcher) Run(ctx context.Context) (Result, error) {
	if w.Tick(ctx) {
		return w.Result(), nil
	}

	ticker := jitterbug.New(w.interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.Result(), ctx.Err()
		case <-deadline.C:
			zap.S().Named("watcher").Infow("watcher timed out", "prefix", w.prefix, "missing", len(w.Result().Missing))
			return w.Result(), nil
		case <-ticker.C:
		}

		if w.Tick(ctx) {
			return w.Result(), nil
		}
	}
}

func (w *Watcher) complete() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.completeLocked()
}

// completeLocked reports whether every expected channel has been seen.
func (w *Watcher) completeLocked() bool {
	for _, name := range w.expected {
		if _, ok := w.seen[name]; !ok {
			return false
		}
	}
	return true
}

// Result returns the current observation.
func (w *Watcher) Result() Result {
	w.lock.Lock()
	defer w.lock.Unlock()

	res := Result{
		Complete: w.completeLocked(),
		Errors:   w.errors,
		Channels: make([]channels.Channel, 0, len(w.seen)),
	}
	for _, ch := range w.seen {
		res.Channels = append(res.Channels, ch)
	}
	sort.Slice(res.Channels, func(i, j int) bool { return res.Channels[i].Name < res.Channels[j].Name })
	for name := range w.unexpected {
		res.Unexpected = append(res.Unexpected, name)
	}
	sort.Strings(res.Unexpected)

	for _, name := range w.expected {
		if _, ok := w.seen[name]; ok {
			continue
		}
		res.Missing = append(res.Missing, name)
		if a, ok := channels.Parse(name); ok && !funk.ContainsInt(res.MissingSegments, a.Segment) {
			res.MissingSegments = append(res.MissingSegments, a.Segment)
		}
	}
	sort.Ints(res.MissingSegments)
	return res
}
