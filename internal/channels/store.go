package channels

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	// ErrChannelExists is returned when writing a channel that was already
	// written. Channels are write-once.
	ErrChannelExists = errors.New("channel already written")
)

// Store is the shared storage workers write their output channels to.
type Store interface {
	// List returns the names of every channel under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	// Write creates the channel and fails with ErrChannelExists when it is
	// already there.
	Write(ctx context.Context, name string, data []byte) error
	Type() string
}

// Channel is an output channel observed by the watcher.
type Channel struct {
	Name       string    `json:"name"`
	DetectedAt time.Time `json:"detectedAt"`
	Segment    int       `json:"segment,omitempty"`
	Agent      int       `json:"agent,omitempty"`
	StartUnit  int       `json:"startUnit,omitempty"`
	EndUnit    int       `json:"endUnit,omitempty"`
	Merged     bool      `json:"merged"`
}

// Address identifies the channel of one agent in one cycle.
type Address struct {
	CourseID  string
	Phase     int
	Cycle     int
	Segment   int
	Agent     int
	StartUnit int
	EndUnit   int
}

var nameRe = regexp.MustCompile(`^(.+)/phase-(\d+)/cycle-(\d+)/seg-(\d+)-agent-(\d+)-units-(\d+)-(\d+)\.json$`)

func Prefix(courseID string, phase, cycle int) string {
	return fmt.Sprintf("%s/phase-%d/cycle-%d/", courseID, phase, cycle)
}

func (a Address) Name() string {
	return fmt.Sprintf("%sseg-%d-agent-%d-units-%d-%d.json",
		Prefix(a.CourseID, a.Phase, a.Cycle), a.Segment, a.Agent, a.StartUnit, a.EndUnit)
}

// Parse extracts the address from a channel name. Names that do not follow
// the convention are reported with ok == false.
func Parse(name string) (Address, bool) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return Address{}, false
	}
	n := make([]int, 0, 6)
	for _, s := range m[2:] {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Address{}, false
		}
		n = append(n, v)
	}
	return Address{
		CourseID:  m[1],
		Phase:     n[0],
		Cycle:     n[1],
		Segment:   n[2],
		Agent:     n[3],
		StartUnit: n[4],
		EndUnit:   n[5],
	}, true
}

// NewChannel builds a channel record for name detected at t.
func NewChannel(name string, t time.Time) Channel {
	ch := Channel{Name: name, DetectedAt: t}
	if a, ok := Parse(name); ok {
		ch.Segment = a.Segment
		ch.Agent = a.Agent
		ch.StartUnit = a.StartUnit
		ch.EndUnit = a.EndUnit
	}
	return ch
}
