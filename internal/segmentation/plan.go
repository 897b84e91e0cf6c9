package segmentation

import (
	"fmt"
	"sort"
)

// Strategy tags how a plan was partitioned.
type Strategy string

const (
	StrategySmall  Strategy = "small"
	StrategyMedium Strategy = "medium"
	StrategyLarge  Strategy = "large"
	// StrategySubset is used for re-extraction plans built over an arbitrary unit set.
	StrategySubset Strategy = "subset"
)

const (
	SmallThreshold       = 20
	MediumThreshold      = 100
	LargeSegmentSize     = 100
	DefaultUnitsPerAgent = 10

	smallSegments         = 2
	smallAgentsPerSegment = 2
)

type ErrInvalidUnitCount struct {
	error
}

func NewErrInvalidUnitCount(total int) *ErrInvalidUnitCount {
	return &ErrInvalidUnitCount{fmt.Errorf("invalid unit count %d: must be at least 1", total)}
}

// Segment is a contiguous, 1-based, inclusive range of units handled by AgentCount workers.
type Segment struct {
	Number        int `json:"number"`
	StartUnit     int `json:"startUnit"`
	EndUnit       int `json:"endUnit"`
	UnitCount     int `json:"unitCount"`
	AgentCount    int `json:"agentCount"`
	UnitsPerAgent int `json:"unitsPerAgent"`
}

// AgentRange is the slice of a segment assigned to one worker.
type AgentRange struct {
	Agent     int `json:"agent"`
	StartUnit int `json:"startUnit"`
	EndUnit   int `json:"endUnit"`
}

type Plan struct {
	TotalUnits int       `json:"totalUnits"`
	Strategy   Strategy  `json:"strategy"`
	Segments   []Segment `json:"segments"`
}

// Compute partitions totalUnits according to the threshold strategy:
//
//	<= 20  : 2 segments, two workers per segment
//	21-100 : 1 segment, 10 units per worker
//	> 100  : 100-unit segments, 10 units per worker
func Compute(totalUnits int) (Plan, error) {
	if totalUnits < 1 {
		return Plan{}, NewErrInvalidUnitCount(totalUnits)
	}

	var plan Plan
	switch {
	case totalUnits <= SmallThreshold:
		plan = smallPlan(totalUnits)
	case totalUnits <= MediumThreshold:
		plan = Plan{
			TotalUnits: totalUnits,
			Strategy:   StrategyMedium,
			Segments:   []Segment{newSegment(1, 1, totalUnits, DefaultUnitsPerAgent)},
		}
	default:
		plan = Plan{TotalUnits: totalUnits, Strategy: StrategyLarge}
		for start := 1; start <= totalUnits; start += LargeSegmentSize {
			end := min(start+LargeSegmentSize-1, totalUnits)
			plan.Segments = append(plan.Segments, newSegment(len(plan.Segments)+1, start, end, DefaultUnitsPerAgent))
		}
	}

	return plan, nil
}

func smallPlan(totalUnits int) Plan {
	plan := Plan{TotalUnits: totalUnits, Strategy: StrategySmall}

	// a single unit cannot be split without producing an empty segment
	if totalUnits == 1 {
		plan.Segments = []Segment{newSegment(1, 1, 1, 1)}
		return plan
	}

	first := ceilDiv(totalUnits, smallSegments)
	bounds := [][2]int{{1, first}, {first + 1, totalUnits}}
	for i, b := range bounds {
		count := b[1] - b[0] + 1
		plan.Segments = append(plan.Segments, newSegment(i+1, b[0], b[1], ceilDiv(count, smallAgentsPerSegment)))
	}
	return plan
}

// Subset builds a re-extraction plan over an arbitrary set of unit indices.
// Each contiguous run of indices becomes its own segment (split at LargeSegmentSize).
// Duplicates and indices below 1 are ignored.
func Subset(units []int) (Plan, error) {
	sorted := make([]int, 0, len(units))
	seen := make(map[int]struct{}, len(units))
	for _, u := range units {
		if u < 1 {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		sorted = append(sorted, u)
	}
	if len(sorted) == 0 {
		return Plan{}, NewErrInvalidUnitCount(0)
	}
	sort.Ints(sorted)

	plan := Plan{TotalUnits: len(sorted), Strategy: StrategySubset}
	runStart := sorted[0]
	prev := sorted[0]
	flush := func(start, end int) {
		for s := start; s <= end; s += LargeSegmentSize {
			e := min(s+LargeSegmentSize-1, end)
			plan.Segments = append(plan.Segments, newSegment(len(plan.Segments)+1, s, e, DefaultUnitsPerAgent))
		}
	}
	for _, u := range sorted[1:] {
		if u == prev+1 {
			prev = u
			continue
		}
		flush(runStart, prev)
		runStart, prev = u, u
	}
	flush(runStart, prev)

	return plan, nil
}

func newSegment(number, start, end, unitsPerAgent int) Segment {
	count := end - start + 1
	if unitsPerAgent < 1 {
		unitsPerAgent = 1
	}
	return Segment{
		Number:        number,
		StartUnit:     start,
		EndUnit:       end,
		UnitCount:     count,
		AgentCount:    ceilDiv(count, unitsPerAgent),
		UnitsPerAgent: unitsPerAgent,
	}
}

// AgentRanges splits the segment into one unit range per worker.
func (s Segment) AgentRanges() []AgentRange {
	ranges := make([]AgentRange, 0, s.AgentCount)
	for i := 0; i < s.AgentCount; i++ {
		start := s.StartUnit + i*s.UnitsPerAgent
		end := min(start+s.UnitsPerAgent-1, s.EndUnit)
		ranges = append(ranges, AgentRange{Agent: i + 1, StartUnit: start, EndUnit: end})
	}
	return ranges
}

// Contains reports whether unit falls inside the segment.
func (s Segment) Contains(unit int) bool {
	return unit >= s.StartUnit && unit <= s.EndUnit
}

// AgentCount is the total number of workers the plan dispatches.
func (p Plan) AgentCount() int {
	n := 0
	for _, s := range p.Segments {
		n += s.AgentCount
	}
	return n
}

// Units lists every unit index covered by the plan, in order.
func (p Plan) Units() []int {
	out := make([]int, 0, p.TotalUnits)
	for _, s := range p.Segments {
		for u := s.StartUnit; u <= s.EndUnit; u++ {
			out = append(out, u)
		}
	}
	return out
}

// Segment returns the segment with the given number.
func (p Plan) Segment(number int) (Segment, bool) {
	for _, s := range p.Segments {
		if s.Number == number {
			return s, true
		}
	}
	return Segment{}, false
}

// Validate checks coverage, contiguity and agent-count invariants.
func (p Plan) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("plan has no segments")
	}
	sum := 0
	for i, s := range p.Segments {
		if s.Number != i+1 {
			return fmt.Errorf("segment %d has number %d", i+1, s.Number)
		}
		if s.UnitCount < 1 || s.UnitCount != s.EndUnit-s.StartUnit+1 {
			return fmt.Errorf("segment %d has inconsistent unit count %d", s.Number, s.UnitCount)
		}
		if s.AgentCount != ceilDiv(s.UnitCount, s.UnitsPerAgent) {
			return fmt.Errorf("segment %d has %d agents, want %d", s.Number, s.AgentCount, ceilDiv(s.UnitCount, s.UnitsPerAgent))
		}
		if i > 0 && s.StartUnit <= p.Segments[i-1].EndUnit {
			return fmt.Errorf("segment %d overlaps segment %d", s.Number, s.Number-1)
		}
		if p.Strategy != StrategySubset && i > 0 && s.StartUnit != p.Segments[i-1].EndUnit+1 {
			return fmt.Errorf("segment %d is not contiguous with segment %d", s.Number, s.Number-1)
		}
		sum += s.UnitCount
	}
	if sum != p.TotalUnits {
		return fmt.Errorf("segments cover %d units, plan declares %d", sum, p.TotalUnits)
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
