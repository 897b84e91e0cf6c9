package corpus

import (
	"fmt"
	"sort"
)

// Provenance locates the unit that introduced a piece of content. Ordering by
// provenance defines "first come" for deduplication and conflict resolution.
type Provenance struct {
	UnitIndex int `json:"unitIndex"`
	Segment   int `json:"segment"`
	Seq       int `json:"seq"`
}

// Unit is one content item produced by a worker.
//
// Produced holds the payload exactly as the worker submitted it. Payload is the
// effective value and is rewritten to the canonical payload for references.
type Unit struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Payload    string     `json:"payload"`
	Produced   string     `json:"produced,omitempty"`
	Provenance Provenance `json:"provenance"`
	New        bool       `json:"new"`
	Ref        string     `json:"ref,omitempty"`
}

// UnitID builds the provenance id of the seq-th item extracted from a unit.
func UnitID(unitIndex, seq int) string {
	return fmt.Sprintf("u%04d.%d", unitIndex, seq)
}

func (u Unit) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("unit has no id")
	}
	if u.Key == "" {
		return fmt.Errorf("unit %s has no key", u.ID)
	}
	if u.Provenance.UnitIndex < 1 {
		return fmt.Errorf("unit %s has invalid unit index %d", u.ID, u.Provenance.UnitIndex)
	}
	return nil
}

// produced returns the worker payload, falling back to Payload for units
// built before Produced was populated.
func (u Unit) produced() string {
	if u.Produced != "" {
		return u.Produced
	}
	return u.Payload
}

// sameContent ignores the dedup markers so a resubmitted unit compares equal
// to its already-deduplicated copy.
func (u Unit) sameContent(o Unit) bool {
	return u.Key == o.Key && u.produced() == o.produced() && u.Provenance == o.Provenance
}

// Less is the canonical order: unit index, segment, sequence, then id.
func Less(a, b Unit) bool {
	if a.Provenance.UnitIndex != b.Provenance.UnitIndex {
		return a.Provenance.UnitIndex < b.Provenance.UnitIndex
	}
	if a.Provenance.Segment != b.Provenance.Segment {
		return a.Provenance.Segment < b.Provenance.Segment
	}
	if a.Provenance.Seq != b.Provenance.Seq {
		return a.Provenance.Seq < b.Provenance.Seq
	}
	return a.ID < b.ID
}

func sortUnits(units []Unit) {
	sort.SliceStable(units, func(i, j int) bool { return Less(units[i], units[j]) })
}
