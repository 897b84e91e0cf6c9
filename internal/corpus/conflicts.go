package corpus

import (
	"sort"

	"github.com/thoas/go-funk"
)

// DefaultWindow is the number of leading unit indices checked for conflicts.
const DefaultWindow = 100

// Variant is one distinct payload observed for a key.
type Variant struct {
	Payload string   `json:"payload"`
	Sources []string `json:"sources"`
	Units   []int    `json:"units"`

	earliest Unit
}

// Collision records a key that was produced with more than one payload.
type Collision struct {
	Key           string    `json:"key"`
	Variants      []Variant `json:"variants"`
	Retained      Variant   `json:"retained"`
	Rejected      []Variant `json:"rejected"`
	AffectedUnits []int     `json:"affectedUnits"`
}

// Avoidance tells a worker which payloads it must not produce for a key.
type Avoidance struct {
	Key       string   `json:"key"`
	Forbidden []string `json:"forbidden"`
	Retained  string   `json:"retained"`
	Units     []int    `json:"units"`
}

type CollisionManifest struct {
	Window        int         `json:"window"`
	Cycle         int         `json:"cycle"`
	Collisions    []Collision `json:"collisions"`
	AffectedUnits []int       `json:"affectedUnits"`
}

func (m CollisionManifest) Clean() bool {
	return len(m.AffectedUnits) == 0
}

// Avoidances returns the instructions for every collision.
func (m CollisionManifest) Avoidances() []Avoidance {
	out := make([]Avoidance, 0, len(m.Collisions))
	for _, c := range m.Collisions {
		a := Avoidance{Key: c.Key, Retained: c.Retained.Payload, Units: c.AffectedUnits}
		for _, r := range c.Rejected {
			a.Forbidden = append(a.Forbidden, r.Payload)
		}
		out = append(out, a)
	}
	return out
}

// AvoidancesFor keeps the instructions touching a unit in [start, end].
func AvoidancesFor(all []Avoidance, start, end int) []Avoidance {
	var out []Avoidance
	for _, a := range all {
		for _, u := range a.Units {
			if u >= start && u <= end {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// DetectConflicts groups the units of the leading window by key and reports
// every key with more than one distinct produced payload. The variant whose
// earliest provenance comes first is retained; every unit that produced
// another variant is affected. The result does not depend on input order.
func DetectConflicts(c *Corpus, window int) CollisionManifest {
	if window <= 0 {
		window = DefaultWindow
	}

	byKey := make(map[string]map[string]*Variant)
	for _, u := range c.Units() {
		if u.Provenance.UnitIndex > window {
			continue
		}
		variants, ok := byKey[u.Key]
		if !ok {
			variants = make(map[string]*Variant)
			byKey[u.Key] = variants
		}
		payload := u.produced()
		v, ok := variants[payload]
		if !ok {
			// units arrive in canonical order, so the first one seen is the earliest
			v = &Variant{Payload: payload, earliest: u}
			variants[payload] = v
		}
		v.Sources = append(v.Sources, u.ID)
		if !funk.ContainsInt(v.Units, u.Provenance.UnitIndex) {
			v.Units = append(v.Units, u.Provenance.UnitIndex)
		}
	}

	manifest := CollisionManifest{Window: window}
	affected := map[int]struct{}{}
	for key, variants := range byKey {
		if len(variants) < 2 {
			continue
		}
		ordered := make([]Variant, 0, len(variants))
		for _, v := range variants {
			ordered = append(ordered, *v)
		}
		sort.Slice(ordered, func(i, j int) bool { return Less(ordered[i].earliest, ordered[j].earliest) })

		col := Collision{Key: key, Variants: ordered, Retained: ordered[0], Rejected: ordered[1:]}
		for _, r := range col.Rejected {
			for _, idx := range r.Units {
				if !funk.ContainsInt(col.AffectedUnits, idx) {
					col.AffectedUnits = append(col.AffectedUnits, idx)
				}
				affected[idx] = struct{}{}
			}
		}
		sort.Ints(col.AffectedUnits)
		manifest.Collisions = append(manifest.Collisions, col)
	}

	sort.Slice(manifest.Collisions, func(i, j int) bool {
		return manifest.Collisions[i].Key < manifest.Collisions[j].Key
	})
	for idx := range affected {
		manifest.AffectedUnits = append(manifest.AffectedUnits, idx)
	}
	sort.Ints(manifest.AffectedUnits)

	return manifest
}
