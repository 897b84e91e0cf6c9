package corpus

// Corpus is the merged artifact of a phase, keyed by unit id. It is not safe
// for concurrent use; the owning job serializes access.
type Corpus struct {
	units map[string]Unit
}

// MergeResult counts what a merge did to the corpus.
type MergeResult struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func (r MergeResult) Changed() bool {
	return r.Added+r.Updated > 0
}

func (r *MergeResult) add(o MergeResult) {
	r.Added += o.Added
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
}

func New(units ...Unit) *Corpus {
	c := &Corpus{units: make(map[string]Unit, len(units))}
	for _, u := range units {
		c.Upsert(u)
	}
	return c
}

// Upsert stores u, last write wins per unit id. Submitting content identical to
// what is already stored leaves the corpus untouched.
func (c *Corpus) Upsert(u Unit) MergeResult {
	if u.Produced == "" {
		u.Produced = u.Payload
	}

	existing, found := c.units[u.ID]
	switch {
	case !found:
		u.New, u.Ref = true, ""
		c.units[u.ID] = u
		return MergeResult{Added: 1}
	case existing.sameContent(u):
		return MergeResult{Unchanged: 1}
	default:
		u.New, u.Ref = true, ""
		c.units[u.ID] = u
		return MergeResult{Updated: 1}
	}
}

// Merge upserts every unit. Callers must validate the batch first; Merge does
// not reject anything.
func (c *Corpus) Merge(units []Unit) MergeResult {
	var res MergeResult
	for _, u := range units {
		res.add(c.Upsert(u))
	}
	return res
}

// RemoveUnits discards every item introduced by the given unit indices and
// returns how many items were dropped.
func (c *Corpus) RemoveUnits(unitIndices []int) int {
	drop := make(map[int]struct{}, len(unitIndices))
	for _, i := range unitIndices {
		drop[i] = struct{}{}
	}
	removed := 0
	for id, u := range c.units {
		if _, ok := drop[u.Provenance.UnitIndex]; ok {
			delete(c.units, id)
			removed++
		}
	}
	return removed
}

func (c *Corpus) Get(id string) (Unit, bool) {
	u, ok := c.units[id]
	return u, ok
}

func (c *Corpus) Len() int {
	return len(c.units)
}

// Units returns a copy of the units in canonical order.
func (c *Corpus) Units() []Unit {
	out := make([]Unit, 0, len(c.units))
	for _, u := range c.units {
		out = append(out, u)
	}
	sortUnits(out)
	return out
}

// UnitIndices returns the distinct unit indices present in the corpus, sorted.
func (c *Corpus) UnitIndices() []int {
	seen := map[int]struct{}{}
	var out []int
	for _, u := range c.Units() {
		if _, ok := seen[u.Provenance.UnitIndex]; ok {
			continue
		}
		seen[u.Provenance.UnitIndex] = struct{}{}
		out = append(out, u.Provenance.UnitIndex)
	}
	return out
}

func (c *Corpus) Clone() *Corpus {
	cp := &Corpus{units: make(map[string]Unit, len(c.units))}
	for id, u := range c.units {
		cp.units[id] = u
	}
	return cp
}

// Changed returns the units of after that are missing from before or differ
// from their copy in it, in canonical order.
func Changed(before, after *Corpus) []Unit {
	var out []Unit
	for _, u := range after.Units() {
		if old, ok := before.units[u.ID]; !ok || old != u {
			out = append(out, u)
		}
	}
	return out
}

// Equal reports whether both corpora hold exactly the same units.
func (c *Corpus) Equal(o *Corpus) bool {
	if c.Len() != o.Len() {
		return false
	}
	for id, u := range c.units {
		if ou, ok := o.units[id]; !ok || ou != u {
			return false
		}
	}
	return true
}
