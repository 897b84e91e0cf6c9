package corpus

// Deduplicate marks the first occurrence of every key, in canonical order, as
// authoritative. Later occurrences become references to it and take its
// payload. The input corpus is not modified.
func Deduplicate(c *Corpus) *Corpus {
	out := &Corpus{units: make(map[string]Unit, c.Len())}

	canonical := make(map[string]Unit)
	for _, u := range c.Units() {
		first, seen := canonical[u.Key]
		if !seen {
			u.New, u.Ref = true, ""
			// a former reference promoted to canonical gets its own payload back
			u.Payload = u.produced()
			canonical[u.Key] = u
		} else {
			u.New, u.Ref = false, first.ID
			u.Payload = first.Payload
		}
		out.units[u.ID] = u
	}

	return out
}

// Authoritative returns the canonical unit of every key, in canonical order.
func (c *Corpus) Authoritative() []Unit {
	var out []Unit
	for _, u := range c.Units() {
		if u.New {
			out = append(out, u)
		}
	}
	return out
}
