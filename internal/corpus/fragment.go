package corpus

import (
	"encoding/json"
	"fmt"
)

// Fragment is the document a worker writes to its output channel.
type Fragment struct {
	CourseID  string `json:"courseId"`
	Phase     int    `json:"phase"`
	Segment   int    `json:"segment"`
	Agent     int    `json:"agent"`
	StartUnit int    `json:"startUnit"`
	EndUnit   int    `json:"endUnit"`
	Units     []Unit `json:"units"`
}

// DecodeFragment parses and validates a whole channel payload. Either every
// unit is valid or nothing is returned.
func DecodeFragment(data []byte) (*Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode fragment: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fragment) Validate() error {
	ranged := f.StartUnit > 0 && f.EndUnit >= f.StartUnit
	seen := make(map[string]struct{}, len(f.Units))
	for i, u := range f.Units {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("fragment unit %d: %w", i, err)
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("fragment unit %d: duplicate id %s", i, u.ID)
		}
		seen[u.ID] = struct{}{}
		if ranged && (u.Provenance.UnitIndex < f.StartUnit || u.Provenance.UnitIndex > f.EndUnit) {
			return fmt.Errorf("fragment unit %s: unit index %d outside declared range %d-%d",
				u.ID, u.Provenance.UnitIndex, f.StartUnit, f.EndUnit)
		}
	}
	return nil
}

// Document is the serialized merged corpus of a phase.
type Document struct {
	CourseID string `json:"courseId"`
	Phase    int    `json:"phase"`
	Units    []Unit `json:"units"`
}

func (c *Corpus) Document(courseID string, phase int) Document {
	return Document{CourseID: courseID, Phase: phase, Units: c.Units()}
}
