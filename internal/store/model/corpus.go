package model

import (
	"time"

	"github.com/corpusforge/phase-orchestrator/internal/corpus"
)

type CorpusUnit struct {
	CourseID  string `gorm:"primaryKey"`
	Phase     int    `gorm:"primaryKey;autoIncrement:false"`
	UnitID    string `gorm:"primaryKey"`
	Key       string `gorm:"not null;index"`
	Payload   string
	Produced  string
	UnitIndex int `gorm:"not null"`
	Segment   int
	Seq       int
	New       bool `gorm:"column:is_new"`
	Ref       string
	UpdatedAt time.Time
}

type CorpusUnitList []CorpusUnit

func NewCorpusUnit(courseID string, phase int, u corpus.Unit) CorpusUnit {
	return CorpusUnit{
		CourseID:  courseID,
		Phase:     phase,
		UnitID:    u.ID,
		Key:       u.Key,
		Payload:   u.Payload,
		Produced:  u.Produced,
		UnitIndex: u.Provenance.UnitIndex,
		Segment:   u.Provenance.Segment,
		Seq:       u.Provenance.Seq,
		New:       u.New,
		Ref:       u.Ref,
	}
}

func NewCorpusUnits(courseID string, phase int, units []corpus.Unit) CorpusUnitList {
	out := make(CorpusUnitList, 0, len(units))
	for _, u := range units {
		out = append(out, NewCorpusUnit(courseID, phase, u))
	}
	return out
}

func (c CorpusUnit) Unit() corpus.Unit {
	return corpus.Unit{
		ID:       c.UnitID,
		Key:      c.Key,
		Payload:  c.Payload,
		Produced: c.Produced,
		Provenance: corpus.Provenance{
			UnitIndex: c.UnitIndex,
			Segment:   c.Segment,
			Seq:       c.Seq,
		},
		New: c.New,
		Ref: c.Ref,
	}
}

// Corpus rebuilds the in memory corpus and recomputes the dedup markers.
func (l CorpusUnitList) Corpus() *corpus.Corpus {
	units := make([]corpus.Unit, 0, len(l))
	for _, c := range l {
		units = append(units, c.Unit())
	}
	return corpus.Deduplicate(corpus.New(units...))
}
