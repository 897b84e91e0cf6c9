package v1

import (
	"github.com/corpusforge/phase-orchestrator/internal/corpus"
)

type StartForm struct {
	CourseID   string         `json:"courseId" validate:"required,course_id"`
	TotalUnits int            `json:"totalUnits" validate:"required,min=1"`
	Params     map[string]any `json:"params,omitempty"`
}

type PhaseCompleteForm struct {
	CourseID      string `json:"courseId" validate:"required,course_id"`
	SegmentNumber int    `json:"segmentNumber" validate:"required,min=1"`
	Status        string `json:"status" validate:"required,segment_status"`
}

type ReextractForm struct {
	CourseID      string                    `json:"courseId" validate:"required,course_id"`
	AffectedUnits []int                     `json:"affectedUnits,omitempty" validate:"omitempty,dive,min=1"`
	Manifest      *corpus.CollisionManifest `json:"manifest,omitempty"`
}

type UnitForm struct {
	ID        string `json:"id" validate:"required"`
	Key       string `json:"key" validate:"required"`
	Payload   string `json:"payload"`
	UnitIndex int    `json:"unitIndex" validate:"required,min=1"`
	Segment   int    `json:"segment" validate:"min=0"`
	Seq       int    `json:"seq" validate:"min=0"`
}

type UploadUnitsForm struct {
	CourseID string     `json:"courseId" validate:"required,course_id"`
	Units    []UnitForm `json:"units" validate:"required,min=1,dive"`
}

func (f UploadUnitsForm) CorpusUnits() []corpus.Unit {
	units := make([]corpus.Unit, 0, len(f.Units))
	for _, u := range f.Units {
		units = append(units, corpus.Unit{
			ID:      u.ID,
			Key:     u.Key,
			Payload: u.Payload,
			Provenance: corpus.Provenance{
				UnitIndex: u.UnitIndex,
				Segment:   u.Segment,
				Seq:       u.Seq,
			},
			New: true,
		})
	}
	return units
}
