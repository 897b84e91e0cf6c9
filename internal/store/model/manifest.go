package model

import (
	"time"

	"github.com/corpusforge/phase-orchestrator/internal/corpus"
)

const (
	ManifestStatusOpen          = "open"
	ManifestStatusCycleExceeded = "cycle_limit_exceeded"
)

// CollisionManifest is the last unresolved manifest of a course phase.
type CollisionManifest struct {
	CourseID  string `gorm:"primaryKey"`
	Phase     int    `gorm:"primaryKey;autoIncrement:false"`
	Cycle     int
	Status    string                               `gorm:"not null;default:open"`
	Document  *JSONField[corpus.CollisionManifest] `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
