package model

import "time"

type PhaseCompletion struct {
	ID          uint   `gorm:"primaryKey"`
	CourseID    string `gorm:"not null;uniqueIndex:idx_phase_completion"`
	Phase       int    `gorm:"not null;uniqueIndex:idx_phase_completion"`
	JobID       string
	Units       int
	Cycles      int
	CompletedAt time.Time
}

type PhaseCompletionList []PhaseCompletion
