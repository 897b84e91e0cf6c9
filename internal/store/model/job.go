package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobRecord is the last known snapshot of a job.
type JobRecord struct {
	ID        uuid.UUID `gorm:"primaryKey;type:text"`
	CourseID  string    `gorm:"not null;index:idx_job_course_phase"`
	Phase     int       `gorm:"not null;index:idx_job_course_phase"`
	State     string    `gorm:"not null"`
	Cycle     int
	Error     string
	Snapshot  *JSONField[json.RawMessage]
	StartedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type JobRecordList []JobRecord
