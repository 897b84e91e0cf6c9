package events

import "time"

// PhaseCompletedEvent is emitted once a job reaches the complete state.
type PhaseCompletedEvent struct {
	JobID       string    `json:"job_id"`
	CourseID    string    `json:"course_id"`
	Phase       int       `json:"phase"`
	Cycles      int       `json:"cycles"`
	Units       int       `json:"units"`
	Keys        int       `json:"keys"`
	CompletedAt time.Time `json:"completed_at"`
}

type PhaseFailedEvent struct {
	JobID           string    `json:"job_id"`
	CourseID        string    `json:"course_id"`
	Phase           int       `json:"phase"`
	Reason          string    `json:"reason"`
	MissingSegments []int     `json:"missing_segments,omitempty"`
	FailedAt        time.Time `json:"failed_at"`
}

type JobStateEvent struct {
	JobID    string `json:"job_id"`
	CourseID string `json:"course_id"`
	Phase    int    `json:"phase"`
	State    string `json:"state"`
	Cycle    int    `json:"cycle"`
}
