package dispatcher

import (
	"time"

	"github.com/corpusforge/phase-orchestrator/internal/corpus"
)

// Task is everything a worker needs to produce the output of one agent slot.
type Task struct {
	ID        string             `json:"id"`
	CourseID  string             `json:"courseId"`
	Phase     int                `json:"phase"`
	Cycle     int                `json:"cycle"`
	Segment   int                `json:"segment"`
	Agent     int                `json:"agent"`
	StartUnit int                `json:"startUnit"`
	EndUnit   int                `json:"endUnit"`
	Channel   string             `json:"channel"`
	Context   TaskContext        `json:"context"`
	Avoid     []corpus.Avoidance `json:"avoid,omitempty"`
}

// TaskContext carries the state accumulated before the task's unit range.
type TaskContext struct {
	Params    map[string]any `json:"params,omitempty"`
	KnownKeys []string       `json:"knownKeys,omitempty"`
}

// Handle is a spawned task.
type Handle struct {
	Task      Task      `json:"task"`
	Ref       string    `json:"ref,omitempty"`
	SpawnedAt time.Time `json:"spawnedAt"`
}

// Warning is a spawn that failed. It never aborts the job.
type Warning struct {
	Segment int    `json:"segment"`
	Agent   int    `json:"agent"`
	Message string `json:"message"`
}
