package v1

import (
	"net/http"

	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	"github.com/corpusforge/phase-orchestrator/internal/jobs"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
)

type StartReply struct {
	JobID        string            `json:"jobId"`
	State        jobs.State        `json:"state"`
	Segmentation segmentation.Plan `json:"segmentation"`
}

type StatusReply struct {
	*jobs.Snapshot
}

type StopReply struct {
	OK bool `json:"ok"`
}

type AcceptedReply struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"jobId,omitempty"`
	Cycle    int    `json:"cycle,omitempty"`
}

type UploadReply struct {
	Merged    int `json:"merged"`
	Unchanged int `json:"unchanged"`
}

type CorpusReply struct {
	corpus.Document
}

type HealthReply struct {
	Status string `json:"status"`
}

type ErrorReply struct {
	Message string `json:"message"`
}

func (s StartReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s StopReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (a AcceptedReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (u UploadReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (c CorpusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (h HealthReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
