package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corpusforge/phase-orchestrator/internal/corpus"
	v1 "github.com/corpusforge/phase-orchestrator/internal/handlers/v1"
	"github.com/corpusforge/phase-orchestrator/internal/jobs"
	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
)

type call struct {
	method   string
	courseID string
	phase    int
}

type fakeJobService struct {
	calls    []call
	err      error
	snapshot *jobs.Snapshot
	merge    corpus.MergeResult
	units    []corpus.Unit
	affected []int
}

func (f *fakeJobService) record(method, courseID string, phase int) {
	f.calls = append(f.calls, call{method: method, courseID: courseID, phase: phase})
}

func (f *fakeJobService) Start(_ context.Context, req jobs.StartRequest) (*jobs.Snapshot, error) {
	f.record("start", req.CourseID, req.Phase)
	if f.err != nil {
		return nil, f.err
	}
	plan, err := segmentation.Compute(req.TotalUnits)
	if err != nil {
		return nil, err
	}
	return &jobs.Snapshot{ID: "job-1", CourseID: req.CourseID, Phase: req.Phase, State: jobs.StateSpawning, Plan: plan}, nil
}

func (f *fakeJobService) Status(_ context.Context, courseID string, phase int) (*jobs.Snapshot, error) {
	f.record("status", courseID, phase)
	return f.snapshot, f.err
}

func (f *fakeJobService) Stop(_ context.Context, courseID string, phase int) error {
	f.record("stop", courseID, phase)
	return f.err
}

func (f *fakeJobService) ReportPhaseComplete(_ context.Context, courseID string, phase int, _ int, _ string) error {
	f.record("phase-complete", courseID, phase)
	return f.err
}

func (f *fakeJobService) Reextract(_ context.Context, courseID string, phase int, affected []int, _ *corpus.CollisionManifest) (*jobs.Snapshot, error) {
	f.record("reextract", courseID, phase)
	f.affected = affected
	if f.err != nil {
		return nil, f.err
	}
	return &jobs.Snapshot{ID: "job-2", Cycle: 1}, nil
}

func (f *fakeJobService) ReportWorkerOutput(_ context.Context, courseID string, phase int, units []corpus.Unit) (corpus.MergeResult, error) {
	f.record("upload", courseID, phase)
	f.units = units
	return f.merge, f.err
}

func (f *fakeJobService) Corpus(_ context.Context, courseID string, phase int) (corpus.Document, error) {
	f.record("corpus", courseID, phase)
	if f.err != nil {
		return corpus.Document{}, f.err
	}
	return corpus.Document{CourseID: courseID, Phase: phase, Units: f.units}, nil
}

var _ = Describe("control api", func() {
	var (
		service *fakeJobService
		router  *chi.Mux
	)

	BeforeEach(func() {
		service = &fakeJobService{}
		router = chi.NewRouter()
		v1.NewServiceHandler(service).Register(router)
	})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]any {
		out := map[string]any{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		return out
	}

	Context("start", func() {
		It("returns the job id and segmentation", func() {
			rec := do(http.MethodPost, "/api/v1/phases/2/start", v1.StartForm{CourseID: "course-1", TotalUnits: 50})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var reply v1.StartReply
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.JobID).To(Equal("job-1"))
			Expect(reply.Segmentation.Strategy).To(Equal(segmentation.StrategyMedium))
			Expect(service.calls).To(ConsistOf(call{method: "start", courseID: "course-1", phase: 2}))
		})

		It("rejects an active job with 409", func() {
			service.err = jobs.NewErrJobAlreadyActive("course-1", 1)
			rec := do(http.MethodPost, "/api/v1/phases/1/start", v1.StartForm{CourseID: "course-1", TotalUnits: 10})
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(decode(rec)["message"]).To(ContainSubstring("already active"))
		})

		It("validates the form", func() {
			rec := do(http.MethodPost, "/api/v1/phases/1/start", v1.StartForm{CourseID: "course-1"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			rec = do(http.MethodPost, "/api/v1/phases/1/start", v1.StartForm{CourseID: "a/b", TotalUnits: 3})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(service.calls).To(BeEmpty())
		})

		It("rejects a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/phases/1/start", bytes.NewBufferString("{"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an invalid phase", func() {
			rec := do(http.MethodPost, "/api/v1/phases/zero/start", v1.StartForm{CourseID: "c1", TotalUnits: 3})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			rec = do(http.MethodPost, "/api/v1/phases/0/start", v1.StartForm{CourseID: "c1", TotalUnits: 3})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("status", func() {
		It("returns the snapshot", func() {
			service.snapshot = &jobs.Snapshot{ID: "job-1", State: jobs.StateWatching, Cycle: 1, MissingSegments: []int{2}}
			rec := do(http.MethodGet, "/api/v1/phases/1/status/course-1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			body := decode(rec)
			Expect(body["state"]).To(Equal("watching"))
			Expect(body["cycle"]).To(BeEquivalentTo(1))
			Expect(body["missingSegments"]).To(ConsistOf(BeEquivalentTo(2)))
		})

		It("maps an unknown job to 404", func() {
			service.err = jobs.NewErrJobNotFound("course-1", 1)
			rec := do(http.MethodGet, "/api/v1/phases/1/status/course-1", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("hides internal errors", func() {
			service.err = errors.New("connection refused")
			rec := do(http.MethodGet, "/api/v1/phases/1/status/course-1", nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(rec)["message"]).To(Equal("internal error"))
		})
	})

	It("stops a job", func() {
		rec := do(http.MethodPost, "/api/v1/phases/3/stop/course-1", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode(rec)["ok"]).To(BeTrue())
		Expect(service.calls).To(ConsistOf(call{method: "stop", courseID: "course-1", phase: 3}))
	})

	It("accepts a segment report", func() {
		rec := do(http.MethodPost, "/api/v1/phases/1/phase-complete", v1.PhaseCompleteForm{CourseID: "course-1", SegmentNumber: 2, Status: "complete"})
		Expect(rec.Code).To(Equal(http.StatusAccepted))

		rec = do(http.MethodPost, "/api/v1/phases/1/phase-complete", v1.PhaseCompleteForm{CourseID: "course-1", SegmentNumber: 2, Status: "done"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	Context("reextract", func() {
		It("accepts the affected units", func() {
			rec := do(http.MethodPost, "/api/v1/phases/1/reextract", v1.ReextractForm{CourseID: "course-1", AffectedUnits: []int{3, 7}})
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(decode(rec)["jobId"]).To(Equal("job-2"))
			Expect(service.affected).To(Equal([]int{3, 7}))
		})

		It("refuses while a job is active", func() {
			service.err = jobs.NewErrReextractNotAllowed("course-1", 1)
			rec := do(http.MethodPost, "/api/v1/phases/1/reextract", v1.ReextractForm{CourseID: "course-1", AffectedUnits: []int{3}})
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("rejects non positive units", func() {
			rec := do(http.MethodPost, "/api/v1/phases/1/reextract", v1.ReextractForm{CourseID: "course-1", AffectedUnits: []int{0}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("upload units", func() {
		It("reports merged and unchanged counts", func() {
			service.merge = corpus.MergeResult{Added: 1, Updated: 1, Unchanged: 3}
			rec := do(http.MethodPost, "/api/v1/phases/1/upload-units", v1.UploadUnitsForm{
				CourseID: "course-1",
				Units:    []v1.UnitForm{{ID: "u0001.1", Key: "k", Payload: "p", UnitIndex: 1, Segment: 1, Seq: 1}},
			})
			Expect(rec.Code).To(Equal(http.StatusOK))

			var reply v1.UploadReply
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply).To(Equal(v1.UploadReply{Merged: 2, Unchanged: 3}))
			Expect(service.units).To(HaveLen(1))
			Expect(service.units[0].Provenance.UnitIndex).To(Equal(1))
		})

		It("rejects units without a key", func() {
			rec := do(http.MethodPost, "/api/v1/phases/1/upload-units", v1.UploadUnitsForm{
				CourseID: "course-1",
				Units:    []v1.UnitForm{{ID: "u0001.1", UnitIndex: 1}},
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("serves the corpus document", func() {
		service.units = []corpus.Unit{{ID: "u0001.1", Key: "k", Payload: "p", Provenance: corpus.Provenance{UnitIndex: 1}}}
		rec := do(http.MethodGet, "/api/v1/phases/1/corpus/course-1", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var doc corpus.Document
		Expect(json.Unmarshal(rec.Body.Bytes(), &doc)).To(Succeed())
		Expect(doc.CourseID).To(Equal("course-1"))
		Expect(doc.Units).To(HaveLen(1))
	})

	It("maps a missing corpus to 404", func() {
		service.err = jobs.NewErrCorpusNotFound("course-1", 1)
		rec := do(http.MethodGet, "/api/v1/phases/1/corpus/course-1", nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("reports health", func() {
		rec := do(http.MethodGet, "/health", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode(rec)["status"]).To(Equal("ok"))
	})
})
