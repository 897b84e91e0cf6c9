package jobs

import (
	"fmt"
	"sync"
)

// Registry holds the active jobs, at most one per course phase.
type Registry struct {
	lock sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func registryKey(courseID string, phase int) string {
	return fmt.Sprintf("%s/%d", courseID, phase)
}

// Add registers job unless its course phase already has an active job.
func (r *Registry) Add(job *Job) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := registryKey(job.CourseID, job.Phase)
	if _, exists := r.jobs[key]; exists {
		return NewErrJobAlreadyActive(job.CourseID, job.Phase)
	}
	r.jobs[key] = job
	return nil
}

func (r *Registry) Get(courseID string, phase int) (*Job, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	job, ok := r.jobs[registryKey(courseID, phase)]
	return job, ok
}

// Remove unregisters the active job of a course phase and returns it.
func (r *Registry) Remove(courseID string, phase int) (*Job, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := registryKey(courseID, phase)
	job, ok := r.jobs[key]
	if ok {
		delete(r.jobs, key)
	}
	return job, ok
}

// RemoveJob unregisters job only if it is still the registered one.
func (r *Registry) RemoveJob(job *Job) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := registryKey(job.CourseID, job.Phase)
	if r.jobs[key] != job {
		return false
	}
	delete(r.jobs, key)
	return true
}

func (r *Registry) List() []*Job {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.jobs)
}
