// Package jobstore provides the in-memory registry of synthesis jobs.
//
// The store owns the authoritative copy of every job record. It also keeps an
// in-flight index by cache key so that a request matching a running job can be
// coalesced onto it instead of spawning a second worker for the same file.
package jobstore

import (
	"fmt"
	"sync"

	"github.com/book-expert/speech-service/internal/core"
)

// Store is a mutex-guarded implementation of core.JobStore.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]core.Job
	inFlight map[string]string // cache key -> job ID of the non-terminal job
}

// New creates an empty store.
func New() *Store {
	return &Store{
		mu:       sync.RWMutex{},
		jobs:     make(map[string]core.Job),
		inFlight: make(map[string]string),
	}
}

// Create registers a new job record. The job must carry a unique JobID; its
// cache key is indexed as in-flight until the job reaches a terminal state,
// and a second create for the same key is rejected so that at most one worker
// writes a given cache file.
func (s *Store) Create(job core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.jobs[job.JobID]
	if exists {
		return fmt.Errorf("%w: %s", core.ErrJobExists, job.JobID)
	}

	if job.CacheKey != "" {
		_, busy := s.inFlight[job.CacheKey]
		if busy {
			return fmt.Errorf("%w: %s", core.ErrKeyInFlight, job.CacheKey)
		}
	}

	s.jobs[job.JobID] = job

	if job.CacheKey != "" && !job.Status.Terminal() {
		s.inFlight[job.CacheKey] = job.JobID
	}

	return nil
}

// Get returns a snapshot of the job record.
func (s *Store) Get(jobID string) (core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return core.Job{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}

	return job, nil
}

// Patch merges the non-nil patch fields into the job record and returns the
// updated snapshot. Progress never moves backwards, and a job that reached a
// terminal state rejects further patches.
func (s *Store) Patch(jobID string, patch core.JobPatch) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return core.Job{}, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}

	if job.Status.Terminal() {
		return core.Job{}, fmt.Errorf("%w: %s", core.ErrJobFinished, jobID)
	}

	if patch.Status != nil {
		job.Status = *patch.Status
	}

	if patch.Progress != nil && *patch.Progress > job.Progress {
		job.Progress = *patch.Progress
	}

	if patch.FilePath != nil {
		job.FilePath = *patch.FilePath
	}

	if patch.Error != nil {
		job.Error = *patch.Error
	}

	s.jobs[jobID] = job

	if job.Status.Terminal() {
		delete(s.inFlight, job.CacheKey)
	}

	return job, nil
}

// ActiveByKey returns the non-terminal job registered for a cache key, if any.
func (s *Store) ActiveByKey(cacheKey string) (core.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobID, ok := s.inFlight[cacheKey]
	if !ok {
		return core.Job{}, false
	}

	job, ok := s.jobs[jobID]

	return job, ok
}

var _ core.JobStore = (*Store)(nil)
