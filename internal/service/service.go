// Package service implements the public synthesis contract.
//
// A request is answered from the content cache when possible; otherwise a job
// is registered and dispatched to the worker pool over the job bus, and the
// caller receives a job identifier to poll.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-service/internal/cache"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/worker"
)

// Result statuses returned by Synthesize.
const (
	StatusReady  = "ready"
	StatusQueued = "queued"
)

// Result is the outcome of a synthesis request: either a ready cache entry or
// a queued job handle.
type Result struct {
	Status   string `json:"status"`
	JobID    string `json:"jobId,omitempty"`
	URL      string `json:"url,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// Service ties the content cache, the job store, and the job bus together.
type Service struct {
	store   core.JobStore
	cache   *cache.ContentCache
	conn    *nats.Conn
	subject string
	log     *logger.Logger
}

// New creates a synthesis service.
func New(
	store core.JobStore,
	contentCache *cache.ContentCache,
	conn *nats.Conn,
	subject string,
	log *logger.Logger,
) *Service {
	return &Service{
		store:   store,
		cache:   contentCache,
		conn:    conn,
		subject: subject,
		log:     log,
	}
}

// Synthesize validates the request, consults the cache, and either returns a
// ready result or registers a job and dispatches it. The call returns as soon
// as the job is enqueued; completion is observed through Status polling.
func (s *Service) Synthesize(req core.SynthesisRequest) (Result, error) {
	req = req.Normalized()

	err := req.Validate()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
	}

	filePath := s.cache.Path(req)

	if s.cache.Exists(req) {
		return readyResult(filePath), nil
	}

	key := cache.Key(req)

	// A request matching a running job attaches to it instead of spawning a
	// second worker for the same cache file.
	active, ok := s.store.ActiveByKey(key)
	if ok {
		return queuedResult(active.JobID), nil
	}

	err = s.cache.EnsureDir(req)
	if err != nil {
		return Result{}, err
	}

	job := core.Job{
		JobID:    uuid.NewString(),
		CacheKey: key,
		Status:   core.StatusQueued,
		Progress: core.ProgressQueued,
		FilePath: filePath,
		Error:    "",
		Request:  req,
	}

	err = s.store.Create(job)
	if errors.Is(err, core.ErrKeyInFlight) {
		// Lost the create race to an identical request; attach to the winner.
		active, ok = s.store.ActiveByKey(key)
		if ok {
			return queuedResult(active.JobID), nil
		}

		// The winner already finished. If it succeeded the cache file is in
		// place now.
		if s.cache.Exists(req) {
			return readyResult(filePath), nil
		}
	}

	if err != nil {
		return Result{}, err
	}

	err = s.dispatch(job.JobID)
	if err != nil {
		s.failJob(job.JobID, err)

		return Result{}, err
	}

	s.log.Info("Queued job %s for video %s (%s)", job.JobID, req.VideoID, req.Format)

	return queuedResult(job.JobID), nil
}

// Status returns the current job record for polling clients.
func (s *Service) Status(jobID string) (core.Job, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return core.Job{}, err
	}

	return job, nil
}

// dispatch publishes the job event onto the bus for the worker pool.
func (s *Service) dispatch(jobID string) error {
	data, err := json.Marshal(worker.JobQueuedEvent{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	err = s.conn.Publish(s.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	return nil
}

// failJob marks a job that could not be dispatched; no worker will ever
// touch it.
func (s *Service) failJob(jobID string, cause error) {
	failed := core.StatusFailed
	progress := core.ProgressComplete
	message := cause.Error()

	_, err := s.store.Patch(jobID, core.JobPatch{
		Status:   &failed,
		Progress: &progress,
		FilePath: nil,
		Error:    &message,
	})
	if err != nil {
		s.log.Error("Failed to mark job %s as failed: %v", jobID, err)
	}
}

func readyResult(filePath string) Result {
	return Result{
		Status:   StatusReady,
		JobID:    "",
		URL:      "/stream?path=" + url.QueryEscape(filePath),
		FilePath: filePath,
	}
}

func queuedResult(jobID string) Result {
	return Result{
		Status:   StatusQueued,
		JobID:    jobID,
		URL:      "",
		FilePath: "",
	}
}
