// Package worker provides the NATS worker pool that executes synthesis jobs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-service/internal/cache"
	"github.com/book-expert/speech-service/internal/core"
)

// handleJobTimeout bounds one complete job, including external process time.
const handleJobTimeout = 10 * time.Minute

// JobQueuedEvent is published on the job subject when a synthesis job is
// registered. The job record itself stays in the store; the event only
// carries the identifier.
type JobQueuedEvent struct {
	JobID string `json:"jobId"`
}

// Pool subscribes to the job subject as a queue group and drives each job
// through its state machine: queued, in-progress, then done or failed. Every
// error after enqueue is captured on the job record, never propagated.
type Pool struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	workers    int
	store      core.JobStore
	backend    core.SynthesisBackend
	cache      *cache.ContentCache
	log        *logger.Logger
	subs       []*nats.Subscription
}

// New creates a worker pool. The backend is selected once at construction
// time; the pool never inspects the environment itself.
func New(
	conn *nats.Conn,
	subject string,
	queueGroup string,
	workers int,
	store core.JobStore,
	synthBackend core.SynthesisBackend,
	contentCache *cache.ContentCache,
	log *logger.Logger,
) *Pool {
	return &Pool{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		workers:    workers,
		store:      store,
		backend:    synthBackend,
		cache:      contentCache,
		log:        log,
		subs:       nil,
	}
}

// Run subscribes the pool and blocks until the context is cancelled. Each
// queue subscription delivers one job at a time, so the worker count bounds
// concurrent synthesis.
func (p *Pool) Run(ctx context.Context) error {
	for range p.workers {
		sub, err := p.conn.QueueSubscribe(p.subject, p.queueGroup, p.handleMessage)
		if err != nil {
			return fmt.Errorf("failed to subscribe to subject %s: %w", p.subject, err)
		}

		p.subs = append(p.subs, sub)
	}

	<-ctx.Done()

	for _, sub := range p.subs {
		drainErr := sub.Drain()
		if drainErr != nil {
			p.log.Warn("Failed to drain subscription: %v", drainErr)
		}
	}

	return nil
}

func (p *Pool) handleMessage(msg *nats.Msg) {
	var event JobQueuedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		p.log.Error("Failed to unmarshal job event: %v", err)

		return
	}

	job, err := p.store.Get(event.JobID)
	if err != nil {
		p.log.Error("Job %s not found in store: %v", event.JobID, err)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleJobTimeout)
	defer cancel()

	p.runJob(ctx, job)
}

// runJob executes the state machine for one job. Failures are terminal: the
// error is recorded on the job and the caller must resubmit.
func (p *Pool) runJob(ctx context.Context, job core.Job) {
	p.patch(job.JobID, core.JobPatch{
		Status:   statusPtr(core.StatusInProgress),
		Progress: intPtr(core.ProgressStarted),
		FilePath: nil,
		Error:    nil,
	})

	err := p.synthesize(ctx, job)
	if err != nil {
		p.log.Error("Job %s failed on %s backend: %v", job.JobID, p.backend.Name(), err)
		p.patch(job.JobID, core.JobPatch{
			Status:   statusPtr(core.StatusFailed),
			Progress: intPtr(core.ProgressComplete),
			FilePath: nil,
			Error:    strPtr(err.Error()),
		})

		return
	}

	p.patch(job.JobID, core.JobPatch{
		Status:   statusPtr(core.StatusDone),
		Progress: intPtr(core.ProgressComplete),
		FilePath: strPtr(job.FilePath),
		Error:    nil,
	})
	p.log.Info("Job %s done: %s", job.JobID, job.FilePath)
}

func (p *Pool) synthesize(ctx context.Context, job core.Job) error {
	err := p.cache.EnsureDir(job.Request)
	if err != nil {
		return err
	}

	err = p.backend.Synthesize(ctx, job.Request, job.FilePath)
	if err != nil {
		return err
	}

	return nil
}

func (p *Pool) patch(jobID string, patch core.JobPatch) {
	_, err := p.store.Patch(jobID, patch)
	if err != nil {
		p.log.Error("Failed to patch job %s: %v", jobID, err)
	}
}

func statusPtr(s core.JobStatus) *core.JobStatus { return &s }

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }
