// Package core defines the domain types and interfaces for the speech service.
package core

import (
	"context"
	"errors"
	"unicode/utf8"
)

// MaxTextLength is the longest text accepted for a single synthesis request,
// counted in characters, not bytes.
const MaxTextLength = 3000

// Progress milestones for a synthesis job.
const (
	ProgressQueued   = 0
	ProgressStarted  = 5
	ProgressComplete = 100
)

// Speaking rate bounds accepted by the cloud speech API.
const (
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
)

// Defaults applied to optional request fields.
const (
	DefaultLanguage = "en"
	DefaultSpeed    = 1.0
	DefaultFormat   = "mp3"
)

// Static errors for the synthesis pipeline.
var (
	// ErrInvalidRequest indicates a request rejected before any job was created.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrVideoIDEmpty indicates a missing video identifier.
	ErrVideoIDEmpty = errors.New("videoId is required")
	// ErrTextEmpty indicates missing synthesis text.
	ErrTextEmpty = errors.New("text is required")
	// ErrTextTooLong indicates text beyond MaxTextLength.
	ErrTextTooLong = errors.New("text too long")
	// ErrJobNotFound indicates an unknown job identifier.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists indicates a duplicate job identifier.
	ErrJobExists = errors.New("job already exists")
	// ErrKeyInFlight indicates a job for the same cache key is already running.
	ErrKeyInFlight = errors.New("synthesis already in flight for this key")
	// ErrJobFinished indicates a patch attempted after a terminal state.
	ErrJobFinished = errors.New("job already finished")
	// ErrBackendUnavailable indicates a backend prerequisite is missing.
	ErrBackendUnavailable = errors.New("synthesis backend unavailable")
	// ErrSynthesisFailed indicates the backend itself failed.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrFileNotFound indicates a stream path that does not exist on disk.
	ErrFileNotFound = errors.New("file not found")
)

// JobStatus enumerates the lifecycle states of a synthesis job.
type JobStatus string

// Job lifecycle states. The wire values match the polling API.
const (
	StatusQueued     JobStatus = "queued"
	StatusInProgress JobStatus = "in-progress"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status is final.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// SynthesisRequest describes one text-to-speech request. It is immutable once
// submitted; all of its fields participate in the cache key.
type SynthesisRequest struct {
	VideoID  string  `json:"videoId"`
	Text     string  `json:"text"`
	Language string  `json:"lang"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed"`
	Format   string  `json:"format"`
}

// Normalized returns a copy with defaults applied to optional fields.
func (r SynthesisRequest) Normalized() SynthesisRequest {
	if r.Language == "" {
		r.Language = DefaultLanguage
	}

	if r.Speed == 0 {
		r.Speed = DefaultSpeed
	}

	if r.Format == "" {
		r.Format = DefaultFormat
	}

	return r
}

// Validate checks the request against the admission rules. Violations are
// rejected before any job or file is created.
func (r SynthesisRequest) Validate() error {
	if r.VideoID == "" {
		return ErrVideoIDEmpty
	}

	if r.Text == "" {
		return ErrTextEmpty
	}

	if utf8.RuneCountInString(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}

	return nil
}

// Job is the mutable record tracking one asynchronous synthesis attempt.
// JobStore owns the authoritative copy; everything else reads and writes
// through it.
type Job struct {
	JobID    string           `json:"jobId"`
	CacheKey string           `json:"-"`
	Status   JobStatus        `json:"status"`
	Progress int              `json:"progress"`
	FilePath string           `json:"filePath,omitempty"`
	Error    string           `json:"error,omitempty"`
	Request  SynthesisRequest `json:"-"`
}

// JobPatch carries a partial update for a job. Nil fields are left untouched;
// progress never moves backwards.
type JobPatch struct {
	Status   *JobStatus
	Progress *int
	FilePath *string
	Error    *string
}

// JobStore is the in-memory registry of synthesis jobs.
type JobStore interface {
	Create(job Job) error
	Get(jobID string) (Job, error)
	Patch(jobID string, patch JobPatch) (Job, error)
	ActiveByKey(cacheKey string) (Job, bool)
}

// SynthesisBackend produces an audio file at targetPath for the given request.
type SynthesisBackend interface {
	Name() string
	Synthesize(ctx context.Context, req SynthesisRequest, targetPath string) error
}
