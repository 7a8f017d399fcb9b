package models

import (
	"time"
)

// Job statuses persisted as plain text.
const (
	StatusPending  = "PENDING"
	StatusCreating = "CREATING"
	StatusCreated  = "CREATED"
	StatusUploaded = "UPLOADED"
	StatusAnalyzed = "ANALYZED"
	StatusFailed   = "FAILED"
)

// transitionSource maps each status to the single status it may be entered
// from. The lifecycle is a forward-only chain with one failure branch out of
// CREATING, so every target has exactly one valid source.
var transitionSource = map[string]string{
	StatusCreating: StatusPending,
	StatusCreated:  StatusCreating,
	StatusFailed:   StatusCreating,
	StatusUploaded: StatusCreated,
	StatusAnalyzed: StatusUploaded,
}

// TransitionSource returns the status a job must currently hold for a
// transition into target to be valid. ok is false for unknown targets and for
// PENDING, which is only ever assigned at creation.
func TransitionSource(target string) (string, bool) {
	from, ok := transitionSource[target]
	return from, ok
}

// ParameterCombination is one bandit arm: the production parameters shared by
// every job created from it. It is a grouping key over jobs, not a stored
// entity of its own.
type ParameterCombination struct {
	Genre string `json:"genre" yaml:"genre"`
	Style string `json:"style" yaml:"style"`
	Voice string `json:"voice" yaml:"voice"`
}

// Job represents one unit of content tracked through the production lifecycle.
type Job struct {
	Key        string               `json:"key"`
	Status     string               `json:"status"`
	Parameters ParameterCombination `json:"parameters"`
	Script     *string              `json:"script,omitempty"`
	HookPrompt *string              `json:"hook_prompt,omitempty"`
	ExternalID *string              `json:"external_id,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UploadTime *time.Time           `json:"upload_time,omitempty"`
}

// PerformanceSample is one telemetry observation for a published job.
// Samples are append-only and accumulate over time.
type PerformanceSample struct {
	JobKey    string    `json:"job_key"`
	Timestamp time.Time `json:"timestamp"`
	Views     int64     `json:"views"`
	Likes     int64     `json:"likes"`
	Comments  int64     `json:"comments"`
}

// WindowGain is one analyzed job's view-count gain inside the aggregation
// window, together with the arm it was produced from.
type WindowGain struct {
	JobKey     string
	Parameters ParameterCombination
	Gain       int64
}
