package models

import "time"

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// DriftRun is one execution of a detector.
type DriftRun struct {
	ID         string     `json:"id"`
	Detector   string     `json:"detector"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	DriftCount int        `json:"drift_count"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// DriftRecord is a delivered drift record. Payload holds the column values
// as reported by the detector.
type DriftRecord struct {
	ID          int64          `json:"id"`
	RunID       string         `json:"run_id"`
	Detector    string         `json:"detector"`
	Fingerprint string         `json:"fingerprint"`
	Payload     map[string]any `json:"payload"`
	DetectedAt  time.Time      `json:"detected_at"`
}

// RecordFilter narrows ListRecords. Empty fields match everything.
type RecordFilter struct {
	RunID    string
	Detector string
	Limit    int
}
