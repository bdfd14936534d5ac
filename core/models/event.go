package models

import "time"

// JobEvent represents a state transition recorded in the job journal
type JobEvent struct {
	ID        int64                  `json:"id"`
	JobID     string                 `json:"jobId"`
	At        time.Time              `json:"at"`
	FromState *JobState              `json:"fromState,omitempty"`
	ToState   JobState               `json:"toState"`
	Reason    string                 `json:"reason"`
	Meta      map[string]interface{} `json:"meta,omitempty"` // Additional metadata
}

// Event reasons written by the supervisor
const (
	ReasonLaunched        = "launched"
	ReasonExited          = "exited"
	ReasonTerminated      = "terminated"
	ReasonArtifactWritten = "artifact_written"
)

// ArtifactFile describes one file in a run's artifacts directory
type ArtifactFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
