package models

import "time"

// JobState represents the lifecycle state of a training job
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether the state has no outgoing transition
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// UnknownJobMessage is the status message for an id with no job behind it
const UnknownJobMessage = "unknown job"

// StatusSource tells which side answered a status query
type StatusSource string

const (
	SourceLive StatusSource = "live"
	SourceDisk StatusSource = "disk"
)

// TrainingJob is the registry's view of a launched job
type TrainingJob struct {
	ID           string
	Config       TrainingParams
	RunDir       string
	LogPath      string
	ArtifactsDir string
	PID          int
	StartedAt    time.Time
}

// TrainingParams are the resolved parameters captured into the run's config document
type TrainingParams struct {
	DatasetID    string
	DatasetPath  string
	BaseModel    string
	Epochs       int
	LearningRate float64
	BatchSize    int
	MaxLength    int
	OutputDir    string
}

// JobLaunch is returned by a successful launch
type JobLaunch struct {
	JobID     string    `json:"jobId"`
	State     JobState  `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}

// JobStatus is the caller-facing status view. Live and disk-derived
// answers share this shape.
type JobStatus struct {
	JobID        string       `json:"jobId"`
	State        JobState     `json:"state"`
	LogsTail     string       `json:"logsTail"`
	ArtifactPath *string      `json:"artifactPath"`
	Message      string       `json:"message,omitempty"`
	Stage        string       `json:"stage,omitempty"`
	ExitCode     *int         `json:"exitCode,omitempty"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
	Source       StatusSource `json:"source"`
}
