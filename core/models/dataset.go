package models

import "time"

// Dataset is an uploaded training dataset. Immutable once created.
type Dataset struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Count     int       `json:"count"` // line count for line-delimited formats, else 0
	CreatedAt time.Time `json:"createdAt"`
}

// RegistrationResult carries the outcome of the external model-creation command
type RegistrationResult struct {
	ModelName    string `json:"modelName"`
	ArtifactsDir string `json:"artifactsDir"`
	Modelfile    string `json:"modelfile"`
	ExitCode     int    `json:"exitCode"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
}
