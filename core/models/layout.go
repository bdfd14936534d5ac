package models

import (
	"path/filepath"
	"strings"
)

// Run directory layout: <runsRoot>/<jobId>/{config.yaml, train.log, pid, artifacts/}
const (
	RunConfigFile   = "config.yaml"
	RunLogFile      = "train.log"
	RunPIDFile      = "pid"
	RunArtifactsDir = "artifacts"

	// ModelfileName marks a successful run when present in the artifacts directory
	ModelfileName = "Modelfile"
	// ErrorMarkerFile is left in the artifacts directory by a trainer that crashed
	ErrorMarkerFile = "error.txt"
)

// ValidID reports whether id is usable as a single path element
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

// RunPaths resolves the files of one run directory
type RunPaths struct {
	Dir       string
	Config    string
	Log       string
	PID       string
	Artifacts string
	Modelfile string
}

// NewRunPaths returns the layout of job jobID under runsRoot
func NewRunPaths(runsRoot, jobID string) RunPaths {
	dir := filepath.Join(runsRoot, jobID)
	artifacts := filepath.Join(dir, RunArtifactsDir)
	return RunPaths{
		Dir:       dir,
		Config:    filepath.Join(dir, RunConfigFile),
		Log:       filepath.Join(dir, RunLogFile),
		PID:       filepath.Join(dir, RunPIDFile),
		Artifacts: artifacts,
		Modelfile: filepath.Join(artifacts, ModelfileName),
	}
}
