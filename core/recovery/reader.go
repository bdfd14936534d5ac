package recovery

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"llm-finetune/core/errs"
	"llm-finetune/core/logtail"
	"llm-finetune/core/models"
	"llm-finetune/core/spec"
)

// Reader reconstructs job status from run directories alone. It never
// writes to a run directory and never consults in-memory state.
//
// Decision rule:
//   - run directory absent            -> failed ("unknown job")
//   - artifacts/Modelfile present     -> succeeded
//   - run directory without Modelfile -> running
//
// The last case cannot tell a live trainer from one that crashed before
// writing its output.
type Reader struct {
	runsRoot  string
	tailBytes int64
}

// NewReader creates a recovery reader over runsRoot
func NewReader(runsRoot string, tailBytes int64) *Reader {
	if tailBytes <= 0 {
		tailBytes = logtail.DefaultBytes
	}
	return &Reader{runsRoot: runsRoot, tailBytes: tailBytes}
}

// Recover derives the status of jobID from disk. It never fails.
func (r *Reader) Recover(jobID string) models.JobStatus {
	status := models.JobStatus{
		JobID:  jobID,
		Source: models.SourceDisk,
	}
	if !models.ValidID(jobID) {
		status.State = models.JobStateFailed
		status.Message = models.UnknownJobMessage
		return status
	}

	paths := models.NewRunPaths(r.runsRoot, jobID)
	info, err := os.Stat(paths.Dir)
	if err != nil || !info.IsDir() {
		status.State = models.JobStateFailed
		status.Message = models.UnknownJobMessage
		return status
	}

	status.LogsTail = logtail.Tail(paths.Log, r.tailBytes)
	status.Stage = logtail.Stage(status.LogsTail)
	if started, ok := startedAt(paths); ok {
		status.StartedAt = &started
	}

	if fileExists(paths.Modelfile) {
		status.State = models.JobStateSucceeded
		dir := paths.Artifacts
		status.ArtifactPath = &dir
		return status
	}

	status.State = models.JobStateRunning
	if msg := firstLine(filepath.Join(paths.Artifacts, models.ErrorMarkerFile)); msg != "" {
		status.Message = "trainer reported: " + msg
	}
	return status
}

// ListJobIDs returns the ids of every run directory on disk, sorted
// (which is creation order for time-ordered ids).
func (r *Reader) ListJobIDs() ([]string, error) {
	entries, err := os.ReadDir(r.runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !models.ValidID(e.Name()) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadConfig parses the training config persisted at launch
func (r *Reader) LoadConfig(jobID string) (*spec.TrainingConfig, error) {
	if !models.ValidID(jobID) {
		return nil, errs.NotFound("job %q", jobID)
	}
	cfg, err := spec.LoadTrainingConfig(models.NewRunPaths(r.runsRoot, jobID).Config)
	if os.IsNotExist(err) {
		return nil, errs.NotFound("config of job %s", jobID)
	}
	return cfg, err
}

// startedAt approximates the launch time from the config document, which
// is written once at launch.
func startedAt(paths models.RunPaths) (time.Time, bool) {
	info, err := os.Stat(paths.Config)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime().UTC(), true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstLine(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}
