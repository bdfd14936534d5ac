package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"llm-finetune/core/errs"
	"llm-finetune/core/models"
)

// CheckpointDir is where the trainer keeps intermediate checkpoints,
// relative to the artifacts directory.
const CheckpointDir = "hf_out"

const checkpointPrefix = "checkpoint-"

// ArtifactManager inspects the artifacts directories of runs
type ArtifactManager struct {
	runsRoot string
}

// NewArtifactManager creates a new artifact manager
func NewArtifactManager(runsRoot string) *ArtifactManager {
	return &ArtifactManager{runsRoot: runsRoot}
}

func (am *ArtifactManager) artifactsDir(jobID string) (string, error) {
	if !models.ValidID(jobID) {
		return "", errs.NotFound("job %q", jobID)
	}
	dir := models.NewRunPaths(am.runsRoot, jobID).Artifacts
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errs.NotFound("artifacts of job %s", jobID)
	}
	return dir, nil
}

// ListArtifacts lists every file under a job's artifacts directory, with
// slash-separated names relative to it.
func (am *ArtifactManager) ListArtifacts(jobID string) ([]models.ArtifactFile, error) {
	dir, err := am.artifactsDir(jobID)
	if err != nil {
		return nil, err
	}

	files := []models.ArtifactFile{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// removed while walking
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, models.ArtifactFile{
			Name:       filepath.ToSlash(rel),
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// LatestCheckpoint returns the path of the highest-numbered checkpoint, the
// one the trainer resumes from. Names without a numeric suffix rank lowest.
func (am *ArtifactManager) LatestCheckpoint(jobID string) (string, error) {
	dir, err := am.artifactsDir(jobID)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(filepath.Join(dir, CheckpointDir))
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	latest, latestStep := "", -2
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), checkpointPrefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(e.Name(), checkpointPrefix))
		if err != nil {
			step = -1
		}
		if step > latestStep {
			latest, latestStep = e.Name(), step
		}
	}

	if latest == "" {
		return "", errs.NotFound("no checkpoint found for job %s", jobID)
	}
	return filepath.Join(dir, CheckpointDir, latest), nil
}
