package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"llm-finetune/core/errs"
	"llm-finetune/core/models"
)

// ModelRegistrar registers a finished run's Modelfile with the model-serving
// daemon by invoking its CLI.
type ModelRegistrar struct {
	runsRoot string
	command  string
}

// NewModelRegistrar creates a registrar that runs `<command> create <name> -f <Modelfile>`
func NewModelRegistrar(runsRoot, command string) *ModelRegistrar {
	return &ModelRegistrar{runsRoot: runsRoot, command: command}
}

// Register creates model modelName from the Modelfile of job jobID. A non-zero
// exit is returned as a result plus an ErrRegistrationFailed error; the job's
// own state is never touched.
func (r *ModelRegistrar) Register(ctx context.Context, jobID, modelName string) (models.RegistrationResult, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return models.RegistrationResult{}, errs.Invalid("modelName is required")
	}
	if !models.ValidID(jobID) {
		return models.RegistrationResult{}, errs.NotFound("job %q", jobID)
	}

	paths := models.NewRunPaths(r.runsRoot, jobID)
	if info, err := os.Stat(paths.Modelfile); err != nil || info.IsDir() {
		return models.RegistrationResult{}, errs.ArtifactNotFound("job %s has no %s", jobID, models.ModelfileName)
	}

	result := models.RegistrationResult{
		ModelName:    modelName,
		ArtifactsDir: paths.Artifacts,
		Modelfile:    paths.Modelfile,
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.command, "create", modelName, "-f", paths.Modelfile)
	// the Modelfile references adapter weights relative to itself
	cmd.Dir = paths.Artifacts
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return result, errs.ProcessStart(err, "registration command %q", r.command)
	}
	waitErr := cmd.Wait()

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.ExitCode = exitCode(waitErr)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("registration command for job %s: %w", jobID, waitErr)
	}
	if result.ExitCode != 0 {
		log.Printf("Registering model %s from job %s failed with exit code %d", modelName, jobID, result.ExitCode)
		return result, errs.RegistrationFailed("exit code %d", result.ExitCode)
	}

	log.Printf("Registered model %s from job %s", modelName, jobID)
	return result, nil
}
