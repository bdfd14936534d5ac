package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"llm-finetune/core/errs"
	"llm-finetune/core/logtail"
	"llm-finetune/core/models"
	"llm-finetune/core/monitoring"
	"llm-finetune/core/registry"
	"llm-finetune/core/spec"
)

// DatasetResolver resolves a dataset id to its file path
type DatasetResolver interface {
	GetPath(id string) (string, error)
}

// EventRecorder journals job state transitions
type EventRecorder interface {
	RecordJobEvent(ctx context.Context, event models.JobEvent) error
}

// SupervisorConfig configures how training processes are spawned
type SupervisorConfig struct {
	ContentRoot    string   // working directory of the trainer
	RunsRoot       string   // defaults to <ContentRoot>/runs
	TrainerCommand string   // e.g. "python"
	TrainerArgs    []string // e.g. ["train.py"]; "--config <path>" is appended
	TailBytes      int64
}

// LaunchRequest carries the caller-supplied training parameters
type LaunchRequest struct {
	DatasetID    string  `json:"datasetId"`
	BaseModel    string  `json:"baseModel"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learningRate"`
	BatchSize    int     `json:"batchSize,omitempty"`
	MaxLength    int     `json:"maxLength,omitempty"`
}

// Validate checks the request parameters
func (r LaunchRequest) Validate() error {
	if strings.TrimSpace(r.BaseModel) == "" {
		return errs.Invalid("baseModel is required")
	}
	if r.Epochs <= 0 {
		return errs.Invalid("epochs must be positive, got %d", r.Epochs)
	}
	if r.LearningRate <= 0 {
		return errs.Invalid("learningRate must be positive, got %g", r.LearningRate)
	}
	if r.BatchSize < 0 || r.MaxLength < 0 {
		return errs.Invalid("batchSize and maxLength must not be negative")
	}
	return nil
}

// Supervisor launches training processes, owns their run directories and
// observes their exit.
type Supervisor struct {
	cfg      SupervisorConfig
	datasets DatasetResolver
	registry *registry.Registry
	journal  EventRecorder
	launches atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor. journal may be nil.
func NewSupervisor(
	cfg SupervisorConfig,
	datasets DatasetResolver,
	reg *registry.Registry,
	journal EventRecorder,
) *Supervisor {
	if cfg.RunsRoot == "" {
		cfg.RunsRoot = filepath.Join(cfg.ContentRoot, "runs")
	}
	if abs, err := filepath.Abs(cfg.RunsRoot); err == nil {
		cfg.RunsRoot = abs
	}
	if cfg.TailBytes <= 0 {
		cfg.TailBytes = logtail.DefaultBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:      cfg,
		datasets: datasets,
		registry: reg,
		journal:  journal,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RunsRoot returns the directory holding every run directory
func (s *Supervisor) RunsRoot() string {
	return s.cfg.RunsRoot
}

// Launch starts a training job for the given dataset and returns once the
// process is running. It does not wait for the process to exit.
func (s *Supervisor) Launch(ctx context.Context, req LaunchRequest) (models.JobLaunch, error) {
	datasetPath, err := s.datasets.GetPath(req.DatasetID)
	if err != nil {
		return models.JobLaunch{}, err
	}
	if err := req.Validate(); err != nil {
		return models.JobLaunch{}, err
	}

	jobID := models.NewID()
	paths := models.NewRunPaths(s.cfg.RunsRoot, jobID)

	if err := os.MkdirAll(paths.Artifacts, 0o755); err != nil {
		return models.JobLaunch{}, fmt.Errorf("failed to create run directory: %w", err)
	}

	params := models.TrainingParams{
		DatasetID:    req.DatasetID,
		DatasetPath:  datasetPath,
		BaseModel:    strings.TrimSpace(req.BaseModel),
		Epochs:       req.Epochs,
		LearningRate: req.LearningRate,
		BatchSize:    req.BatchSize,
		MaxLength:    req.MaxLength,
		OutputDir:    paths.Artifacts,
	}
	if err := spec.FromParams(params).WriteFile(paths.Config); err != nil {
		os.RemoveAll(paths.Dir)
		return models.JobLaunch{}, err
	}

	logFile, err := os.OpenFile(paths.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		os.RemoveAll(paths.Dir)
		return models.JobLaunch{}, fmt.Errorf("failed to open training log: %w", err)
	}

	args := append(append([]string(nil), s.cfg.TrainerArgs...), "--config", paths.Config)
	cmd := exec.Command(s.cfg.TrainerCommand, args...)
	cmd.Dir = s.cfg.ContentRoot
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	// Both streams share one append-only descriptor; the child writes to it directly.
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		os.RemoveAll(paths.Dir)
		log.Printf("Failed to start trainer for dataset %s: %v", req.DatasetID, err)
		return models.JobLaunch{}, errs.ProcessStart(err, "trainer %q", s.cfg.TrainerCommand)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(paths.PID, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		log.Printf("Failed to write pid file for job %s: %v", jobID, err)
	}

	job := models.TrainingJob{
		ID:           jobID,
		Config:       params,
		RunDir:       paths.Dir,
		LogPath:      paths.Log,
		ArtifactsDir: paths.Artifacts,
		PID:          pid,
		StartedAt:    time.Now().UTC(),
	}
	entry, err := s.registry.Register(job, cmd.Process)
	if err != nil {
		// ids are unique, so this only happens on a programming error
		cmd.Process.Kill()
		cmd.Wait()
		logFile.Close()
		return models.JobLaunch{}, err
	}

	log.Printf("Job %s started (pid %d, dataset %s, base model %s, epochs %d, lr %g)",
		jobID, pid, req.DatasetID, params.BaseModel, params.Epochs, params.LearningRate)
	s.record(ctx, jobID, nil, models.JobStateRunning, models.ReasonLaunched, map[string]interface{}{
		"pid":        pid,
		"dataset_id": req.DatasetID,
		"base_model": params.BaseModel,
	})

	s.launches.Add(1)
	s.wg.Add(1)
	go s.await(entry, cmd, logFile)
	s.watchArtifact(entry)

	return models.JobLaunch{
		JobID:     jobID,
		State:     models.JobStateRunning,
		StartedAt: job.StartedAt,
	}, nil
}

// await observes the process exit. Cancelling the supervisor stops the
// waiting, not the process.
func (s *Supervisor) await(entry *registry.Entry, cmd *exec.Cmd, logFile *os.File) {
	defer s.wg.Done()

	exited := make(chan int, 1)
	go func() {
		err := cmd.Wait()
		logFile.Sync()
		logFile.Close()
		code := exitCode(err)
		entry.MarkExited(code)
		exited <- code
	}()

	select {
	case code := <-exited:
		state := entry.State()
		log.Printf("Job %s exited with code %d (%s)", entry.Job.ID, code, state)
		running := models.JobStateRunning
		s.record(context.Background(), entry.Job.ID, &running, state, models.ReasonExited, map[string]interface{}{
			"exit_code": code,
		})
	case <-s.ctx.Done():
		log.Printf("Stopped waiting for job %s; process %d is left running", entry.Job.ID, entry.Job.PID)
	}
}

func (s *Supervisor) watchArtifact(entry *registry.Entry) {
	ctx, cancel := context.WithCancel(s.ctx)
	ready, err := monitoring.WatchArtifact(ctx, entry.Job.ArtifactsDir, models.ModelfileName)
	if err != nil {
		cancel()
		log.Printf("Failed to watch artifacts of job %s: %v", entry.Job.ID, err)
		return
	}

	go func() {
		defer cancel()
		select {
		case <-ready:
			s.recordArtifact(entry)
		case <-entry.Done():
			// A trainer can write the Modelfile and exit before the watcher
			// delivers the event, so look at the directory once more.
			if _, err := os.Stat(filepath.Join(entry.Job.ArtifactsDir, models.ModelfileName)); err == nil {
				s.recordArtifact(entry)
			}
		case <-ctx.Done():
		}
	}()
}

func (s *Supervisor) recordArtifact(entry *registry.Entry) {
	log.Printf("Job %s wrote %s", entry.Job.ID, models.ModelfileName)
	state := entry.State()
	s.record(context.Background(), entry.Job.ID, &state, state, models.ReasonArtifactWritten, map[string]interface{}{
		"path": filepath.Join(entry.Job.ArtifactsDir, models.ModelfileName),
	})
}

// recordTermination journals an operator termination. It is only called
// after the exit, so the event carries the state the job actually ended in.
func (s *Supervisor) recordTermination(entry *registry.Entry) {
	running := models.JobStateRunning
	_, code := entry.Exit()
	s.record(context.Background(), entry.Job.ID, &running, entry.State(), models.ReasonTerminated, map[string]interface{}{
		"exit_code": code,
	})
}

// Status reports the live state of a registered job. An unknown id yields a
// synthetic failed status together with a not-found error; it never falls
// back to disk.
func (s *Supervisor) Status(jobID string) (models.JobStatus, error) {
	entry, ok := s.registry.Get(jobID)
	if !ok {
		return models.JobStatus{
			JobID:   jobID,
			State:   models.JobStateFailed,
			Message: models.UnknownJobMessage,
			Source:  models.SourceLive,
		}, errs.NotFound("job %s is not registered", jobID)
	}
	return s.project(entry), nil
}

// Live projects every job registered since startup, finished or not
func (s *Supervisor) Live() []models.JobStatus {
	entries := s.registry.List()
	out := make([]models.JobStatus, 0, len(entries))
	for _, entry := range entries {
		out = append(out, s.project(entry))
	}
	return out
}

// Launches returns the number of trainers started since startup
func (s *Supervisor) Launches() int64 {
	return s.launches.Load()
}

// Terminate signals the job's process group and waits for the process to exit
func (s *Supervisor) Terminate(ctx context.Context, jobID string) (models.JobStatus, error) {
	entry, ok := s.registry.Get(jobID)
	if !ok {
		return models.JobStatus{}, errs.NotFound("job %s is not registered", jobID)
	}

	requested := entry.RequestTerminate()
	if requested {
		log.Printf("Terminating job %s (pid %d)", jobID, entry.Job.PID)
		if err := terminateProcess(entry.Process()); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return s.project(entry), fmt.Errorf("failed to signal job %s: %w", jobID, err)
		}
	}

	select {
	case <-entry.Done():
	case <-ctx.Done():
		if requested {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				select {
				case <-entry.Done():
					s.recordTermination(entry)
				case <-s.ctx.Done():
				}
			}()
		}
		return s.project(entry), ctx.Err()
	}
	if requested {
		s.recordTermination(entry)
	}
	return s.project(entry), nil
}

// Close stops every exit-wait task. Running trainers are not terminated.
func (s *Supervisor) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) project(entry *registry.Entry) models.JobStatus {
	tail := logtail.Tail(entry.Job.LogPath, s.cfg.TailBytes)
	started := entry.Job.StartedAt
	status := models.JobStatus{
		JobID:     entry.Job.ID,
		State:     entry.State(),
		LogsTail:  tail,
		Stage:     logtail.Stage(tail),
		StartedAt: &started,
		Source:    models.SourceLive,
	}

	if exited, code := entry.Exit(); exited {
		status.ExitCode = &code
		finished := entry.ExitedAt()
		status.FinishedAt = &finished
		switch status.State {
		case models.JobStateFailed:
			status.Message = fmt.Sprintf("exit code %d", code)
		case models.JobStateCancelled:
			status.Message = "terminated by operator"
		}
	}
	if status.State == models.JobStateSucceeded {
		dir := entry.Job.ArtifactsDir
		status.ArtifactPath = &dir
	}
	return status
}

func (s *Supervisor) record(ctx context.Context, jobID string, from *models.JobState, to models.JobState, reason string, meta map[string]interface{}) {
	if s.journal == nil {
		return
	}
	event := models.JobEvent{
		JobID:     jobID,
		At:        time.Now().UTC(),
		FromState: from,
		ToState:   to,
		Reason:    reason,
		Meta:      meta,
	}
	if err := s.journal.RecordJobEvent(ctx, event); err != nil {
		log.Printf("Failed to journal %s event for job %s: %v", reason, jobID, err)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
