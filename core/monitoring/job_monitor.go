package monitoring

import (
	"context"
	"log"
	"time"

	"llm-finetune/core/models"
)

// LiveJobs lists the jobs tracked in memory
type LiveJobs interface {
	Live() []models.JobStatus
}

// JobMonitor periodically logs the progress of live jobs. It applies no
// policy: jobs are never timed out or killed from here.
type JobMonitor struct {
	jobs     LiveJobs
	interval time.Duration

	lastStage map[string]string
	reported  map[string]bool
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(jobs LiveJobs, interval time.Duration) *JobMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &JobMonitor{
		jobs:      jobs,
		interval:  interval,
		lastStage: make(map[string]string),
		reported:  make(map[string]bool),
	}
}

// Start starts the job monitoring loop
func (jm *JobMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.Check()
		}
	}
}

// Check logs stage changes of running jobs and each job's terminal state
// once. It returns the jobs still running. Bookkeeping for jobs no longer
// listed as live is dropped.
func (jm *JobMonitor) Check() []models.JobStatus {
	var running []models.JobStatus
	live := jm.jobs.Live()
	seen := make(map[string]bool, len(live))
	for _, st := range live {
		seen[st.JobID] = true
		if st.State.Terminal() {
			if !jm.reported[st.JobID] {
				jm.reported[st.JobID] = true
				delete(jm.lastStage, st.JobID)
				log.Printf("Job %s finished: %s %s", st.JobID, st.State, st.Message)
			}
			continue
		}

		running = append(running, st)
		if st.Stage != "" && st.Stage != jm.lastStage[st.JobID] {
			jm.lastStage[st.JobID] = st.Stage
			log.Printf("Job %s progress: %s", st.JobID, st.Stage)
		}
	}

	for id := range jm.reported {
		if !seen[id] {
			delete(jm.reported, id)
		}
	}
	for id := range jm.lastStage {
		if !seen[id] {
			delete(jm.lastStage, id)
		}
	}
	return running
}
