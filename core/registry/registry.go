package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"llm-finetune/core/models"
)

// Registry maps job ids to live process handles. It is a cache over the
// run directories: constructed by the service, dropped with it, rebuilt
// from disk by the recovery reader.
type Registry struct {
	jobs sync.Map // map[string]*Entry
}

// New creates an empty job registry
func New() *Registry {
	return &Registry{}
}

// Entry is one registered job. Each entry carries its own lock so
// unrelated jobs never contend.
type Entry struct {
	Job     models.TrainingJob
	process *os.Process

	done chan struct{}

	mu                 sync.Mutex
	exited             bool
	exitCode           int
	exitedAt           time.Time
	terminateRequested bool
}

// Register inserts a running job. Registering an id twice is an error.
func (r *Registry) Register(job models.TrainingJob, process *os.Process) (*Entry, error) {
	e := &Entry{
		Job:     job,
		process: process,
		done:    make(chan struct{}),
	}
	if _, loaded := r.jobs.LoadOrStore(job.ID, e); loaded {
		return nil, fmt.Errorf("job %s is already registered", job.ID)
	}
	return e, nil
}

// Get returns the entry for jobID
func (r *Registry) Get(jobID string) (*Entry, bool) {
	v, ok := r.jobs.Load(jobID)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// List returns every entry ordered by job id (creation order)
func (r *Registry) List() []*Entry {
	var out []*Entry
	r.jobs.Range(func(_, v any) bool {
		out = append(out, v.(*Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Job.ID < out[j].Job.ID })
	return out
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	n := 0
	r.jobs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Process returns the OS process handle of the job
func (e *Entry) Process() *os.Process {
	return e.process
}

// Done is closed once the process exit has been observed
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// MarkExited records the process exit. Only the first call has effect.
func (e *Entry) MarkExited(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exited {
		return
	}
	e.exited = true
	e.exitCode = code
	e.exitedAt = time.Now().UTC()
	close(e.done)
}

// Exit reports whether the process has exited and with which code
func (e *Entry) Exit() (exited bool, code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exited, e.exitCode
}

// ExitedAt returns when the exit was observed, or the zero time while running
func (e *Entry) ExitedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitedAt
}

// RequestTerminate marks the job as cancelled by the operator. It returns
// false when the process already exited, in which case the state is final.
func (e *Entry) RequestTerminate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exited {
		return false
	}
	e.terminateRequested = true
	return true
}

// State derives the live state from the process exit. Once terminal it never changes.
func (e *Entry) State() models.JobState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case !e.exited:
		return models.JobStateRunning
	case e.exitCode == 0:
		// a trainer that finished before the termination signal landed still succeeded
		return models.JobStateSucceeded
	case e.terminateRequested:
		return models.JobStateCancelled
	default:
		return models.JobStateFailed
	}
}
