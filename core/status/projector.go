package status

import (
	"log"

	"llm-finetune/core/models"
)

// LiveSource answers from the in-memory registry
type LiveSource interface {
	Status(jobID string) (models.JobStatus, error)
}

// DiskSource answers from run directories
type DiskSource interface {
	Recover(jobID string) models.JobStatus
	ListJobIDs() ([]string, error)
}

// Projector merges live and disk-derived status into one view. The live
// source is asked first; the disk is consulted only when the live answer
// fails or no live source is wired.
type Projector struct {
	live LiveSource
	disk DiskSource
}

// NewProjector creates a status projector. live may be nil.
func NewProjector(live LiveSource, disk DiskSource) *Projector {
	return &Projector{live: live, disk: disk}
}

// Get returns the status of jobID
func (p *Projector) Get(jobID string) models.JobStatus {
	if p.live != nil {
		st, err := p.live.Status(jobID)
		if err == nil {
			return st
		}
	}
	return p.disk.Recover(jobID)
}

// List returns the status of every job that has a run directory
func (p *Projector) List() ([]models.JobStatus, error) {
	ids, err := p.disk.ListJobIDs()
	if err != nil {
		return nil, err
	}
	out := make([]models.JobStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.Get(id))
	}
	return out, nil
}

// CountByState tallies the states of every known job
func (p *Projector) CountByState() map[models.JobState]int {
	counts := map[models.JobState]int{}
	jobs, err := p.List()
	if err != nil {
		log.Printf("Failed to list jobs: %v", err)
		return counts
	}
	for _, st := range jobs {
		counts[st.State]++
	}
	return counts
}
