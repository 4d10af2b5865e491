// Package core defines the ports (interfaces) and shared types wired between
// the service layer and the adapters. Services depend on these contracts, not
// on concrete implementations.
package core

import (
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
)

// Snapshot is the whole persisted mirror state: every job plus the local id
// counter. Stores commit snapshots atomically as a single logical document.
type Snapshot struct {
	Jobs   []*model.Job `json:"jobs"`
	NextID int64        `json:"nextId"`
}

// Clone returns a deep copy. Readers mutate clones off-lock and commit the
// result through the store's write discipline.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	dup := &Snapshot{NextID: s.NextID}
	if s.Jobs != nil {
		dup.Jobs = make([]*model.Job, len(s.Jobs))
		for i, job := range s.Jobs {
			dup.Jobs[i] = job.Clone()
		}
	}
	return dup
}

// JobKey identifies one mirrored bounty: at most one job may exist per
// (contract address, job id) pair after a reconciler commit.
type JobKey struct {
	ContractAddress string
	JobID           int64
}

// KeyOf builds the duplicate-detection key for a job.
func KeyOf(job *model.Job) JobKey {
	return JobKey{ContractAddress: job.ContractAddress, JobID: job.JobID}
}

// FindJob returns the job with the given id, or nil.
func (s *Snapshot) FindJob(jobID int64) *model.Job {
	for _, job := range s.Jobs {
		if job != nil && job.JobID == jobID {
			return job
		}
	}
	return nil
}

// FindJobOnContract resolves a job id across contract versions: a record on
// the given contract wins, then any non-orphaned record, then an orphaned one.
// After a contract swap the old-contract orphan legally shares its id with the
// live mirror, so a bare-id lookup is not enough for mutations.
func (s *Snapshot) FindJobOnContract(contract string, jobID int64) *model.Job {
	var live, orphaned *model.Job
	for _, job := range s.Jobs {
		if job == nil || job.JobID != jobID {
			continue
		}
		if contract != "" && job.ContractAddress == contract {
			return job
		}
		if job.Status == model.JobStatusOrphaned {
			if orphaned == nil {
				orphaned = job
			}
		} else if live == nil {
			live = job
		}
	}
	if live != nil {
		return live
	}
	return orphaned
}

// IndexJobs returns a lookup map keyed by (contract, id). When duplicates
// exist (legacy data), the synced record wins.
func (s *Snapshot) IndexJobs() map[JobKey]*model.Job {
	index := make(map[JobKey]*model.Job, len(s.Jobs))
	for _, job := range s.Jobs {
		if job == nil {
			continue
		}
		key := KeyOf(job)
		if existing, ok := index[key]; ok && existing.SyncedFromBlockchain && !job.SyncedFromBlockchain {
			continue
		}
		index[key] = job
	}
	return index
}

// Normalize uppercases legacy status spellings in place and reports whether
// anything changed. Stores run this on every read so that callers only ever
// see the canonical status set.
func (s *Snapshot) Normalize() bool {
	changed := false
	for _, job := range s.Jobs {
		if job == nil {
			continue
		}
		if normalized := model.NormalizeJobStatus(string(job.Status)); normalized != job.Status {
			job.Status = normalized
			changed = true
		}
		for _, sub := range job.Submissions {
			if sub == nil {
				continue
			}
			if normalized := model.NormalizeSubmissionStatus(string(sub.Status)); normalized != sub.Status {
				sub.Status = normalized
				changed = true
			}
		}
	}
	return changed
}
