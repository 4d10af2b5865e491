package service

import (
	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
)

// changedJob pairs a reconciler-modified job with the id it had when the cycle
// snapshot was taken, so the merge can locate the stored record even after a
// legacy id reconcile.
type changedJob struct {
	originalID int64
	job        *model.Job
}

// changeSet is everything one reconciler cycle wants to commit.
type changeSet struct {
	updated []changedJob
	created []*model.Job
	// nextID is the cycle's counter after applying the max(chainID+1) rule.
	nextID int64
	// keyCensus is the authoritative per-key record count after the cycle's
	// duplicate pass; merge removes excess unsynced entries beyond it.
	keyCensus map[core.JobKey]int
}

// isEmpty reports whether the cycle produced nothing beyond the stored state,
// letting an idle cycle skip the commit entirely.
func (cs *changeSet) isEmpty(storedNextID int64) bool {
	return len(cs.updated) == 0 && len(cs.created) == 0 && cs.nextID == storedNextID
}

// mergeInto applies the change set onto a freshly read snapshot. Concurrent
// local mutators own the patch-preserve fields {txHash, blockNumber, onChain,
// contractAddress}: a non-null fresh value wins over the cycle's value.
// Untouched jobs keep their fresh state entirely.
func (cs *changeSet) mergeInto(fresh *core.Snapshot) {
	for _, change := range cs.updated {
		idx, ok := findMergeTarget(fresh.Jobs, change.job.ContractAddress, change.originalID)
		if !ok {
			idx, ok = findMergeTarget(fresh.Jobs, change.job.ContractAddress, change.job.JobID)
		}
		if !ok {
			// Deleted between snapshot and commit; reinstate the cycle's view.
			fresh.Jobs = append(fresh.Jobs, change.job.Clone())
			continue
		}
		fresh.Jobs[idx] = mergeJob(fresh.Jobs[idx], change.job)
	}

	for _, created := range cs.created {
		if idx, ok := findMergeTarget(fresh.Jobs, created.ContractAddress, created.JobID); ok {
			// A concurrent mutator linked a local job to this bounty in the
			// gap between snapshot and commit. Treat as update, not append.
			fresh.Jobs[idx] = mergeJob(fresh.Jobs[idx], created)
			continue
		}
		if idx, ok := findLateLink(fresh, created); ok {
			fresh.Jobs[idx] = mergeJob(fresh.Jobs[idx], created)
			continue
		}
		fresh.Jobs = append(fresh.Jobs, created.Clone())
	}

	if cs.keyCensus != nil {
		fresh.Jobs = reduceDuplicates(fresh.Jobs, cs.keyCensus)
	}

	if cs.nextID > fresh.NextID {
		fresh.NextID = cs.nextID
	}
}

// mergeJob folds the cycle's updates into the stored record. The cycle's view
// wins except for the mutator-owned fields, which keep the stored value when
// it is non-null.
func mergeJob(stored, cycle *model.Job) *model.Job {
	merged := cycle.Clone()
	if stored == nil {
		return merged
	}
	if stored.TxHash != "" {
		merged.TxHash = stored.TxHash
	}
	if stored.BlockNumber != 0 {
		merged.BlockNumber = stored.BlockNumber
	}
	if stored.OnChain {
		merged.OnChain = true
	}
	if stored.ContractAddress != "" {
		merged.ContractAddress = stored.ContractAddress
	}
	return merged
}

// findMergeTarget locates the stored record a cycle change addresses: an
// exact (contract, id) match wins, and a bare-id fallback applies only when
// one side carries no contract stamp. A same-id record on a different
// contract, the orphan left behind by a contract swap, is never a target.
func findMergeTarget(jobs []*model.Job, contract string, id int64) (int, bool) {
	fallback := -1
	for i, job := range jobs {
		if job == nil || job.JobID != id {
			continue
		}
		if job.ContractAddress == contract {
			return i, true
		}
		if fallback < 0 && (job.ContractAddress == "" || contract == "") {
			fallback = i
		}
	}
	if fallback >= 0 {
		return fallback, true
	}
	return -1, false
}

// findLateLink locates a stored job that a concurrent mutator tied to the same
// bounty the cycle is about to create, by evaluation package identity.
func findLateLink(fresh *core.Snapshot, created *model.Job) (int, bool) {
	if created.EvaluationCID == "" {
		return 0, false
	}
	for i, job := range fresh.Jobs {
		if job == nil || job.SyncedFromBlockchain {
			continue
		}
		if job.EvaluationCID == created.EvaluationCID {
			return i, true
		}
	}
	return 0, false
}

// reduceDuplicates trims the job list down to the per-key census, preferring
// synced records over unsynced ones.
func reduceDuplicates(jobs []*model.Job, census map[core.JobKey]int) []*model.Job {
	counts := make(map[core.JobKey]int, len(jobs))
	for _, job := range jobs {
		if job != nil {
			counts[core.KeyOf(job)]++
		}
	}

	out := make([]*model.Job, 0, len(jobs))
	kept := make(map[core.JobKey]int, len(counts))
	// First pass keeps synced records, second pass fills the remaining quota
	// with unsynced ones in stored order.
	for pass := 0; pass < 2; pass++ {
		for _, job := range jobs {
			if job == nil {
				continue
			}
			key := core.KeyOf(job)
			if pass == 0 && !job.SyncedFromBlockchain {
				continue
			}
			if pass == 1 && job.SyncedFromBlockchain {
				continue
			}
			allowed, tracked := census[key]
			if !tracked {
				allowed = counts[key]
			}
			if kept[key] >= allowed {
				continue
			}
			kept[key]++
			out = append(out, job)
		}
	}

	// Restore stored order.
	order := make(map[*model.Job]int, len(jobs))
	for i, job := range jobs {
		order[job] = i
	}
	sortJobsByStoredOrder(out, order)
	return out
}

func sortJobsByStoredOrder(jobs []*model.Job, order map[*model.Job]int) {
	// Insertion sort; duplicate reduction touches small slices.
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && order[jobs[j-1]] > order[jobs[j]]; j-- {
			jobs[j-1], jobs[j] = jobs[j], jobs[j-1]
		}
	}
}
