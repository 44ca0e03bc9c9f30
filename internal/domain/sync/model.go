package sync

import (
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
)

// Status is the per-account sync state
type Status string

const (
	// StatusIdle means no sync has run or the last outcome was consumed
	StatusIdle Status = "IDLE"
	// StatusSyncing means a pass is in flight
	StatusSyncing Status = "SYNCING"
	// StatusSuccess means the last pass completed cleanly
	StatusSuccess Status = "SUCCESS"
	// StatusError means the last pass failed
	StatusError Status = "ERROR"
	// StatusCancelled means the last pass was cancelled mid-flight
	StatusCancelled Status = "CANCELLED"
)

// Progress counts completed steps within a single pass. Completed only
// increases during a pass and resets to zero when a new pass starts.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// AccountSyncStatus is the read model observers receive. Values are
// snapshots; mutating one has no effect on the tracker.
type AccountSyncStatus struct {
	AccountID    string            `json:"accountId"`
	Status       Status            `json:"status"`
	LastSyncTime *time.Time        `json:"lastSyncTime,omitempty"`
	NextSyncTime *time.Time        `json:"nextSyncTime,omitempty"`
	LastError    *errors.SyncError `json:"lastError,omitempty"`
	Progress     Progress          `json:"progress"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Outcome tags a sync result
type Outcome string

const (
	// OutcomeSuccess means nothing failed
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomePartialSuccess means some records or accounts succeeded and
	// some failed
	OutcomePartialSuccess Outcome = "PARTIAL_SUCCESS"
	// OutcomeFailure means nothing succeeded
	OutcomeFailure Outcome = "FAILURE"
)

// Result summarizes one sync pass, for a single account or aggregated
// across a user's accounts
type Result struct {
	Outcome             Outcome           `json:"outcome"`
	AccountsUpdated     int               `json:"accountsUpdated"`
	TransactionsAdded   int               `json:"transactionsAdded"`
	TransactionsUpdated int               `json:"transactionsUpdated"`
	ConflictsResolved   int               `json:"conflictsResolved"`
	Duration            time.Duration     `json:"duration"`
	// Errors carries the collected failures of a partial success; Err is
	// the single cause of a total failure.
	Errors []*errors.SyncError `json:"errors,omitempty"`
	Err    *errors.SyncError   `json:"error,omitempty"`
}

// progressed reports whether the pass committed anything
func (r Result) progressed() bool {
	return r.AccountsUpdated > 0 || r.TransactionsAdded > 0 || r.TransactionsUpdated > 0 || r.ConflictsResolved > 0
}

// failures returns every error the result carries
func (r Result) failures() []*errors.SyncError {
	if r.Err != nil {
		return append([]*errors.SyncError{r.Err}, r.Errors...)
	}
	return r.Errors
}

// aggregate folds per-account results into one user-level result. Success
// only when nothing failed, failure only when nothing succeeded, partial
// success otherwise.
func aggregate(results []Result, duration time.Duration) Result {
	agg := Result{Duration: duration}
	anyProgress := false
	for _, r := range results {
		agg.AccountsUpdated += r.AccountsUpdated
		agg.TransactionsAdded += r.TransactionsAdded
		agg.TransactionsUpdated += r.TransactionsUpdated
		agg.ConflictsResolved += r.ConflictsResolved
		agg.Errors = append(agg.Errors, r.failures()...)
		if r.progressed() {
			anyProgress = true
		}
	}
	switch {
	case len(agg.Errors) == 0:
		agg.Outcome = OutcomeSuccess
	case anyProgress:
		agg.Outcome = OutcomePartialSuccess
	default:
		agg.Outcome = OutcomeFailure
		agg.Err = agg.Errors[0]
		agg.Errors = agg.Errors[1:]
		if len(agg.Errors) == 0 {
			agg.Errors = nil
		}
	}
	return agg
}
