package sync

import (
	stderrors "errors"
	stdsync "sync"
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
)

// ErrInvalidTransition is returned for a status change the state machine
// does not allow
var ErrInvalidTransition = stderrors.New("invalid sync status transition")

// Tracker owns every AccountSyncStatus. Statuses are created lazily the
// first time an account is scheduled; observers only ever receive value
// snapshots, so a reader can never see a half-updated status.
//
// Subscriptions are last-value-wins: a slow consumer observes the latest
// status, not every intermediate transition.
type Tracker struct {
	mu        stdsync.RWMutex
	statuses  map[string]*AccountSyncStatus
	subs      map[string]map[int]chan AccountSyncStatus // accountID -> subscriber set
	allSubs   map[int]chan AccountSyncStatus
	nextSubID int
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]*AccountSyncStatus),
		subs:     make(map[string]map[int]chan AccountSyncStatus),
		allSubs:  make(map[int]chan AccountSyncStatus),
	}
}

// StartPass transitions the account to SYNCING and resets progress. Allowed
// from any settled state; returns ErrInvalidTransition if a pass is already
// in flight (callers coalesce instead of stacking passes).
func (t *Tracker) StartPass(accountID string) error {
	t.mu.Lock()
	st := t.status(accountID)
	if st.Status == StatusSyncing {
		t.mu.Unlock()
		return ErrInvalidTransition
	}
	st.Status = StatusSyncing
	st.Progress = Progress{}
	st.LastError = nil
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	t.mu.Unlock()
	t.publish(snapshot)
	return nil
}

// AddTotal grows the expected step count for the current pass
func (t *Tracker) AddTotal(accountID string, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	st := t.status(accountID)
	st.Progress.Total += n
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	t.mu.Unlock()
	t.publish(snapshot)
}

// Advance marks n steps complete. Progress is monotonic within a pass;
// non-positive deltas are ignored.
func (t *Tracker) Advance(accountID string, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	st := t.status(accountID)
	st.Progress.Completed += n
	if st.Progress.Completed > st.Progress.Total {
		st.Progress.Total = st.Progress.Completed
	}
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	t.mu.Unlock()
	t.publish(snapshot)
}

// FinishSuccess settles the pass as SUCCESS and records the sync time.
// Remaining steps are folded so completed always equals total on success.
func (t *Tracker) FinishSuccess(accountID string, syncTime time.Time) error {
	return t.finish(accountID, StatusSuccess, nil, &syncTime)
}

// FinishError settles the pass as ERROR, preserving progress accumulated so far
func (t *Tracker) FinishError(accountID string, syncErr *errors.SyncError) error {
	return t.finish(accountID, StatusError, syncErr, nil)
}

// Cancel transitions a SYNCING account to CANCELLED. Reports whether the
// transition happened; CANCELLED is only reachable from SYNCING.
func (t *Tracker) Cancel(accountID string) bool {
	t.mu.Lock()
	st, ok := t.statuses[accountID]
	if !ok || st.Status != StatusSyncing {
		t.mu.Unlock()
		return false
	}
	st.Status = StatusCancelled
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	t.mu.Unlock()
	t.publish(snapshot)
	return true
}

func (t *Tracker) finish(accountID string, status Status, syncErr *errors.SyncError, syncTime *time.Time) error {
	t.mu.Lock()
	st, ok := t.statuses[accountID]
	if !ok || (st.Status != StatusSyncing && st.Status != StatusCancelled) {
		t.mu.Unlock()
		return ErrInvalidTransition
	}
	// A cancelled pass stays cancelled; the worker finishing late must not
	// overwrite what the observer already saw.
	if st.Status == StatusCancelled {
		t.mu.Unlock()
		return nil
	}
	st.Status = status
	st.LastError = syncErr
	if syncTime != nil {
		ts := *syncTime
		st.LastSyncTime = &ts
	}
	if status == StatusSuccess {
		st.Progress.Total = st.Progress.Completed
	}
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	t.mu.Unlock()
	t.publish(snapshot)
	return nil
}

// SetNextSyncTime records when the scheduler will trigger the next pass
func (t *Tracker) SetNextSyncTime(accountID string, next time.Time) {
	t.mu.Lock()
	st := t.status(accountID)
	ts := next
	st.NextSyncTime = &ts
	st.UpdatedAt = time.Now().UTC()
	snapshot := *st
	t.mu.Unlock()
	t.publish(snapshot)
}

// Snapshot returns a copy of the account's current status
func (t *Tracker) Snapshot(accountID string) (AccountSyncStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[accountID]
	if !ok {
		return AccountSyncStatus{}, false
	}
	return *st, true
}

// SnapshotAll returns a copy of every tracked status
func (t *Tracker) SnapshotAll() []AccountSyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]AccountSyncStatus, 0, len(t.statuses))
	for _, st := range t.statuses {
		out = append(out, *st)
	}
	return out
}

// Subscribe returns a channel carrying the account's latest status and a
// cancel function. The channel has capacity one and stale values are
// replaced, never queued.
func (t *Tracker) Subscribe(accountID string) (<-chan AccountSyncStatus, func()) {
	ch := make(chan AccountSyncStatus, 1)
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	if t.subs[accountID] == nil {
		t.subs[accountID] = make(map[int]chan AccountSyncStatus)
	}
	t.subs[accountID][id] = ch
	if st, ok := t.statuses[accountID]; ok {
		ch <- *st
	}
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		delete(t.subs[accountID], id)
		t.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeAll is like Subscribe but delivers updates for every account
func (t *Tracker) SubscribeAll() (<-chan AccountSyncStatus, func()) {
	ch := make(chan AccountSyncStatus, 1)
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.allSubs[id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		delete(t.allSubs, id)
		t.mu.Unlock()
	}
	return ch, cancel
}

// status returns the tracked status, creating the IDLE entry lazily.
// Caller must hold t.mu.
func (t *Tracker) status(accountID string) *AccountSyncStatus {
	st, ok := t.statuses[accountID]
	if !ok {
		st = &AccountSyncStatus{
			AccountID: accountID,
			Status:    StatusIdle,
			UpdatedAt: time.Now().UTC(),
		}
		t.statuses[accountID] = st
	}
	return st
}

func (t *Tracker) publish(snapshot AccountSyncStatus) {
	t.mu.RLock()
	targets := make([]chan AccountSyncStatus, 0, len(t.subs[snapshot.AccountID])+len(t.allSubs))
	for _, ch := range t.subs[snapshot.AccountID] {
		targets = append(targets, ch)
	}
	for _, ch := range t.allSubs {
		targets = append(targets, ch)
	}
	t.mu.RUnlock()

	for _, ch := range targets {
		// Replace a stale pending value with the fresh one.
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
