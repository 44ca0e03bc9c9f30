package conflict

import (
	"encoding/json"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// Type identifies the kind of conflict detected during a merge
type Type string

const (
	// DuplicateTransaction means the provider reused a transaction id for
	// what appears to be a different transaction
	DuplicateTransaction Type = "DUPLICATE_TRANSACTION"
	// ModifiedTransaction means the same transaction differs between the
	// local record and the provider
	ModifiedTransaction Type = "MODIFIED_TRANSACTION"
	// BalanceMismatch means the local balance disagrees with the provider
	BalanceMismatch Type = "BALANCE_MISMATCH"
	// AccountStatusChange means the provider reports a different active
	// status than the local record
	AccountStatusChange Type = "ACCOUNT_STATUS_CHANGE"
)

// Resolution is the decision applied to a conflict
type Resolution string

const (
	// UseLocal keeps the local record untouched
	UseLocal Resolution = "USE_LOCAL"
	// UseRemote replaces the local record with the provider's value
	UseRemote Resolution = "USE_REMOTE"
	// ManualReviewRequired leaves the local record untouched and surfaces
	// the conflict for a human decision
	ManualReviewRequired Resolution = "MANUAL_REVIEW_REQUIRED"
)

// Details records a detected conflict: the two competing values and the
// resolution applied. The prior local value is kept here for audit even when
// the remote value wins.
type Details struct {
	ID            string          `json:"conflictId"`
	Type          Type            `json:"conflictType"`
	AccountID     string          `json:"accountId"`
	TransactionID string          `json:"transactionId,omitempty"`
	LocalData     json.RawMessage `json:"localData,omitempty"`
	RemoteData    json.RawMessage `json:"remoteData,omitempty"`
	Resolution    Resolution      `json:"resolution"`
	DetectedAt    time.Time       `json:"detectedAt"`
}

func newDetails(typ Type, accountID, transactionID string, local, remote interface{}, resolution Resolution) *Details {
	d := &Details{
		ID:            ulid.Make().String(),
		Type:          typ,
		AccountID:     accountID,
		TransactionID: transactionID,
		Resolution:    resolution,
		DetectedAt:    time.Now().UTC(),
	}
	// Marshal failures are impossible for our domain structs; keep the
	// conflict record even if a payload is missing.
	if local != nil {
		if raw, err := json.Marshal(local); err == nil {
			d.LocalData = raw
		}
	}
	if remote != nil {
		if raw, err := json.Marshal(remote); err == nil {
			d.RemoteData = raw
		}
	}
	return d
}
