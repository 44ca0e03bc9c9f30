package sync

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/conflict"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
)

// ErrNotFound is returned by RecordStore lookups for absent records
var ErrNotFound = stderrors.New("record not found")

// Checkpoint is the durable incremental-sync cursor for one account
type Checkpoint struct {
	AccountID    string    `json:"accountId"`
	LastSyncTime time.Time `json:"lastSyncTime"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecordStore is the local persistent store of accounts and transactions.
// Every operation is per-record; no multi-record transaction is assumed, so
// callers must tolerate a crash between individual upserts and re-apply
// idempotently on retry.
type RecordStore interface {
	// GetAccount returns the account or ErrNotFound
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)

	// UpsertAccount creates or replaces the account record
	UpsertAccount(ctx context.Context, acc *account.Account) error

	// GetTransaction returns the transaction or ErrNotFound
	GetTransaction(ctx context.Context, accountID, transactionID string) (*transaction.Transaction, error)

	// UpsertTransaction creates or replaces the transaction record
	UpsertTransaction(ctx context.Context, txn *transaction.Transaction) error

	// ListLinkedAccountIDs returns the ids of every account linked to the user
	ListLinkedAccountIDs(ctx context.Context, userID string) ([]string, error)

	// GetSyncCheckpoint returns the account's incremental cursor or ErrNotFound
	GetSyncCheckpoint(ctx context.Context, accountID string) (*Checkpoint, error)

	// SaveSyncCheckpoint creates or replaces the account's incremental cursor
	SaveSyncCheckpoint(ctx context.Context, cp *Checkpoint) error
}

// ConflictLog is the audit trail of conflict resolutions. Appending is best
// effort; a log failure never fails the merge that produced it.
type ConflictLog interface {
	RecordConflict(ctx context.Context, details *conflict.Details) error
}
