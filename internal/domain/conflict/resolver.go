package conflict

import (
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
)

// idReuseWindow is how far apart posted dates must be, on top of a differing
// amount and description, before an id collision is treated as provider id
// reuse instead of an edit.
const idReuseWindow = 72 * time.Hour

// Resolver decides how a local record and a remote record with the same
// identity merge. The provider is the authoritative ledger, so monetary
// fields are never averaged or guessed: remote wins and the prior local value
// is preserved in the conflict details for audit.
type Resolver struct{}

// NewResolver creates a new conflict resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveTransaction merges a local and remote transaction sharing an id.
// It returns the record to keep, the resolution applied, and conflict details
// when the merge is worth auditing (nil for no-ops and pure metadata updates).
func (r *Resolver) ResolveTransaction(local, remote *transaction.Transaction) (*transaction.Transaction, Resolution, *Details) {
	// Identical on every field the user can see and every provider
	// bookkeeping field: keep local, avoid a spurious write.
	if local.SameUserContent(remote) && local.SameProviderMetadata(remote) {
		return local, UseLocal, nil
	}

	// Only provider-internal metadata differs: the provider owns those
	// fields, take its values without flagging a conflict.
	if local.SameUserContent(remote) {
		merged := *local
		merged.ProviderUpdatedAt = remote.ProviderUpdatedAt
		merged.RawCategoryID = remote.RawCategoryID
		merged.UpdatedAt = time.Now().UTC()
		return &merged, UseRemote, nil
	}

	// Same id but the records look like genuinely different transactions:
	// the merge is not applied, local stays, a human decides.
	if looksLikeIDReuse(local, remote) {
		d := newDetails(DuplicateTransaction, local.AccountID, local.ID, local, remote, ManualReviewRequired)
		return local, ManualReviewRequired, d
	}

	// Amount or posted date changed. Last-writer-wins from the provider;
	// the prior local value survives in the conflict details.
	merged := *remote
	merged.CreatedAt = local.CreatedAt
	merged.UpdatedAt = time.Now().UTC()
	d := newDetails(ModifiedTransaction, local.AccountID, local.ID, local, remote, UseRemote)
	return &merged, UseRemote, d
}

// ResolveAccount reconciles a local account against the provider's snapshot.
// Balance and status disagreements always resolve USE_REMOTE; the returned
// details record what changed.
func (r *Resolver) ResolveAccount(local *account.Account, remote *account.Snapshot) (*account.Account, []*Details) {
	var details []*Details

	if !local.Balance.Equal(remote.Balance) || !availableEqual(local.AvailableBalance, remote.AvailableBalance) {
		details = append(details, newDetails(BalanceMismatch, local.ID, "", local.Balance, remote.Balance, UseRemote))
	}
	if local.Active != remote.Active {
		details = append(details, newDetails(AccountStatusChange, local.ID, "", local.Active, remote.Active, UseRemote))
	}

	merged := *local
	merged.InstitutionName = remote.InstitutionName
	merged.Type = remote.Type
	merged.Balance = remote.Balance
	merged.AvailableBalance = remote.AvailableBalance
	merged.Active = remote.Active
	merged.LastUpdated = remote.AsOf
	merged.UpdatedAt = time.Now().UTC()
	return &merged, details
}

// looksLikeIDReuse detects provider id collisions: every user-meaningful
// axis disagrees at once, which an edit never does.
func looksLikeIDReuse(local, remote *transaction.Transaction) bool {
	if local.NormalizedDescription() == remote.NormalizedDescription() {
		return false
	}
	if local.Amount.Equal(remote.Amount) {
		return false
	}
	gap := local.PostedAt.Sub(remote.PostedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap > idReuseWindow
}

func availableEqual(a, b *account.Money) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
