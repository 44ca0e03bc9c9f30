package sync

import (
	"context"
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
)

// Window bounds a transaction fetch by posted date. A zero Start or End
// leaves that side unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects inverted windows
func (w Window) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.Start.After(w.End) {
		return errors.NewFieldValidationError("start date must not be after end date", map[string]string{
			"startDate": w.Start.Format(time.RFC3339),
			"endDate":   w.End.Format(time.RFC3339),
		})
	}
	return nil
}

// IsZero reports whether the window is unbounded on both sides
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// TransactionPage is one page of provider transactions, oldest first.
// An empty NextPageToken means no more pages.
type TransactionPage struct {
	Records       []*transaction.Transaction
	NextPageToken string
}

// ProviderGateway is the contract with the external account-aggregation
// provider. Implementations return errors from the sync taxonomy
// (NetworkError, AuthenticationError, RateLimitError) rather than raw
// transport errors.
type ProviderGateway interface {
	// FetchAccounts returns the provider's current snapshot of every
	// account linked under the credential.
	FetchAccounts(ctx context.Context, credential string) ([]*account.Snapshot, error)

	// FetchTransactions returns one page of transactions for the account,
	// oldest first, bounded by the window. Pass an empty pageToken for the
	// first page.
	FetchTransactions(ctx context.Context, credential, accountID string, window Window, pageToken string) (*TransactionPage, error)
}

// CredentialSource resolves the provider credential for a user. Token
// issuance and refresh live behind this interface; the engine only carries
// opaque credentials.
type CredentialSource interface {
	Credential(ctx context.Context, userID string) (string, error)
}
