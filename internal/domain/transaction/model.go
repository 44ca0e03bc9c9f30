package transaction

import (
	"strings"
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
)

// Transaction represents a single transaction on a linked account
type Transaction struct {
	ID          string        `json:"transactionId"` // provider transaction id
	AccountID   string        `json:"accountId"`
	Amount      account.Money `json:"amount"`
	PostedAt    time.Time     `json:"postedAt"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Pending     bool          `json:"pending"`

	// Provider bookkeeping fields; the provider is the source of truth for
	// these and they merge last-write-wins.
	ProviderUpdatedAt time.Time `json:"providerUpdatedAt,omitempty"`
	RawCategoryID     string    `json:"rawCategoryId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the transaction's internal invariants
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return errors.NewValidationError("transaction id is required")
	}
	if t.AccountID == "" {
		return errors.NewValidationError("transaction account id is required")
	}
	if t.Amount.Currency == "" {
		return errors.NewValidationError("transaction currency is required")
	}
	if t.PostedAt.IsZero() {
		return errors.NewValidationError("transaction posted date is required")
	}
	return nil
}

// SameUserContent reports whether the user-meaningful fields match
func (t *Transaction) SameUserContent(o *Transaction) bool {
	return t.Amount.Equal(o.Amount) &&
		t.PostedAt.Equal(o.PostedAt) &&
		t.Description == o.Description &&
		t.Category == o.Category &&
		t.Pending == o.Pending
}

// SameProviderMetadata reports whether the provider bookkeeping fields match
func (t *Transaction) SameProviderMetadata(o *Transaction) bool {
	return t.ProviderUpdatedAt.Equal(o.ProviderUpdatedAt) &&
		t.RawCategoryID == o.RawCategoryID
}

// NormalizedDescription lowercases and collapses whitespace for fuzzy
// comparisons between local and remote descriptions
func (t *Transaction) NormalizedDescription() string {
	return strings.Join(strings.Fields(strings.ToLower(t.Description)), " ")
}
