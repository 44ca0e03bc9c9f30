package account

import (
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
)

// Type represents the type of a linked account
type Type string

const (
	// Checking represents a checking account
	Checking Type = "checking"
	// Savings represents a savings account
	Savings Type = "savings"
	// CreditCard represents a credit card account
	CreditCard Type = "credit_card"
	// Investment represents an investment account
	Investment Type = "investment"
	// Loan represents a loan account
	Loan Type = "loan"
	// Mortgage represents a mortgage account
	Mortgage Type = "mortgage"
)

// Valid reports whether t is a known account type
func (t Type) Valid() bool {
	switch t {
	case Checking, Savings, CreditCard, Investment, Loan, Mortgage:
		return true
	}
	return false
}

// Money is a monetary amount in the smallest currency unit (e.g. cents)
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Equal reports whether two amounts match in both value and currency
func (m Money) Equal(o Money) bool {
	return m.Amount == o.Amount && m.Currency == o.Currency
}

// Account represents a linked account held in the local record store
type Account struct {
	// Primary attributes
	ID              string `json:"accountId"` // provider account id
	UserID          string `json:"userId"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
	Type            Type   `json:"accountType"`

	// Balances are last-write-wins from the provider
	Balance          Money  `json:"balance"`
	AvailableBalance *Money `json:"availableBalance,omitempty"`

	// A provider-reported removal flips Active to false; records are never
	// physically deleted so transaction history stays intact.
	Active      bool      `json:"active"`
	LastUpdated time.Time `json:"lastUpdated"`

	// Metadata
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the account's internal invariants
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.NewValidationError("account id is required")
	}
	if a.UserID == "" {
		return errors.NewValidationError("account user id is required")
	}
	if !a.Type.Valid() {
		return errors.NewValidationError("unknown account type: " + string(a.Type))
	}
	if a.Balance.Currency == "" {
		return errors.NewValidationError("account balance currency is required")
	}
	if a.AvailableBalance != nil && a.AvailableBalance.Currency != a.Balance.Currency {
		return errors.NewFieldValidationError("available balance currency must match account currency", map[string]string{
			"availableBalance.currency": a.AvailableBalance.Currency,
			"balance.currency":          a.Balance.Currency,
		})
	}
	return nil
}

// Snapshot is the provider's current view of an account
type Snapshot struct {
	AccountID        string    `json:"accountId"`
	InstitutionID    string    `json:"institutionId"`
	InstitutionName  string    `json:"institutionName"`
	Type             Type      `json:"accountType"`
	Balance          Money     `json:"balance"`
	AvailableBalance *Money    `json:"availableBalance,omitempty"`
	Active           bool      `json:"active"`
	AsOf             time.Time `json:"asOf"`
}

// Validate checks the snapshot's internal invariants
func (s *Snapshot) Validate() error {
	if s.AccountID == "" {
		return errors.NewValidationError("snapshot account id is required")
	}
	if s.Balance.Currency == "" {
		return errors.NewValidationError("snapshot balance currency is required")
	}
	if s.AvailableBalance != nil && s.AvailableBalance.Currency != s.Balance.Currency {
		return errors.NewValidationError("snapshot available balance currency must match balance currency")
	}
	return nil
}

// NewFromSnapshot builds a local account record from the first successful
// fetch of a provider snapshot
func NewFromSnapshot(userID string, snap *Snapshot) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:               snap.AccountID,
		UserID:           userID,
		InstitutionID:    snap.InstitutionID,
		InstitutionName:  snap.InstitutionName,
		Type:             snap.Type,
		Balance:          snap.Balance,
		AvailableBalance: snap.AvailableBalance,
		Active:           snap.Active,
		LastUpdated:      snap.AsOf,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
