package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
)

func validTransaction() *Transaction {
	return &Transaction{
		ID:          "txn-1",
		AccountID:   "acc-1",
		Amount:      account.Money{Amount: -4250, Currency: "USD"},
		PostedAt:    time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
		Description: "Coffee Shop",
	}
}

func TestTransactionValidate(t *testing.T) {
	assert.NoError(t, validTransaction().Validate())

	txn := validTransaction()
	txn.ID = ""
	assert.Error(t, txn.Validate())

	txn = validTransaction()
	txn.AccountID = ""
	assert.Error(t, txn.Validate())

	txn = validTransaction()
	txn.Amount.Currency = ""
	assert.Error(t, txn.Validate())

	txn = validTransaction()
	txn.PostedAt = time.Time{}
	assert.Error(t, txn.Validate())
}

func TestSameUserContent(t *testing.T) {
	a := validTransaction()
	b := validTransaction()
	assert.True(t, a.SameUserContent(b))

	b.Category = "dining"
	assert.False(t, a.SameUserContent(b))

	b = validTransaction()
	b.ProviderUpdatedAt = time.Now()
	// Provider bookkeeping is not user content.
	assert.True(t, a.SameUserContent(b))
	assert.False(t, a.SameProviderMetadata(b))
}

func TestNormalizedDescription(t *testing.T) {
	txn := validTransaction()
	txn.Description = "  COFFEE   Shop \t#42 "
	assert.Equal(t, "coffee shop #42", txn.NormalizedDescription())
}
