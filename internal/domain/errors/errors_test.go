package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncErrorRetryable(t *testing.T) {
	t.Run("network and rate limit errors are retryable", func(t *testing.T) {
		assert.True(t, NewNetworkError("connection reset", nil).Retryable())
		assert.True(t, NewRateLimitError(10*time.Second).Retryable())
	})

	t.Run("everything else is not", func(t *testing.T) {
		assert.False(t, NewAuthenticationError("acc-1", "token revoked").Retryable())
		assert.False(t, NewDataConflictError("acc-1", "txn-1", "id reused").Retryable())
		assert.False(t, NewValidationError("bad window").Retryable())
		assert.False(t, NewUnknownError("boom", nil).Retryable())
	})
}

func TestSyncErrorIs(t *testing.T) {
	t.Run("matches on code", func(t *testing.T) {
		err := NewNetworkError("connection reset", nil)
		assert.True(t, stderrors.Is(err, &SyncError{Code: CodeNetwork}))
		assert.False(t, stderrors.Is(err, &SyncError{Code: CodeRateLimit}))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("fetch page 3: %w", NewRateLimitError(0))
		assert.True(t, stderrors.Is(err, &SyncError{Code: CodeRateLimit}))
	})
}

func TestSyncErrorUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: i/o timeout")
	err := NewNetworkError("provider unreachable", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "NETWORK_ERROR")
	assert.Contains(t, err.Error(), "i/o timeout")
}

func TestClassify(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Classify(nil))
	})

	t.Run("classified errors pass through", func(t *testing.T) {
		err := NewAuthenticationError("acc-1", "token revoked")
		assert.Same(t, err, Classify(err))
	})

	t.Run("wrapped classified errors pass through", func(t *testing.T) {
		inner := NewRateLimitError(5 * time.Second)
		got := Classify(fmt.Errorf("page fetch: %w", inner))
		assert.Same(t, inner, got)
	})

	t.Run("unclassified errors become unknown", func(t *testing.T) {
		got := Classify(stderrors.New("surprise"))
		require.NotNil(t, got)
		assert.Equal(t, CodeUnknown, got.Code)
		assert.False(t, got.Retryable())
	})
}

func TestWithDetail(t *testing.T) {
	err := NewDataConflictError("acc-1", "txn-9", "id reused").
		WithDetail("conflictId", "01HZX")

	assert.Equal(t, "acc-1", err.AccountID)
	assert.Equal(t, "txn-9", err.Details["transactionId"])
	assert.Equal(t, "01HZX", err.Details["conflictId"])
}

func TestFieldValidationError(t *testing.T) {
	err := NewFieldValidationError("start date must not be after end date", map[string]string{
		"startDate": "2024-05-01",
		"endDate":   "2024-04-01",
	})

	assert.Equal(t, CodeValidation, err.Code)
	assert.Len(t, err.FieldErrors, 2)
}
