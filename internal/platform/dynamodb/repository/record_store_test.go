package repository

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/conflict"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
)

// TestClient is an in-memory implementation of the DynamoDB client interface
// for testing. Query supports the two shapes the repositories use: equality
// on GSI1, and PK equality with an optional SK begins_with.
type TestClient struct {
	items map[string]map[string]types.AttributeValue
}

// NewTestClient creates a new test client with an empty items map
func NewTestClient() *TestClient {
	return &TestClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

// GetItem retrieves an item from the in-memory store
func (c *TestClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if item, exists := c.items[itemKey(params.Key)]; exists {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{}}, nil
}

// PutItem adds or updates an item in the in-memory store
func (c *TestClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.items[itemKey(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// Query resolves the expression-builder placeholders back into attribute
// names and values, then matches items against the key condition.
func (c *TestClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	keyValues := make(map[string]string)
	for placeholder, attrName := range params.ExpressionAttributeNames {
		idx := strings.TrimPrefix(placeholder, "#")
		if v, ok := params.ExpressionAttributeValues[":"+idx]; ok {
			keyValues[attrName] = v.(*types.AttributeValueMemberS).Value
		}
	}

	stringAttr := func(item map[string]types.AttributeValue, name string) string {
		v, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			return ""
		}
		return v.Value
	}

	var out []map[string]types.AttributeValue
	beginsWith := strings.Contains(*params.KeyConditionExpression, "begins_with")
	for _, item := range c.items {
		var match bool
		if params.IndexName != nil && *params.IndexName == "GSI1" {
			match = stringAttr(item, "GSI1PK") == keyValues["GSI1PK"] &&
				stringAttr(item, "GSI1SK") == keyValues["GSI1SK"]
		} else {
			match = stringAttr(item, "PK") == keyValues["PK"]
			if match && keyValues["SK"] != "" {
				if beginsWith {
					match = strings.HasPrefix(stringAttr(item, "SK"), keyValues["SK"])
				} else {
					match = stringAttr(item, "SK") == keyValues["SK"]
				}
			}
		}
		if match {
			out = append(out, item)
		}
		if params.Limit != nil && len(out) >= int(*params.Limit) {
			break
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func testAccount(id, userID string) *account.Account {
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	return &account.Account{
		ID:              id,
		UserID:          userID,
		InstitutionID:   "inst-1",
		InstitutionName: "First National",
		Type:            account.Checking,
		Balance:         account.Money{Amount: 120000, Currency: "USD"},
		Active:          true,
		LastUpdated:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestRecordStoreAccounts(t *testing.T) {
	t.Run("upsert and get roundtrip", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		acc := testAccount("acc-1", "user-1")
		require.NoError(t, store.UpsertAccount(context.Background(), acc))

		got, err := store.GetAccount(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", got.ID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, account.Checking, got.Type)
		assert.Equal(t, account.Money{Amount: 120000, Currency: "USD"}, got.Balance)
		assert.True(t, got.Active)
		assert.NoError(t, got.Validate())
	})

	t.Run("table bookkeeping attributes stay out of the record", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		require.NoError(t, store.UpsertAccount(context.Background(), testAccount("acc-1", "user-1")))

		for _, stored := range client.items {
			entity, ok := stored["EntityType"].(*types.AttributeValueMemberS)
			require.True(t, ok)
			assert.Equal(t, "account", entity.Value)
		}

		got, err := store.GetAccount(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, account.Checking, got.Type)
	})

	t.Run("missing account returns ErrNotFound", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		_, err := store.GetAccount(context.Background(), "acc-missing")
		assert.ErrorIs(t, err, sync.ErrNotFound)
	})

	t.Run("upsert replaces the previous record", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		acc := testAccount("acc-1", "user-1")
		require.NoError(t, store.UpsertAccount(context.Background(), acc))
		acc.Balance = account.Money{Amount: 99000, Currency: "USD"}
		acc.Active = false
		require.NoError(t, store.UpsertAccount(context.Background(), acc))

		got, err := store.GetAccount(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(99000), got.Balance.Amount)
		assert.False(t, got.Active)
	})

	t.Run("list linked accounts is scoped to the user", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		require.NoError(t, store.UpsertAccount(context.Background(), testAccount("acc-1", "user-1")))
		require.NoError(t, store.UpsertAccount(context.Background(), testAccount("acc-2", "user-1")))
		require.NoError(t, store.UpsertAccount(context.Background(), testAccount("acc-3", "user-2")))

		ids, err := store.ListLinkedAccountIDs(context.Background(), "user-1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"acc-1", "acc-2"}, ids)
	})
}

func TestRecordStoreTransactions(t *testing.T) {
	posted := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	txn := &transaction.Transaction{
		ID:          "txn-1",
		AccountID:   "acc-1",
		Amount:      account.Money{Amount: -4250, Currency: "USD"},
		PostedAt:    posted,
		Description: "Coffee Shop",
		Category:    "dining",
		CreatedAt:   posted,
		UpdatedAt:   posted,
	}

	t.Run("upsert and get roundtrip", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		require.NoError(t, store.UpsertTransaction(context.Background(), txn))

		got, err := store.GetTransaction(context.Background(), "acc-1", "txn-1")
		require.NoError(t, err)
		assert.Equal(t, "Coffee Shop", got.Description)
		assert.Equal(t, int64(-4250), got.Amount.Amount)
		assert.True(t, got.PostedAt.Equal(posted))
	})

	t.Run("missing transaction returns ErrNotFound", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		_, err := store.GetTransaction(context.Background(), "acc-1", "txn-missing")
		assert.ErrorIs(t, err, sync.ErrNotFound)
	})
}

func TestRecordStoreCheckpoints(t *testing.T) {
	t.Run("save and get roundtrip", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		last := time.Date(2024, 4, 10, 6, 30, 0, 0, time.UTC)
		cp := &sync.Checkpoint{AccountID: "acc-1", LastSyncTime: last, UpdatedAt: last}
		require.NoError(t, store.SaveSyncCheckpoint(context.Background(), cp))

		got, err := store.GetSyncCheckpoint(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.True(t, got.LastSyncTime.Equal(last))
	})

	t.Run("missing checkpoint returns ErrNotFound", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		_, err := store.GetSyncCheckpoint(context.Background(), "acc-1")
		assert.ErrorIs(t, err, sync.ErrNotFound)
	})

	t.Run("checkpoint does not collide with transactions", func(t *testing.T) {
		client := NewTestClient()
		store := NewDynamoDBRecordStore(client, "test-table", slog.Default())

		posted := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpsertTransaction(context.Background(), &transaction.Transaction{
			ID:          "txn-1",
			AccountID:   "acc-1",
			Amount:      account.Money{Amount: -100, Currency: "USD"},
			PostedAt:    posted,
			Description: "Coffee Shop",
		}))
		require.NoError(t, store.SaveSyncCheckpoint(context.Background(), &sync.Checkpoint{
			AccountID:    "acc-1",
			LastSyncTime: posted,
		}))

		_, err := store.GetTransaction(context.Background(), "acc-1", "txn-1")
		assert.NoError(t, err)
		_, err = store.GetSyncCheckpoint(context.Background(), "acc-1")
		assert.NoError(t, err)
	})
}

func TestConflictLog(t *testing.T) {
	client := NewTestClient()
	log := NewDynamoDBConflictLog(client, "test-table", slog.Default())

	resolver := conflict.NewResolver()
	local := testAccount("acc-1", "user-1")
	snap := &account.Snapshot{
		AccountID:       "acc-1",
		InstitutionID:   "inst-1",
		InstitutionName: "First National",
		Type:            account.Checking,
		Balance:         account.Money{Amount: 115000, Currency: "USD"},
		Active:          true,
		AsOf:            time.Now().UTC(),
	}
	_, details := resolver.ResolveAccount(local, snap)
	require.Len(t, details, 1)

	require.NoError(t, log.RecordConflict(context.Background(), details[0]))

	got, err := log.ListConflicts(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, conflict.BalanceMismatch, got[0].Type)
	assert.Equal(t, conflict.UseRemote, got[0].Resolution)
	assert.Equal(t, details[0].ID, got[0].ID)
}
