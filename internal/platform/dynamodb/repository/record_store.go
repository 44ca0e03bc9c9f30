package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	commonErrors "github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/platform/dynamodb/client"
)

// Single-table layout:
//
//	account     PK=USER#<userId>       SK=ACCOUNT#<accountId>    GSI1PK=ACCOUNT#<accountId> GSI1SK=ACCOUNT
//	transaction PK=ACCOUNT#<accountId> SK=TXN#<transactionId>
//	checkpoint  PK=ACCOUNT#<accountId> SK=SYNC#CHECKPOINT
//	conflict    PK=ACCOUNT#<accountId> SK=CONFLICT#<conflictId>
//
// GSI1 resolves an account by id alone, without knowing its owner.

// DynamoDBRecordStore implements the sync.RecordStore interface
type DynamoDBRecordStore struct {
	client client.Client
	table  string
	logger *slog.Logger
}

var _ sync.RecordStore = (*DynamoDBRecordStore)(nil)

// NewDynamoDBRecordStore creates a new DynamoDBRecordStore
func NewDynamoDBRecordStore(client client.Client, table string, logger *slog.Logger) *DynamoDBRecordStore {
	return &DynamoDBRecordStore{
		client: client,
		table:  table,
		logger: logger,
	}
}

// GetAccount retrieves an account by id via GSI1
func (r *DynamoDBRecordStore) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	keyCondition := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("ACCOUNT#%s", accountID))).
		And(expression.Key("GSI1SK").Equal(expression.Value("ACCOUNT")))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to build account query expression", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String("GSI1"),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to query account", err)
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("account %s: %w", accountID, sync.ErrNotFound)
	}

	var acc account.Account
	if err := attributevalue.UnmarshalMap(result.Items[0], &acc); err != nil {
		return nil, commonErrors.NewUnknownError("failed to unmarshal account", err)
	}
	return &acc, nil
}

// UpsertAccount writes the account record, replacing any previous version
func (r *DynamoDBRecordStore) UpsertAccount(ctx context.Context, acc *account.Account) error {
	item, err := attributevalue.MarshalMap(acc)
	if err != nil {
		return commonErrors.NewUnknownError("failed to marshal account", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", acc.UserID)}
	item["SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", acc.ID)}
	item["GSI1PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", acc.ID)}
	item["GSI1SK"] = &types.AttributeValueMemberS{Value: "ACCOUNT"}
	item["EntityType"] = &types.AttributeValueMemberS{Value: "account"}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return commonErrors.NewUnknownError("failed to put account", err)
	}
	return nil
}

// ListLinkedAccountIDs lists the ids of every account linked to the user
func (r *DynamoDBRecordStore) ListLinkedAccountIDs(ctx context.Context, userID string) ([]string, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", userID))).
		And(expression.Key("SK").BeginsWith("ACCOUNT#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to build account list expression", err)
	}

	var ids []string
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, commonErrors.NewUnknownError("failed to query linked accounts", err)
		}

		var accounts []account.Account
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &accounts); err != nil {
			return nil, commonErrors.NewUnknownError("failed to unmarshal linked accounts", err)
		}
		for _, acc := range accounts {
			ids = append(ids, acc.ID)
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return ids, nil
}

// GetTransaction retrieves a transaction by account and provider id
func (r *DynamoDBRecordStore) GetTransaction(ctx context.Context, accountID, transactionID string) (*transaction.Transaction, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", accountID)},
			"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("TXN#%s", transactionID)},
		},
	})
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to get transaction", err)
	}
	if len(result.Item) == 0 {
		return nil, fmt.Errorf("transaction %s/%s: %w", accountID, transactionID, sync.ErrNotFound)
	}

	var txn transaction.Transaction
	if err := attributevalue.UnmarshalMap(result.Item, &txn); err != nil {
		return nil, commonErrors.NewUnknownError("failed to unmarshal transaction", err)
	}
	return &txn, nil
}

// UpsertTransaction writes the transaction record, replacing any previous
// version
func (r *DynamoDBRecordStore) UpsertTransaction(ctx context.Context, txn *transaction.Transaction) error {
	item, err := attributevalue.MarshalMap(txn)
	if err != nil {
		return commonErrors.NewUnknownError("failed to marshal transaction", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", txn.AccountID)}
	item["SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("TXN#%s", txn.ID)}
	item["EntityType"] = &types.AttributeValueMemberS{Value: "transaction"}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return commonErrors.NewUnknownError("failed to put transaction", err)
	}
	return nil
}

// GetSyncCheckpoint retrieves the account's incremental sync checkpoint
func (r *DynamoDBRecordStore) GetSyncCheckpoint(ctx context.Context, accountID string) (*sync.Checkpoint, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", accountID)},
			"SK": &types.AttributeValueMemberS{Value: "SYNC#CHECKPOINT"},
		},
	})
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to get sync checkpoint", err)
	}
	if len(result.Item) == 0 {
		return nil, fmt.Errorf("checkpoint for account %s: %w", accountID, sync.ErrNotFound)
	}

	var cp sync.Checkpoint
	if err := attributevalue.UnmarshalMap(result.Item, &cp); err != nil {
		return nil, commonErrors.NewUnknownError("failed to unmarshal sync checkpoint", err)
	}
	return &cp, nil
}

// SaveSyncCheckpoint writes the account's incremental sync checkpoint
func (r *DynamoDBRecordStore) SaveSyncCheckpoint(ctx context.Context, cp *sync.Checkpoint) error {
	item, err := attributevalue.MarshalMap(cp)
	if err != nil {
		return commonErrors.NewUnknownError("failed to marshal sync checkpoint", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", cp.AccountID)}
	item["SK"] = &types.AttributeValueMemberS{Value: "SYNC#CHECKPOINT"}
	item["EntityType"] = &types.AttributeValueMemberS{Value: "sync_checkpoint"}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return commonErrors.NewUnknownError("failed to put sync checkpoint", err)
	}
	return nil
}
