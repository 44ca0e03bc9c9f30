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

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/conflict"
	commonErrors "github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/platform/dynamodb/client"
)

// DynamoDBConflictLog implements the sync.ConflictLog interface. Conflicts
// are append-only audit records keyed under their account partition.
type DynamoDBConflictLog struct {
	client client.Client
	table  string
	logger *slog.Logger
}

var _ sync.ConflictLog = (*DynamoDBConflictLog)(nil)

// NewDynamoDBConflictLog creates a new DynamoDBConflictLog
func NewDynamoDBConflictLog(client client.Client, table string, logger *slog.Logger) *DynamoDBConflictLog {
	return &DynamoDBConflictLog{
		client: client,
		table:  table,
		logger: logger,
	}
}

// RecordConflict appends one conflict record
func (r *DynamoDBConflictLog) RecordConflict(ctx context.Context, details *conflict.Details) error {
	item, err := attributevalue.MarshalMap(details)
	if err != nil {
		return commonErrors.NewUnknownError("failed to marshal conflict", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("ACCOUNT#%s", details.AccountID)}
	item["SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("CONFLICT#%s", details.ID)}
	item["EntityType"] = &types.AttributeValueMemberS{Value: "conflict"}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return commonErrors.NewUnknownError("failed to put conflict", err)
	}

	r.logger.Info("recorded sync conflict",
		"accountId", details.AccountID,
		"conflictId", details.ID,
		"conflictType", string(details.Type))
	return nil
}

// ListConflicts returns the account's recorded conflicts, newest id first
func (r *DynamoDBConflictLog) ListConflicts(ctx context.Context, accountID string) ([]*conflict.Details, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("ACCOUNT#%s", accountID))).
		And(expression.Key("SK").BeginsWith("CONFLICT#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to build conflict list expression", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		return nil, commonErrors.NewUnknownError("failed to query conflicts", err)
	}

	var conflicts []*conflict.Details
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &conflicts); err != nil {
		return nil, commonErrors.NewUnknownError("failed to unmarshal conflicts", err)
	}
	return conflicts, nil
}
