package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	envconfig "github.com/odaialmoqa/north-api-clean-sub010/internal/common/config"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
	dynamoClient "github.com/odaialmoqa/north-api-clean-sub010/internal/platform/dynamodb/client"
	dynamodbRepository "github.com/odaialmoqa/north-api-clean-sub010/internal/platform/dynamodb/repository"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/platform/provider"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/platform/secrets"
)

// ScheduledSyncEvent is the EventBridge payload. An empty UserIDs falls
// back to the SYNC_USER_IDS configuration.
type ScheduledSyncEvent struct {
	UserIDs []string `json:"userIds"`
	Full    bool     `json:"full,omitempty"`
}

// SyncSummary is returned to the scheduler invocation for observability
type SyncSummary struct {
	UsersSynced         int `json:"usersSynced"`
	AccountsUpdated     int `json:"accountsUpdated"`
	TransactionsAdded   int `json:"transactionsAdded"`
	TransactionsUpdated int `json:"transactionsUpdated"`
	ConflictsResolved   int `json:"conflictsResolved"`
	Failures            int `json:"failures"`
}

type SyncRequestHandler struct {
	orchestrator *sync.Orchestrator
	logger       *slog.Logger
	config       *envconfig.Config
}

// NewSyncRequestHandler creates a new scheduled sync handler
func NewSyncRequestHandler(orchestrator *sync.Orchestrator, logger *slog.Logger, config *envconfig.Config) *SyncRequestHandler {
	return &SyncRequestHandler{
		orchestrator: orchestrator,
		logger:       logger,
		config:       config,
	}
}

func (h *SyncRequestHandler) HandleRequest(ctx context.Context, event ScheduledSyncEvent) (SyncSummary, error) {
	userIDs := event.UserIDs
	if len(userIDs) == 0 {
		userIDs = h.config.SyncUserIDs
	}
	if len(userIDs) == 0 {
		h.logger.Warn("scheduled sync invoked with no users configured")
		return SyncSummary{}, nil
	}

	var summary SyncSummary
	for _, userID := range userIDs {
		var res sync.Result
		var err error
		if event.Full {
			res, err = h.orchestrator.SyncAllAccounts(ctx, userID)
		} else {
			res, err = h.orchestrator.IncrementalSync(ctx, userID)
		}
		if err != nil {
			h.logger.Error("sync failed for user", "userId", userID, "error", err)
			summary.Failures++
			continue
		}

		summary.UsersSynced++
		summary.AccountsUpdated += res.AccountsUpdated
		summary.TransactionsAdded += res.TransactionsAdded
		summary.TransactionsUpdated += res.TransactionsUpdated
		summary.ConflictsResolved += res.ConflictsResolved
		if res.Outcome == sync.OutcomeFailure {
			summary.Failures++
		}
	}
	return summary, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	config, err := envconfig.LoadFromEnv()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		logger.Error("Failed to initialize zap logger", "error", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	// Initialize DynamoDB client
	dbClient, err := dynamoClient.NewDynamoDBClient(context.Background(), config.AWSRegion)
	if err != nil {
		logger.Error("Failed to initialize DynamoDB client", "error", err)
		os.Exit(1)
	}

	recordStore := dynamodbRepository.NewDynamoDBRecordStore(dbClient, config.DynamoDBTableName, logger)
	conflictLog := dynamodbRepository.NewDynamoDBConflictLog(dbClient, config.DynamoDBTableName, logger)

	creds, err := secrets.NewCredentialSource(context.Background(), config.AWSRegion, config.SecretPrefix, logger)
	if err != nil {
		logger.Error("Failed to initialize credential source", "error", err)
		os.Exit(1)
	}

	gateway := provider.NewHTTPGateway(provider.Config{
		BaseURL:  config.ProviderBaseURL,
		PageSize: config.PageSize,
	}, logger)

	orchestrator := sync.NewOrchestrator(gateway, recordStore, creds, conflictLog, sync.NewTracker(), zapLogger, sync.Options{
		PageSize:              config.PageSize,
		MaxPages:              config.MaxPages,
		MaxConcurrentAccounts: config.MaxConcurrentAccounts,
		RateLimitDelay:        config.RateLimitDelay,
	})

	handler := NewSyncRequestHandler(orchestrator, logger, config)
	lambda.Start(handler.HandleRequest)
}
