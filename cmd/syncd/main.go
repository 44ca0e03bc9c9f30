package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	envconfig "github.com/odaialmoqa/north-api-clean-sub010/internal/common/config"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
	dynamoClient "github.com/odaialmoqa/north-api-clean-sub010/internal/platform/dynamodb/client"
	dynamodbRepository "github.com/odaialmoqa/north-api-clean-sub010/internal/platform/dynamodb/repository"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/platform/provider"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/platform/secrets"
)

// syncd runs the sync engine as a long-lived daemon: each configured user
// gets a periodic incremental sync until the process is signalled to stop.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	config, err := envconfig.LoadFromEnv()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if len(config.SyncUserIDs) == 0 {
		logger.Error("SYNC_USER_IDS environment variable is required for the daemon")
		os.Exit(1)
	}

	var zapLogger *zap.Logger
	if config.IsProd() {
		zapLogger, err = zap.NewProduction()
	} else {
		zapLogger, err = zap.NewDevelopment()
	}
	if err != nil {
		logger.Error("Failed to initialize zap logger", "error", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize DynamoDB client
	dbClient, err := dynamoClient.NewDynamoDBClient(ctx, config.AWSRegion)
	if err != nil {
		logger.Error("Failed to initialize DynamoDB client", "error", err)
		os.Exit(1)
	}

	recordStore := dynamodbRepository.NewDynamoDBRecordStore(dbClient, config.DynamoDBTableName, logger)
	conflictLog := dynamodbRepository.NewDynamoDBConflictLog(dbClient, config.DynamoDBTableName, logger)

	creds, err := secrets.NewCredentialSource(ctx, config.AWSRegion, config.SecretPrefix, logger)
	if err != nil {
		logger.Error("Failed to initialize credential source", "error", err)
		os.Exit(1)
	}

	gateway := provider.NewHTTPGateway(provider.Config{
		BaseURL:  config.ProviderBaseURL,
		PageSize: config.PageSize,
	}, logger)

	tracker := sync.NewTracker()
	orchestrator := sync.NewOrchestrator(gateway, recordStore, creds, conflictLog, tracker, zapLogger, sync.Options{
		PageSize:              config.PageSize,
		MaxPages:              config.MaxPages,
		MaxConcurrentAccounts: config.MaxConcurrentAccounts,
		RateLimitDelay:        config.RateLimitDelay,
	})
	scheduler := sync.NewScheduler(orchestrator, tracker, zapLogger)

	for _, userID := range config.SyncUserIDs {
		if err := scheduler.ScheduleBackgroundSync(ctx, userID, config.SyncInterval); err != nil {
			logger.Error("Failed to schedule background sync", "userId", userID, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("sync daemon started",
		"users", len(config.SyncUserIDs),
		"interval", config.SyncInterval.String())

	<-ctx.Done()
	logger.Info("shutting down sync daemon")
	scheduler.Close()
	for _, userID := range config.SyncUserIDs {
		if err := orchestrator.CancelSync(context.Background(), userID); err != nil {
			logger.Warn("failed to cancel in-flight sync", "userId", userID, "error", err)
		}
	}
}
