package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
// This struct contains all configuration parameters for the application
type Config struct {
	// AWS-specific configuration
	AWSRegion         string
	DynamoDBTableName string

	// Provider configuration
	ProviderBaseURL string
	SecretPrefix    string

	// Sync engine tuning
	SyncInterval          time.Duration
	SyncUserIDs           []string
	PageSize              int
	MaxPages              int
	MaxConcurrentAccounts int
	RateLimitDelay        time.Duration

	// Environment and region info
	Environment string
	Region      string

	// Lambda detection flag (cached)
	isLambda bool
}

// LoadFromEnv loads the configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}

	// Required environment variables
	cfg.DynamoDBTableName = os.Getenv("DYNAMODB_TABLE_NAME")
	if cfg.DynamoDBTableName == "" {
		return nil, errors.New("DYNAMODB_TABLE_NAME environment variable is required")
	}

	cfg.ProviderBaseURL = os.Getenv("PROVIDER_BASE_URL")
	if cfg.ProviderBaseURL == "" {
		return nil, errors.New("PROVIDER_BASE_URL environment variable is required")
	}

	cfg.SecretPrefix = os.Getenv("SECRET_PREFIX")
	if cfg.SecretPrefix == "" {
		cfg.SecretPrefix = "provider/credentials/"
	}

	// Users covered by the background schedule. Ad-hoc syncs take the user
	// id per invocation and do not need this.
	if raw := os.Getenv("SYNC_USER_IDS"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.SyncUserIDs = append(cfg.SyncUserIDs, id)
			}
		}
	}

	var err error
	if cfg.SyncInterval, err = durationFromEnv("SYNC_INTERVAL_MINUTES", 60*time.Minute, time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitDelay, err = durationFromEnv("RATE_LIMIT_DELAY_SECONDS", 30*time.Second, time.Second); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = intFromEnv("PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = intFromEnv("MAX_PAGES", 50); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentAccounts, err = intFromEnv("MAX_CONCURRENT_ACCOUNTS", 3); err != nil {
		return nil, err
	}

	// Environment and region info
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "dev" // Default to dev environment
	}

	cfg.Region = os.Getenv("REGION")
	if cfg.Region == "" {
		cfg.Region = "us"
	}

	// AWS Region
	cfg.AWSRegion = os.Getenv("AWS_REGION")
	if cfg.AWSRegion == "" {
		switch cfg.Region {
		case "us":
			cfg.AWSRegion = "us-west-2"
		case "eu":
			cfg.AWSRegion = "eu-west-1"
		case "jp":
			cfg.AWSRegion = "ap-northeast-1"
		default:
			cfg.AWSRegion = "us-west-2" // Default fallback
		}
	}

	// Check if running in Lambda
	cfg.isLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	return cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}

// IsLambda returns true if the application is running in AWS Lambda
func (c *Config) IsLambda() bool {
	return c.isLambda
}

func intFromEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return v, nil
}

func durationFromEnv(name string, fallback, unit time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return time.Duration(v) * unit, nil
}
