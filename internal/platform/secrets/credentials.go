package secrets

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
)

// CredentialSource resolves per-user provider access tokens from Secrets
// Manager. Tokens live under <prefix><userId>; the cache keeps hot tokens
// out of the API path.
type CredentialSource struct {
	cache  *secretcache.Cache
	prefix string
	logger *slog.Logger
}

var _ sync.CredentialSource = (*CredentialSource)(nil)

// NewCredentialSource creates a credential source backed by a caching
// Secrets Manager client
func NewCredentialSource(ctx context.Context, region, prefix string, logger *slog.Logger) (*CredentialSource, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	smClient := secretsmanager.NewFromConfig(cfg)

	cache, err := secretcache.New(
		func(c *secretcache.Cache) {
			c.Client = smClient
		},
	)
	if err != nil {
		return nil, err
	}

	return &CredentialSource{
		cache:  cache,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Credential returns the user's provider access token
func (s *CredentialSource) Credential(ctx context.Context, userID string) (string, error) {
	secretID := s.prefix + userID
	token, err := s.cache.GetSecretStringWithContext(ctx, secretID)
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if stderrors.As(err, &notFound) {
			s.logger.Warn("no provider credential stored for user", "userId", userID)
			return "", errors.NewAuthenticationError("", "no provider credential stored for user "+userID)
		}
		return "", errors.NewUnknownError("failed to resolve provider credential", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", errors.NewAuthenticationError("", "provider credential for user "+userID+" is empty")
	}
	return token, nil
}
