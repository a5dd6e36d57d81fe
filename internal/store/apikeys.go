package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyphera/trust-engine/internal/auth"
	"github.com/jackc/pgx/v5"
)

// ErrAPIKeyInvalid is returned for unknown, revoked, or expired API keys. The
// reason is deliberately not distinguished to the caller.
var ErrAPIKeyInvalid = errors.New("invalid API key")

// apiKeyPrefixLen covers "tek_" plus the first eight characters of the key,
// enough to make the lookup selective without storing the key itself.
const apiKeyPrefixLen = len(auth.APIKeyPrefix) + 1 + 8

// CreateAPIKey stores a new API key bound to an agent DID and role, returning
// the full key. The key is shown once; only its bcrypt hash is stored.
func (s *Store) CreateAPIKey(ctx context.Context, agentDID, role string, expiresAt *time.Time) (string, error) {
	fullKey, keyPrefix, err := auth.GenerateAPIKey()
	if err != nil {
		return "", err
	}
	keyHash, err := auth.HashAPIKey(fullKey)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO api_keys (key_prefix, key_hash, agent_did, role, created_at, expires_at)
		VALUES ($1, $2, $3, $4, now(), $5)
	`, keyPrefix, keyHash, agentDID, role, expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert API key: %w", err)
	}
	return fullKey, nil
}

// ValidateAPIKey checks a presented key against the stored hash and returns
// the DID and role it is bound to. Implements auth.APIKeyValidator.
func (s *Store) ValidateAPIKey(ctx context.Context, apiKey string) (string, string, error) {
	if !strings.HasPrefix(apiKey, auth.APIKeyPrefix+"_") || len(apiKey) < apiKeyPrefixLen {
		return "", "", ErrAPIKeyInvalid
	}

	var (
		keyHash   string
		agentDID  string
		role      string
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT key_hash, agent_did, role, expires_at
		FROM api_keys
		WHERE key_prefix = $1
			AND revoked_at IS NULL
	`, apiKey[:apiKeyPrefixLen]).Scan(&keyHash, &agentDID, &role, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrAPIKeyInvalid
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to look up API key: %w", err)
	}

	if expiresAt != nil && time.Now().After(*expiresAt) {
		return "", "", ErrAPIKeyInvalid
	}
	if err := auth.CompareAPIKeyHash(apiKey, keyHash); err != nil {
		return "", "", ErrAPIKeyInvalid
	}
	return agentDID, role, nil
}

// RevokeAPIKey marks an API key revoked by its prefix.
func (s *Store) RevokeAPIKey(ctx context.Context, keyPrefix string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET revoked_at = now()
		WHERE key_prefix = $1 AND revoked_at IS NULL
	`, keyPrefix)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyInvalid
	}
	return nil
}
