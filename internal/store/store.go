// Package store persists delegation tokens, audit ledger entries, and
// authorized transactions in Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/authorize"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTokenNotFound is returned when a token ID has no row.
var ErrTokenNotFound = errors.New("delegation token not found")

// Store handles trust-engine persistence
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store backed by the given connection pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgx connection pool with the settings used across the
// service.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// SaveToken inserts a delegation token.
func (s *Store) SaveToken(ctx context.Context, t *token.DelegationToken) error {
	constraintsJSON, err := json.Marshal(t.Constraints)
	if err != nil {
		return fmt.Errorf("failed to serialize constraints: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO delegation_tokens (
			id, issuer_did, recipient_did, parent_token_id, depth,
			chain_hash, token_hash, constraints, usage_count, total_spent,
			status, signature, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.IssuerDID, t.RecipientDID, t.ParentTokenID, t.Depth,
		t.ChainHash.Bytes(), t.TokenHash.Bytes(), constraintsJSON, t.UsageCount, t.TotalSpent,
		string(t.Status), t.Signature, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert delegation token: %w", err)
	}
	return nil
}

// GetToken fetches one delegation token by ID.
func (s *Store) GetToken(ctx context.Context, id uuid.UUID) (*token.DelegationToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, issuer_did, recipient_did, parent_token_id, depth,
			chain_hash, token_hash, constraints, usage_count, total_spent,
			status, signature, created_at, expires_at
		FROM delegation_tokens
		WHERE id = $1
	`, id)
	return scanToken(row)
}

// GetChain returns the full delegation chain ending at leafID, ordered root
// first. The walk follows parent_token_id upward.
func (s *Store) GetChain(ctx context.Context, leafID uuid.UUID) ([]*token.DelegationToken, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT * FROM delegation_tokens WHERE id = $1
			UNION ALL
			SELECT t.* FROM delegation_tokens t
			JOIN chain c ON t.id = c.parent_token_id
		)
		SELECT id, issuer_did, recipient_did, parent_token_id, depth,
			chain_hash, token_hash, constraints, usage_count, total_spent,
			status, signature, created_at, expires_at
		FROM chain
		ORDER BY depth ASC
	`, leafID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegation chain: %w", err)
	}
	defer rows.Close()

	var tokens []*token.DelegationToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrTokenNotFound
	}
	return tokens, nil
}

// RevokeCascade marks the token and every descendant REVOKED and returns the
// affected IDs. Runs in one transaction so a partial cascade never persists.
func (s *Store) RevokeCascade(ctx context.Context, rootID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin revocation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT id FROM delegation_tokens WHERE id = $1
			UNION ALL
			SELECT t.id FROM delegation_tokens t
			JOIN descendants d ON t.parent_token_id = d.id
		)
		UPDATE delegation_tokens
		SET status = 'REVOKED'
		WHERE id IN (SELECT id FROM descendants)
		RETURNING id
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to cascade revocation: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrTokenNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit revocation: %w", err)
	}
	return ids, nil
}

// IncrementTokenUsage bumps the acting token's usage counters after an
// approved authorization.
func (s *Store) IncrementTokenUsage(ctx context.Context, tokenID uuid.UUID, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE delegation_tokens
		SET usage_count = usage_count + 1, total_spent = total_spent + $2
		WHERE id = $1
	`, tokenID, amount)
	if err != nil {
		return fmt.Errorf("failed to increment token usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RecordTransaction persists an approved transaction so later usage
// snapshots see it.
func (s *Store) RecordTransaction(ctx context.Context, decision *authorize.Decision, amount int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO authorized_transactions (
			transaction_id, chain_hash, amount, outcome, risk_score, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, decision.TransactionID, decision.ChainHash.Bytes(), amount,
		string(decision.Outcome), decision.RiskScore, decision.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// UsageSnapshot aggregates approved spend for a delegation chain. Implements
// the authorization engine's UsageSource.
func (s *Store) UsageSnapshot(ctx context.Context, chainHash common.Hash) (*authorize.UsageSnapshot, error) {
	var snapshot authorize.UsageSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE decided_at >= date_trunc('day', now())), 0),
			COALESCE(SUM(amount) FILTER (WHERE decided_at >= date_trunc('week', now())), 0),
			COALESCE(SUM(amount), 0),
			COALESCE(AVG(amount)::bigint, 0)
		FROM authorized_transactions
		WHERE chain_hash = $1
			AND outcome = 'APPROVED'
	`, chainHash.Bytes()).Scan(
		&snapshot.DailySpent, &snapshot.WeeklySpent, &snapshot.TotalSpent, &snapshot.AverageAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return &snapshot, nil
}

// ListRevokedTokenIDs returns the IDs of every revoked token, used to seed
// the in-memory revocation set at startup.
func (s *Store) ListRevokedTokenIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM delegation_tokens WHERE status = 'REVOKED'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list revoked tokens: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveLedgerEntry persists one audit ledger entry.
func (s *Store) SaveLedgerEntry(ctx context.Context, e ledger.Entry) error {
	var previous []byte
	if e.PreviousHash != nil {
		previous = e.PreviousHash.Bytes()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_entries (sequence_number, data, previous_hash, entry_hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.SequenceNumber, []byte(e.Data), previous, e.EntryHash.Bytes(), e.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to persist ledger entry %d: %w", e.SequenceNumber, err)
	}
	return nil
}

// LoadLedgerEntries reads back the stored chain ordered by sequence number,
// ready for verification or replay into an in-memory ledger.
func (s *Store) LoadLedgerEntries(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence_number, data, previous_hash, entry_hash, recorded_at
		FROM audit_entries
		ORDER BY sequence_number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e        ledger.Entry
			data     []byte
			previous []byte
			entry    []byte
		)
		if err := rows.Scan(&e.SequenceNumber, &data, &previous, &entry, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		if len(previous) > 0 {
			h := common.BytesToHash(previous)
			e.PreviousHash = &h
		}
		e.EntryHash = common.BytesToHash(entry)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanTarget is satisfied by both pgx.Row and pgx.Rows.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanToken(row scanTarget) (*token.DelegationToken, error) {
	var (
		t               token.DelegationToken
		chainHash       []byte
		tokenHash       []byte
		constraintsJSON []byte
		status          string
	)
	err := row.Scan(&t.ID, &t.IssuerDID, &t.RecipientDID, &t.ParentTokenID, &t.Depth,
		&chainHash, &tokenHash, &constraintsJSON, &t.UsageCount, &t.TotalSpent,
		&status, &t.Signature, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan delegation token: %w", err)
	}

	t.ChainHash = common.BytesToHash(chainHash)
	t.TokenHash = common.BytesToHash(tokenHash)
	t.Status = token.Status(status)
	if err := json.Unmarshal(constraintsJSON, &t.Constraints); err != nil {
		return nil, fmt.Errorf("failed to decode constraints for token %s: %w", t.ID, err)
	}
	return &t, nil
}
