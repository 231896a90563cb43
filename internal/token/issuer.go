// Package token implements the opaque bearer token issuer. Tokens are
// random strings bound to a user ID in Redis with a TTL; only a SHA-256
// digest of the token is ever stored. A postgres sessions row is kept per
// issued token for auditing.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-api/gatehouse/internal/shared"
)

const keyPrefix = "token:"

// Issuer creates, validates, and revokes bearer tokens.
type Issuer struct {
	client *redis.Client
	pool   *pgxpool.Pool
	ttl    time.Duration
	logger *slog.Logger
}

// NewIssuer constructs an Issuer. pool may be nil, in which case no session
// audit rows are written.
func NewIssuer(client *redis.Client, pool *pgxpool.Pool, ttl time.Duration, logger *slog.Logger) *Issuer {
	return &Issuer{client: client, pool: pool, ttl: ttl, logger: logger}
}

// Issue creates a token for the user and returns the raw value. The raw
// token is shown exactly once; only its digest is retained.
func (i *Issuer) Issue(ctx context.Context, userID int64, ip, ua string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: generate: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	digest := hashToken(raw)

	if err := i.client.Set(ctx, keyPrefix+digest, strconv.FormatInt(userID, 10), i.ttl).Err(); err != nil {
		return "", fmt.Errorf("token: store: %w", err)
	}

	if i.pool != nil {
		now := time.Now().UTC()
		_, err := i.pool.Exec(ctx,
			`INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at, ip, user_agent) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), userID, digest, now, now.Add(i.ttl), ip, ua)
		if err != nil && i.logger != nil {
			i.logger.Warn("record session", slog.Any("error", err))
		}
	}

	return raw, nil
}

// Validate resolves a raw token to its user ID. Unknown, expired, or
// revoked tokens fail with shared.ErrTokenInvalid.
func (i *Issuer) Validate(ctx context.Context, raw string) (int64, error) {
	val, err := i.client.Get(ctx, keyPrefix+hashToken(raw)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, shared.ErrTokenInvalid
		}
		return 0, fmt.Errorf("token: lookup: %w", err)
	}
	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, shared.ErrTokenInvalid
	}
	return userID, nil
}

// Revoke invalidates a token so it can no longer authenticate. Revoking an
// already-revoked token fails with shared.ErrTokenInvalid.
func (i *Issuer) Revoke(ctx context.Context, raw string) error {
	digest := hashToken(raw)
	deleted, err := i.client.Del(ctx, keyPrefix+digest).Result()
	if err != nil {
		return fmt.Errorf("token: revoke: %w", err)
	}
	if deleted == 0 {
		return shared.ErrTokenInvalid
	}
	if i.pool != nil {
		if _, err := i.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, digest); err != nil && i.logger != nil {
			i.logger.Warn("delete session", slog.Any("error", err))
		}
	}
	return nil
}

// TTL reports the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
