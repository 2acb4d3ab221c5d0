package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postflow/pkg/platform"
	"postflow/pkg/rediskey"
	"postflow/pkg/sealer"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a state or session key is unknown, expired
// or already consumed.
var ErrNotFound = errors.New("oauth: entry not found")

const pendingVersion = 1

// Fallback lifetimes for non-positive TTLs; redis treats 0 as no expiry.
const (
	DefaultStateTTL   = 10 * time.Minute
	DefaultPendingTTL = 15 * time.Minute
)

func ttlOr(ttl, fallback time.Duration) time.Duration {
	if ttl <= 0 {
		return fallback
	}
	return ttl
}

// AuthState is what Authorize remembers until the callback comes back.
type AuthState struct {
	Platform  platform.Code `json:"platform"`
	Verifier  string        `json:"verifier,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// PendingExchange holds a completed code exchange until the user picks what
// to connect. It is consumed exactly once.
type PendingExchange struct {
	Version      int              `json:"version"`
	Platform     platform.Code    `json:"platform"`
	Account      platform.Account `json:"account"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	UserToken    string           `json:"user_token,omitempty"`
	Pages        []platform.Page  `json:"pages,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Store keeps OAuth states and pending exchanges in redis. Pending entries
// carry tokens and are sealed before they are written.
type Store struct {
	rdb    *redis.Client
	sealer sealer.Sealer
}

func NewStore(rdb *redis.Client, s sealer.Sealer) *Store {
	return &Store{rdb: rdb, sealer: s}
}

func (s *Store) SaveState(ctx context.Context, state string, entry AuthState, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, rediskey.BuildOAuthStateKey(state), raw, ttlOr(ttl, DefaultStateTTL)).Err()
}

// ConsumeState fetches and deletes the state in one step.
func (s *Store) ConsumeState(ctx context.Context, state string) (*AuthState, error) {
	raw, err := s.rdb.GetDel(ctx, rediskey.BuildOAuthStateKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry AuthState
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode oauth state: %w", err)
	}
	return &entry, nil
}

func (s *Store) SavePending(ctx context.Context, sessionKey string, p *PendingExchange, ttl time.Duration) error {
	p.Version = pendingVersion
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(string(raw))
	if err != nil {
		return fmt.Errorf("seal pending exchange: %w", err)
	}
	return s.rdb.Set(ctx, rediskey.BuildOAuthPendingKey(sessionKey), sealed, ttlOr(ttl, DefaultPendingTTL)).Err()
}

// ConsumePending fetches and deletes a pending exchange in one step, so two
// concurrent connects with the same session key cannot both succeed.
// Entries written with another payload version count as expired.
func (s *Store) ConsumePending(ctx context.Context, sessionKey string) (*PendingExchange, error) {
	sealed, err := s.rdb.GetDel(ctx, rediskey.BuildOAuthPendingKey(sessionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	raw, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open pending exchange: %w", err)
	}
	var p PendingExchange
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode pending exchange: %w", err)
	}
	if p.Version != pendingVersion {
		return nil, ErrNotFound
	}
	return &p, nil
}
