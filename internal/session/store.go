// Package session wraps the shared Redis session store. Tokens live in a
// hash per key so that any backend instance can validate any token.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

var (
	// ErrNotFound indicates the token has no record in the store.
	ErrNotFound = errors.New("session: not found")
	// ErrRotateConflict indicates the rotation target key already exists.
	// Distinct from a generic store error: it signals either a retry
	// collision or a reused token worth flagging.
	ErrRotateConflict = errors.New("session: rotate conflict")
)

// Record is the stored shape of one active token.
type Record struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a thin typed client over the shared key-value store. It carries no
// business logic beyond the key convention and field mapping.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	grace  time.Duration
}

// NewStore constructs a Store. The key TTL is ttl plus grace, so a token that
// just expired logically still resolves long enough for a rotation exchange.
func NewStore(client *redis.Client, ttl, grace time.Duration) *Store {
	return &Store{client: client, ttl: ttl, grace: grace}
}

// TTL exposes the configured session lifetime without the grace window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Exists reports whether the token has a record.
func (s *Store) Exists(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get loads the record for a token. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return recordFromFields(fields)
}

// Put writes the record and arms the key TTL.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	key := s.key(rec.Token)
	if err := s.client.HSet(ctx, key, fieldsFromRecord(rec)).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl+s.grace).Err()
}

// Touch re-arms the key TTL without changing the record.
func (s *Store) Touch(ctx context.Context, token string) error {
	ok, err := s.client.Expire(ctx, s.key(token), s.ttl+s.grace).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Rotate atomically renames the record from oldToken to newToken. It fails
// with ErrNotFound when the old key is gone and with ErrRotateConflict when
// the new key is already taken; in neither case is the new key created.
func (s *Store) Rotate(ctx context.Context, oldToken, newToken string) error {
	ok, err := s.client.RenameNX(ctx, s.key(oldToken), s.key(newToken)).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return ErrNotFound
		}
		return err
	}
	if !ok {
		return ErrRotateConflict
	}
	now := time.Now().UTC()
	key := s.key(newToken)
	if err := s.client.HSet(ctx, key,
		"token", newToken,
		"expires_at", strconv.FormatInt(now.Add(s.ttl).Unix(), 10),
		"updated_at", strconv.FormatInt(now.Unix(), 10),
	).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl+s.grace).Err()
}

// Delete removes the record. Deleting an absent token is a no-op.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *Store) key(token string) string {
	return keyPrefix + token
}

func fieldsFromRecord(rec *Record) map[string]string {
	return map[string]string{
		"token":      rec.Token,
		"user_id":    strconv.FormatInt(rec.UserID, 10),
		"expires_at": strconv.FormatInt(rec.ExpiresAt.Unix(), 10),
		"created_at": strconv.FormatInt(rec.CreatedAt.Unix(), 10),
		"updated_at": strconv.FormatInt(rec.UpdatedAt.Unix(), 10),
	}
}

func recordFromFields(fields map[string]string) (*Record, error) {
	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	rec := &Record{
		Token:  fields["token"],
		UserID: userID,
	}
	if v, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil {
		rec.ExpiresAt = time.Unix(v, 0).UTC()
	}
	if v, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		rec.CreatedAt = time.Unix(v, 0).UTC()
	}
	if v, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		rec.UpdatedAt = time.Unix(v, 0).UTC()
	}
	return rec, nil
}
