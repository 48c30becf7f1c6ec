package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"vedarc.org/internal/domain"
)

const (
	redisKeyPrefix = "vedarc:session:"
	revokedMarker  = "revoked"
)

// putScript sets the session value unless the key holds the revocation marker.
var putScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// RedisCache stores active sessions as JSON values expiring with the session.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	if string(raw) == revokedMarker {
		return domain.Session{SessionID: sessionID}, true, nil
	}
	var rec cachedSession
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Session{}, false, err
	}
	return rec.session(), true, nil
}

func (c *RedisCache) Put(ctx context.Context, s domain.Session, ttl time.Duration) error {
	raw, err := json.Marshal(fromSession(s))
	if err != nil {
		return err
	}
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return putScript.Run(ctx, c.rdb, []string{redisKeyPrefix + s.SessionID}, raw, revokedMarker, ms).Err()
}

// Revoke overwrites the entries with the revocation marker for ttl.
func (c *RedisCache) Revoke(ctx context.Context, ttl time.Duration, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range sessionIDs {
			p.Set(ctx, redisKeyPrefix+id, revokedMarker, ttl)
		}
		return nil
	})
	return err
}

// Ping checks connectivity; used by readiness.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// cachedSession mirrors domain.Session without the token, which stays in the database.
type cachedSession struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	UserType     string    `json:"user_type"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func fromSession(s domain.Session) cachedSession {
	return cachedSession{
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		UserType:     string(s.UserType),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

func (c cachedSession) session() domain.Session {
	return domain.Session{
		SessionID:    c.SessionID,
		UserID:       c.UserID,
		UserType:     domain.Role(c.UserType),
		CreatedAt:    c.CreatedAt,
		LastActivity: c.LastActivity,
		IsActive:     true,
	}
}
