package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSessionTTL = 24 * time.Hour

// RedisSessionStore persists sessions in Redis so a bot restart does not
// drop mid-flow conversations. Each session lives under its own key with a
// TTL; a stalled session simply expires.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisSessionStore wraps a Redis client. A non-positive ttl falls back
// to 24h.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("dialog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("periopbot.internal.dialog.sessions"),
	}
}

// Load fetches and decodes the stored session, or returns nil when the key
// is missing or expired.
func (r *RedisSessionStore) Load(ctx context.Context, userID int64) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "dialog.load_session")
	defer span.End()

	data, err := r.redis.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("dialog: failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dialog: failed to decode session: %w", err)
	}
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	return &s, nil
}

// Save encodes and stores the session, refreshing its TTL.
func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "dialog.save_session")
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to marshal session: %w", err)
	}
	if err := r.redis.Set(ctx, sessionKey(s.UserID), data, r.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to persist session: %w", err)
	}
	return nil
}

func sessionKey(userID int64) string {
	return "periopbot:session:" + strconv.FormatInt(userID, 10)
}

var _ SessionStore = (*RedisSessionStore)(nil)
