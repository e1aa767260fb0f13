package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"lesson-quiz-service/internal/infra/memory"
	"lesson-quiz-service/internal/session"
)

// SessionRegistry is a Redis-aware implementation of app.SessionRegistry.
// Controllers live in process; Redis only carries a liveness marker per session
// (quiz:session:{id}) so other instances and operators can see who is playing.
type SessionRegistry struct {
	*memory.SessionRegistry
	client *redis.Client
	ttl    time.Duration
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		SessionRegistry: memory.NewSessionRegistry(),
		client:          client,
		ttl:             ttl,
	}
}

func (r *SessionRegistry) Register(id string, c *session.Controller) {
	r.SessionRegistry.Register(id, c)
	// best-effort liveness marker
	if err := r.client.Set(context.Background(), sessionKey(id), "1", r.ttl).Err(); err != nil {
		slog.Warn("redis: mark session live failed", "session", id, "error", err)
	}
}

func (r *SessionRegistry) Remove(id string, c *session.Controller) {
	if cur, ok := r.Get(id); !ok || cur != c {
		return
	}
	r.SessionRegistry.Remove(id, c)
	if err := r.client.Del(context.Background(), sessionKey(id)).Err(); err != nil {
		slog.Warn("redis: clear session failed", "session", id, "error", err)
	}
}

// CloseAll closes every controller and clears their liveness markers.
func (r *SessionRegistry) CloseAll() {
	ids := r.IDs()
	r.SessionRegistry.CloseAll()
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	if err := r.client.Del(context.Background(), keys...).Err(); err != nil {
		slog.Warn("redis: clear sessions failed", "count", len(keys), "error", err)
	}
}

// Touch extends the liveness marker of an active session.
func (r *SessionRegistry) Touch(ctx context.Context, id string) error {
	if r.ttl <= 0 {
		return nil
	}
	return r.client.Expire(ctx, sessionKey(id), r.ttl).Err()
}

func sessionKey(id string) string {
	return "quiz:session:" + id
}
