package rotation

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix matches the key scheme the web layer's session manager
// uses for its Redis cache.
const sessionKeyPrefix = "session:"

// CachePurger evicts revoked sessions from the Redis cache after the
// database transaction has committed. The sessions table is the source of
// truth for revocation counts; the purge is best-effort and a failure here
// only means a cached session lingers until its TTL.
type CachePurger struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCachePurger constructs a CachePurger. A nil client disables purging.
func NewCachePurger(client *redis.Client, logger *slog.Logger) *CachePurger {
	return &CachePurger{client: client, logger: logger}
}

// Purge removes the cache keys for the given session ids.
func (p *CachePurger) Purge(ctx context.Context, sessionIDs []string) {
	if p == nil || p.client == nil || len(sessionIDs) == 0 {
		return
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = sessionKeyPrefix + id
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		if p.logger != nil {
			p.logger.Warn("session cache purge failed",
				slog.Int("sessions", len(keys)), slog.Any("error", err))
		}
	}
}
