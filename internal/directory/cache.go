package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Kind names the cached entity type.
type Kind string

const (
	KindJob  Kind = "job"
	KindUser Kind = "user"
)

// CachedDirectory fronts another Directory with a Redis cache.
// Entries expire after ttl and can be dropped early with Invalidate.
type CachedDirectory struct {
	next   Directory
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedDirectory wraps next. A nil client disables caching.
func NewCachedDirectory(next Directory, client *redis.Client, prefix string, ttl time.Duration, logger zerolog.Logger) *CachedDirectory {
	if prefix == "" {
		prefix = "messaging:directory"
	}
	return &CachedDirectory{
		next:   next,
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "directory_cache").Logger(),
	}
}

func (c *CachedDirectory) key(kind Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, id)
}

// JobTitles resolves titles from the cache, then from the wrapped directory.
func (c *CachedDirectory) JobTitles(ctx context.Context, jobIDs []string) (map[string]string, error) {
	ids := lo.Uniq(lo.Compact(jobIDs))
	result := make(map[string]string, len(ids))
	missing := c.lookup(ctx, KindJob, ids, func(id string, raw string) bool {
		result[id] = raw
		return true
	})
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.next.JobTitles(ctx, missing)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string, len(fetched))
	for id, title := range fetched {
		result[id] = title
		entries[id] = title
	}
	c.store(ctx, KindJob, entries)
	return result, nil
}

// Users resolves display data from the cache, then from the wrapped directory.
func (c *CachedDirectory) Users(ctx context.Context, userIDs []string) (map[string]models.UserDisplay, error) {
	ids := lo.Uniq(lo.Compact(userIDs))
	result := make(map[string]models.UserDisplay, len(ids))
	missing := c.lookup(ctx, KindUser, ids, func(id string, raw string) bool {
		var user models.UserDisplay
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return false
		}
		result[id] = user
		return true
	})
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.next.Users(ctx, missing)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string, len(fetched))
	for id, user := range fetched {
		result[id] = user
		if raw, err := json.Marshal(user); err == nil {
			entries[id] = string(raw)
		}
	}
	c.store(ctx, KindUser, entries)
	return result, nil
}

// Invalidate drops a cached entry so the next lookup reads through.
func (c *CachedDirectory) Invalidate(ctx context.Context, kind Kind, id string) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, c.key(kind, id)).Err()
}

// lookup returns the ids that were not served from the cache.
func (c *CachedDirectory) lookup(ctx context.Context, kind Kind, ids []string, accept func(id, raw string) bool) []string {
	if c.redis == nil || len(ids) == 0 {
		return ids
	}

	keys := lo.Map(ids, func(id string, _ int) string { return c.key(kind, id) })
	values, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("directory cache read failed")
		observability.IncDirectoryCache(string(kind), "error")
		return ids
	}

	missing := make([]string, 0, len(ids))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok || !accept(ids[i], raw) {
			missing = append(missing, ids[i])
			continue
		}
		observability.IncDirectoryCache(string(kind), "hit")
	}
	for range missing {
		observability.IncDirectoryCache(string(kind), "miss")
	}
	return missing
}

func (c *CachedDirectory) store(ctx context.Context, kind Kind, entries map[string]string) {
	if c.redis == nil || len(entries) == 0 {
		return
	}
	pipe := c.redis.Pipeline()
	for id, value := range entries {
		pipe.Set(ctx, c.key(kind, id), value, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("directory cache write failed")
	}
}
