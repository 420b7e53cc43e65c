// Package cache holds a Redis read-through cache for person lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nursedesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PersonStore is the durable source behind the cache.
type PersonStore interface {
	GetPersonByUsername(ctx context.Context, username string) (*models.Person, error)
	GetPersonByID(ctx context.Context, id int64) (*models.Person, error)
	ListPeopleByRole(ctx context.Context, role models.Role) ([]models.Person, error)
}

// DefaultRetryAfter is how long Redis is bypassed after a failure.
const DefaultRetryAfter = time.Minute

// PersonCache caches people by username and id. People are immutable, so
// entries only ever expire by TTL. When Redis fails the cache falls back to the
// store and retries Redis after RetryAfter.
type PersonCache struct {
	store  PersonStore
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger

	RetryAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	now       func() time.Time
}

func NewPersonCache(store PersonStore, rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *PersonCache {
	l := logger.With().Str("component", "person_cache").Logger()
	return &PersonCache{
		store:      store,
		redis:      rdb,
		ttl:        ttl,
		logger:     &l,
		RetryAfter: DefaultRetryAfter,
		now:        time.Now,
	}
}

func usernameKey(username string) string { return "nursedesk:person:u:" + username }

func idKey(id int64) string { return fmt.Sprintf("nursedesk:person:id:%d", id) }

func (c *PersonCache) GetPersonByUsername(ctx context.Context, username string) (*models.Person, error) {
	if p, ok := c.read(ctx, usernameKey(username)); ok {
		return p, nil
	}
	p, err := c.store.GetPersonByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	c.write(ctx, p)
	return p, nil
}

func (c *PersonCache) GetPersonByID(ctx context.Context, id int64) (*models.Person, error) {
	if p, ok := c.read(ctx, idKey(id)); ok {
		return p, nil
	}
	p, err := c.store.GetPersonByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.write(ctx, p)
	return p, nil
}

// ListPeopleByRole is not cached; the roster changes when new people are synced.
func (c *PersonCache) ListPeopleByRole(ctx context.Context, role models.Role) ([]models.Person, error) {
	return c.store.ListPeopleByRole(ctx, role)
}

func (c *PersonCache) usable() bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	if !c.isDown.Load() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastCheck) >= c.RetryAfter
}

func (c *PersonCache) markDown(err error) {
	c.mu.Lock()
	c.lastCheck = c.now()
	c.mu.Unlock()
	if !c.isDown.Swap(true) {
		c.logger.Warn().Err(err).Msg("Redis unavailable, reading people from store")
	}
}

func (c *PersonCache) markUp() {
	if c.isDown.Swap(false) {
		c.logger.Info().Msg("Redis recovered")
	}
}

func (c *PersonCache) read(ctx context.Context, key string) (*models.Person, bool) {
	if !c.usable() {
		return nil, false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.markUp()
		return nil, false
	}
	if err != nil {
		c.markDown(err)
		return nil, false
	}
	c.markUp()

	var p models.Person
	if err := json.Unmarshal(val, &p); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		return nil, false
	}
	return &p, true
}

func (c *PersonCache) write(ctx context.Context, p *models.Person) {
	if !c.usable() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, usernameKey(p.Username), data, c.ttl)
		pipe.Set(ctx, idKey(p.ID), data, c.ttl)
		return nil
	})
	if err != nil {
		c.markDown(err)
	}
}
