// Package cache puts a Redis read-through cache in front of a template store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/templates"
)

const keyPrefix = "notification:template:"

// TemplateStore caches single-template lookups. Every write goes to the
// backing store first and then evicts the cached entry. Redis failures are
// logged and fall through to the backing store.
type TemplateStore struct {
	client *redis.Client
	next   templates.Store
	ttl    time.Duration
	logger *logging.Logger
}

func NewTemplateStore(client *redis.Client, next templates.Store, ttl time.Duration, logger *logging.Logger) *TemplateStore {
	return &TemplateStore{client: client, next: next, ttl: ttl, logger: logger}
}

func key(name string) string {
	return keyPrefix + name
}

func (c *TemplateStore) GetTemplate(ctx context.Context, name string) (models.Template, error) {
	val, err := c.client.Get(ctx, key(name)).Bytes()
	if err == nil {
		var t models.Template
		if jsonErr := json.Unmarshal(val, &t); jsonErr == nil {
			return t, nil
		}
		c.logger.Warnf("Discarding corrupt cache entry for template %s", name)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warnf("Template cache read failed for %s: %v", name, err)
	}

	t, err := c.next.GetTemplate(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *TemplateStore) ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.Template, error) {
	return c.next.ListTemplates(ctx, f)
}

func (c *TemplateStore) CreateTemplate(ctx context.Context, t models.Template) error {
	if err := c.next.CreateTemplate(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.Name)
	return nil
}

func (c *TemplateStore) UpdateTemplate(ctx context.Context, t models.Template) error {
	if err := c.next.UpdateTemplate(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.Name)
	return nil
}

func (c *TemplateStore) DeleteTemplate(ctx context.Context, name string) error {
	if err := c.next.DeleteTemplate(ctx, name); err != nil {
		return err
	}
	c.evict(ctx, name)
	return nil
}

func (c *TemplateStore) store(ctx context.Context, t models.Template) {
	b, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(t.Name), b, c.ttl).Err(); err != nil {
		c.logger.Warnf("Template cache write failed for %s: %v", t.Name, err)
	}
}

func (c *TemplateStore) evict(ctx context.Context, name string) {
	if err := c.client.Del(ctx, key(name)).Err(); err != nil {
		c.logger.Warnf("Template cache eviction failed for %s: %v", name, err)
	}
}

// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
