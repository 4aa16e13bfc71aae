// Package cache provides the Redis backed report cache.
//
// Keys embed the current version of every scope they depend on. A write to
// the ledger bumps the affected scope versions, so stale entries are never
// read again and expire through their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"canteiro/internal/core/id"
	"canteiro/internal/domain"
	"canteiro/internal/domain/reports"
)

const (
	keyPrefix     = "reports"
	versionPrefix = "reports:v:"
	bumpChannel   = "reports.bump"
)

var (
	_ reports.Cache            = (*ReportCache)(nil)
	_ domain.ReportInvalidator = (*ReportCache)(nil)
)

// ReportCache wraps Redis based caching with versioning controls.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache instantiates the cache helper.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func versionKey(scope string) string { return versionPrefix + scope }

// Versions returns the current version of each scope. Unknown scopes are 0.
func (c *ReportCache) Versions(ctx context.Context, scopes ...string) ([]int64, error) {
	out := make([]int64, len(scopes))
	if c == nil || c.client == nil || len(scopes) == 0 {
		return out, nil
	}
	keys := make([]string, len(scopes))
	for i, s := range scopes {
		keys[i] = versionKey(s)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read cache versions: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse cache version %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

// BuildKey composes the cache key with the current version of each scope.
func (c *ReportCache) BuildKey(ctx context.Context, scopes []string, parts ...string) (string, error) {
	versions, err := c.Versions(ctx, scopes...)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(keyPrefix)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	for i, s := range scopes {
		fmt.Fprintf(&b, ":%s@%d", s, versions[i])
	}
	return b.String(), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *ReportCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read cached report: %w", err)
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("store cached report: %w", err)
	}
	return json.Unmarshal(raw, dest)
}

// Bump increments the version of each scope and announces it.
func (c *ReportCache) Bump(ctx context.Context, scopes ...string) error {
	if c == nil || c.client == nil || len(scopes) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, s := range scopes {
			pipe.Incr(ctx, versionKey(s))
		}
		pipe.Publish(ctx, bumpChannel, strings.Join(scopes, ","))
		return nil
	})
	if err != nil {
		return fmt.Errorf("bump cache versions: %w", err)
	}
	return nil
}

// Invalidate bumps the global scope and every touched project.
func (c *ReportCache) Invalidate(ctx context.Context, _ id.ID, projectIDs ...id.ID) error {
	scopes := make([]string, 0, len(projectIDs)+1)
	scopes = append(scopes, reports.ScopeAll)
	for _, p := range projectIDs {
		scopes = append(scopes, reports.ProjectScope(p))
	}
	return c.Bump(ctx, scopes...)
}

// Ping checks the Redis connection.
func (c *ReportCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
