package oracle

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Checker answers "does each of these passage ids exist". The result has one
// entry per input id, in input order.
//
// The validator calls CheckExistence the same way whether the oracle is the
// remote Client or an embedded StoreChecker.
type Checker interface {
	CheckExistence(ctx context.Context, ids []string) ([]bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, ids []string) ([]bool, error)

func (f CheckerFunc) CheckExistence(ctx context.Context, ids []string) ([]bool, error) {
	return f(ctx, ids)
}

// StoreChecker queries a store in-process.
type StoreChecker struct {
	Store Lookup
}

func (c StoreChecker) CheckExistence(ctx context.Context, ids []string) ([]bool, error) {
	out, err := c.Store.Validate(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("embedded passage lookup: %w", err)
	}
	return out, nil
}

// CachingChecker remembers answers from the wrapped checker so identifiers
// cited in many turns are only sent once. Errors are never cached.
type CachingChecker struct {
	next  Checker
	cache *gocache.Cache
}

// NewCachingChecker wraps next. ttl <= 0 keeps entries for the life of the
// process.
func NewCachingChecker(next Checker, ttl time.Duration) *CachingChecker {
	expiry, cleanup := gocache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiry, cleanup = ttl, 2*ttl
	}
	return &CachingChecker{next: next, cache: gocache.New(expiry, cleanup)}
}

func (c *CachingChecker) CheckExistence(ctx context.Context, ids []string) ([]bool, error) {
	out := make([]bool, len(ids))
	var misses []string
	var missIdx []int
	for i, id := range ids {
		if v, ok := c.cache.Get(id); ok {
			out[i] = v.(bool)
			continue
		}
		misses = append(misses, id)
		missIdx = append(missIdx, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	got, err := c.next.CheckExistence(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(got) != len(misses) {
		return nil, fmt.Errorf("%w: asked for %d ids, got %d results", ErrProtocol, len(misses), len(got))
	}
	for j, ok := range got {
		out[missIdx[j]] = ok
		c.cache.SetDefault(misses[j], ok)
	}
	return out, nil
}

// Len reports the number of cached identifiers.
func (c *CachingChecker) Len() int {
	return c.cache.ItemCount()
}
