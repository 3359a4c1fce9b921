package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/repositories"

	"gorm.io/gorm"
)

const referenceKeyPrefix = "ref"

// referenceCache is a read-through cache over the persistence lookup boundary.
// Only successful resolutions are cached; misses always go back to the database
// so a worker created mid-session resolves on the next pass.
type referenceCache struct {
	logger       *logger.Logger
	repo         repositories.ReferenceRepository
	store        KeyValueStore
	errorHandler *ErrorHandler
	ttl          time.Duration
}

// NewReferenceResolver creates a reference resolver backed by the given store
func NewReferenceResolver(
	logger *logger.Logger,
	repo repositories.ReferenceRepository,
	store KeyValueStore,
	errorHandler *ErrorHandler,
	cfg *config.Config,
) ReferenceResolver {
	return &referenceCache{
		logger:       logger,
		repo:         repo,
		store:        store,
		errorHandler: errorHandler,
		ttl:          time.Duration(cfg.Cache.ReferenceTTL) * time.Second,
	}
}

// BuildReferenceKey builds the cache key for one name in one reference table
func BuildReferenceKey(table, column, name string) string {
	return fmt.Sprintf("%s:%s:%s:%s", referenceKeyPrefix, table, column, normalizeName(name))
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Resolve returns the identifier of the record whose column matches name case-insensitively
func (c *referenceCache) Resolve(ctx context.Context, table, column, name string) (string, error) {
	if column == "" {
		column = "name"
	}
	if normalizeName(name) == "" {
		return "", fmt.Errorf("%w: empty name", ErrReferenceNotFound)
	}

	key := BuildReferenceKey(table, column, name)

	var id string
	err := c.store.Get(ctx, key, &id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).WithField("key", key).Warn("Reference cache read failed")
	}

	// Not-found and ambiguous results are answers, not failures; keep them
	// away from the retry policy and the circuit breaker.
	var lookupErr error
	err = c.errorHandler.ExecuteWithFullProtection(ctx, func() error {
		found, err := c.repo.FindIDByName(ctx, table, column, strings.TrimSpace(name))
		switch {
		case err == nil:
			id = found
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			lookupErr = fmt.Errorf("%w: %s %q", ErrReferenceNotFound, table, strings.TrimSpace(name))
			return nil
		case errors.Is(err, repositories.ErrAmbiguousReference), errors.Is(err, repositories.ErrUnknownTable):
			lookupErr = err
			return nil
		default:
			return err
		}
	}, "reference_lookup")
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s %q: %w", table, name, err)
	}
	if lookupErr != nil {
		return "", lookupErr
	}

	if err := c.store.Set(ctx, key, id, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Reference cache write failed")
	}
	return id, nil
}

// Refresh drops every cached name of the given table; an empty table drops everything
func (c *referenceCache) Refresh(ctx context.Context, table string) error {
	pattern := referenceKeyPrefix + ":*"
	if table != "" {
		pattern = fmt.Sprintf("%s:%s:*", referenceKeyPrefix, table)
	}

	if err := c.store.DeletePattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to refresh reference cache: %w", err)
	}

	c.logger.WithField("table", table).Info("Reference cache refreshed")
	return nil
}
