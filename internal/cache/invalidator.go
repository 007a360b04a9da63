package cache

import (
	"context"
	"errors"
	"time"

	"subpromo/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventKind is a promo code mutation that makes cached data stale.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
	EventRedeemed EventKind = "redeemed"
)

// Event describes a mutation of one promo code. Code is optional; when it is
// empty the whole code lookup namespace is purged for kinds that touch it.
type Event struct {
	Kind        EventKind
	PromoCodeID uuid.UUID
	Code        string
}

// eventNamespaces lists the namespaces each mutation touches.
var eventNamespaces = map[EventKind][]Namespace{
	// Ids can be known before a code exists, so rejected lookups for the id
	// are dropped on create too.
	EventCreated:  {NamespaceList, NamespaceSearch, NamespaceStats, NamespaceValidation, NamespaceDetail},
	EventUpdated:  {
		NamespaceList, NamespaceSearch, NamespaceStats, NamespaceCode,
		NamespaceDetail, NamespaceValidation, NamespacePlans, NamespaceUsers,
	},
	EventDeleted:  {
		NamespaceList, NamespaceSearch, NamespaceStats, NamespaceCode,
		NamespaceDetail, NamespaceValidation, NamespacePlans, NamespaceUsers,
	},
	EventRedeemed: {NamespaceValidation, NamespaceDetail, NamespaceList, NamespaceStats},
}

// Invalidator purges cached promo data after mutations. Each pattern is
// deleted independently; a failing pattern is logged and the rest still run.
type Invalidator struct {
	cache     Cache
	keys      Keys
	batchSize int
	delay     time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewInvalidator creates a cache invalidator.
func NewInvalidator(c Cache, cfg config.CacheConfig, logger zerolog.Logger) *Invalidator {
	return &Invalidator{
		cache:     c,
		keys:      NewKeys(cfg.Prefix),
		batchSize: cfg.ScanBatchSize,
		delay:     cfg.PatternDelay,
		timeout:   cfg.OperationTimeout,
		logger:    logger.With().Str("component", "cache_invalidator").Logger(),
	}
}

// InvalidateAll purges every namespace. With a promo code id, namespaces keyed
// by promo code are limited to that id and the shared namespaces are purged whole.
func (i *Invalidator) InvalidateAll(ctx context.Context, promoCodeID *uuid.UUID) (int, error) {
	patterns := make([]string, 0, len(Namespaces))
	for _, ns := range Namespaces {
		if promoCodeID != nil {
			patterns = append(patterns, i.keys.PromoPattern(ns, *promoCodeID))
		} else {
			patterns = append(patterns, i.keys.Pattern(ns))
		}
	}
	return i.run(ctx, patterns)
}

// InvalidateOne purges only the namespaces keyed by promoCodeID.
func (i *Invalidator) InvalidateOne(ctx context.Context, promoCodeID uuid.UUID) (int, error) {
	var patterns []string
	for _, ns := range Namespaces {
		if ns.PerPromoCode() {
			patterns = append(patterns, i.keys.PromoPattern(ns, promoCodeID))
		}
	}
	return i.run(ctx, patterns)
}

// Invalidate purges the namespaces affected by ev.
func (i *Invalidator) Invalidate(ctx context.Context, ev Event) (int, error) {
	return i.run(ctx, i.Patterns(ev))
}

// Patterns returns the deletion patterns for ev in deletion order.
func (i *Invalidator) Patterns(ev Event) []string {
	namespaces := eventNamespaces[ev.Kind]
	patterns := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if ns == NamespaceCode && ev.Code != "" {
			patterns = append(patterns, i.keys.CodePattern(ev.Code))
			continue
		}
		patterns = append(patterns, i.keys.PromoPattern(ns, ev.PromoCodeID))
	}
	return patterns
}

func (i *Invalidator) run(ctx context.Context, patterns []string) (int, error) {
	var (
		total int
		errs  []error
	)

	for idx, pattern := range patterns {
		if idx > 0 && i.delay > 0 {
			select {
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
				i.logger.Warn().Err(ctx.Err()).Int("remaining", len(patterns)-idx).Msg("cache invalidation interrupted")
				return total, errors.Join(errs...)
			case <-time.After(i.delay):
			}
		}

		n, err := i.deletePattern(ctx, pattern)
		total += n
		if err != nil {
			errs = append(errs, err)
			i.logger.Warn().Err(err).Str("pattern", pattern).Int("deleted", n).Msg("failed to invalidate cache pattern")
		}
	}

	i.logger.Debug().Int("patterns", len(patterns)).Int("deleted", total).Int("failed", len(errs)).Msg("cache invalidated")
	return total, errors.Join(errs...)
}

func (i *Invalidator) deletePattern(ctx context.Context, pattern string) (int, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	return i.cache.DeleteByPattern(ctx, pattern, i.batchSize)
}
