package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"promo-console-api/internal/cache"
	"promo-console-api/internal/events"
	"promo-console-api/internal/models"
	"promo-console-api/internal/store"
	"promo-console-api/internal/tracing"
)

const activeViewTTL = 5 * time.Minute

// Sweeper keeps each content item's active flag consistent with its expiry
// timestamp. Sweeps run on every consumer-facing read and on a fixed
// interval for every tracked account, independent of client connections.
type Sweeper struct {
	db       *store.DB
	cache    cache.Cache
	events   *events.Manager
	log      zerolog.Logger
	interval time.Duration

	mu       sync.Mutex
	accounts map[string]struct{}

	now func() time.Time
}

// New creates a sweeper. interval is the background sweep period.
func New(db *store.DB, c cache.Cache, ev *events.Manager, log zerolog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		db:       db,
		cache:    c,
		events:   ev,
		log:      log,
		interval: interval,
		accounts: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Track registers an account for periodic sweeping. Tracking is idempotent
// and survives the client session that caused it.
func (s *Sweeper) Track(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = struct{}{}
}

// CacheKey returns the cache key for an account's active content view.
func CacheKey(accountID string) string {
	return "content:active:" + accountID
}

// Sweep flips the active flag of every expired content item for the
// account and returns the currently active view. The write is skipped
// entirely when no item changed. Items already inactive are never
// reactivated, and never-expiring sentinel items are never touched.
func (s *Sweeper) Sweep(ctx context.Context, accountID string) ([]models.ContentItem, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "sweeper.Sweep")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	now := s.now()
	var active []models.ContentItem
	var expired []string

	err := s.db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		active = active[:0]
		expired = expired[:0]
		changed := false

		for i := range acct.Images {
			item := &acct.Images[i]
			if item.Active && item.Expired(now) {
				item.Active = false
				expired = append(expired, item.StoragePath)
				changed = true
			}
			if item.Active {
				active = append(active, *item)
			}
		}

		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if len(expired) > 0 {
		s.log.Info().
			Str("account", accountID).
			Strs("paths", expired).
			Msg("content items expired")
		s.events.PublishContentExpired(ctx, accountID, expired)
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, CacheKey(accountID), active, activeViewTTL); err != nil {
			s.log.Warn().Err(err).Str("account", accountID).Msg("failed to refresh active view cache")
		}
	}

	return active, nil
}

// Run sweeps all tracked accounts on the configured interval until the
// context is cancelled. A failed sweep is logged and retried on the next
// tick; staleness is bounded by one interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		}
	}
}

func (s *Sweeper) sweepAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, id := range ids {
		accountID := id
		g.Go(func() error {
			if _, err := s.Sweep(ctx, accountID); err != nil {
				// Not fatal: retried on the next tick.
				s.log.Warn().Err(err).Str("account", accountID).Msg("sweep failed")
			}
			return nil
		})
	}

	_ = g.Wait()
}
