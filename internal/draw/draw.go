package draw

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"promo-console-api/internal/events"
	"promo-console-api/internal/models"
	"promo-console-api/internal/store"
	"promo-console-api/internal/tracing"
)

// ErrExhaustedPool is returned when a draw is requested with zero eligible
// participants. The caller must not retry with the same state.
var ErrExhaustedPool = errors.New("draw: no eligible participants remaining")

// Engine selects winners for promotions. Selection is uniformly random
// over the eligible pool and the result is persisted through the store's
// compare-and-swap cycle, so a successful call adds exactly one winner.
type Engine struct {
	db     *store.DB
	events *events.Manager
	log    zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	now func() time.Time
}

// New creates a draw engine seeded from the wall clock.
func New(db *store.DB, ev *events.Manager, log zerolog.Logger) *Engine {
	return NewWithRand(db, ev, log, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a draw engine with an injected generator, so tests
// can reproduce draw sequences.
func NewWithRand(db *store.DB, ev *events.Manager, log zerolog.Logger, rng *rand.Rand) *Engine {
	return &Engine{
		db:     db,
		events: ev,
		log:    log,
		rng:    rng,
		now:    time.Now,
	}
}

// intn returns a uniform value in [0, n). The generator is shared across
// draws and is not safe for concurrent use on its own.
func (e *Engine) intn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

// Eligible computes the participants of the promotion that have not been
// drawn yet, in document order.
func Eligible(promo *models.Promotion, participants []models.Participant) []models.Participant {
	var out []models.Participant
	for _, p := range participants {
		if !promo.HasWinner(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// Draw selects one not-yet-drawn participant for the promotion, records it
// in the winners list with the draw instant, and persists the mutation.
// The eligible pool is recomputed on every optimistic retry, so two
// concurrent draws can never append the same participant or overwrite one
// another's append.
func (e *Engine) Draw(ctx context.Context, accountID, promotionID string) (*models.DrawResult, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "draw.Draw")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("promotion.id", promotionID),
	)

	var result *models.DrawResult

	err := e.db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		promo := acct.FindPromotion(promotionID)
		if promo == nil {
			return false, fmt.Errorf("%w: promotion %s", store.ErrNotFound, promotionID)
		}

		eligible := Eligible(promo, acct.PromotionParticipants(promotionID))
		if len(eligible) == 0 {
			return false, ErrExhaustedPool
		}

		winner := eligible[e.intn(len(eligible))]
		drawnAt := e.now().UTC()

		promo.Winners = append(promo.Winners, winner.ID)
		if promo.DrawnAt == nil {
			promo.DrawnAt = make(map[string]time.Time)
		}
		promo.DrawnAt[winner.ID] = drawnAt

		result = &models.DrawResult{Winner: winner, DrawnAt: drawnAt}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("account", accountID).
		Str("promotion", promotionID).
		Str("winner", result.Winner.ID).
		Msg("draw completed")
	e.events.PublishDrawCompleted(ctx, accountID, promotionID, result.Winner, result.DrawnAt)

	return result, nil
}
