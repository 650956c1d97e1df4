package promotion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"promo-console-api/internal/draw"
	"promo-console-api/internal/events"
	"promo-console-api/internal/models"
	"promo-console-api/internal/store"
)

// Controller owns the Active -> Inactive transition of promotions and
// fronts the draw engine with per-promotion single-flight, so two
// concurrent triggers for the same promotion share one draw.
type Controller struct {
	db     *store.DB
	engine *draw.Engine
	events *events.Manager
	log    zerolog.Logger
	flight singleflight.Group
}

// NewController creates a promotion state controller.
func NewController(db *store.DB, engine *draw.Engine, ev *events.Manager, log zerolog.Logger) *Controller {
	return &Controller{db: db, engine: engine, events: ev, log: log}
}

// Deactivate flips the promotion to inactive, leaving winners and history
// untouched. Deactivating an already-inactive promotion is a no-op, not an
// error; Inactive is terminal, there is no re-activation path.
func (c *Controller) Deactivate(ctx context.Context, accountID, promotionID string) error {
	var wasActive bool

	err := c.db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		promo := acct.FindPromotion(promotionID)
		if promo == nil {
			return false, fmt.Errorf("%w: promotion %s", store.ErrNotFound, promotionID)
		}
		if !promo.Active {
			wasActive = false
			return false, nil
		}
		promo.Active = false
		wasActive = true
		return true, nil
	})
	if err != nil {
		return err
	}

	if wasActive {
		c.log.Info().Str("account", accountID).Str("promotion", promotionID).Msg("promotion deactivated")
		c.events.PublishPromotionDeactivated(ctx, accountID, promotionID)
	}

	return nil
}

// List returns the promotions with the given active flag. A promotion is
// never returned by both partitions.
func (c *Controller) List(ctx context.Context, accountID string, active bool) ([]models.Promotion, error) {
	acct, _, err := c.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var out []models.Promotion
	for _, p := range acct.Promotions {
		if p.Active == active {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get returns a single promotion by id.
func (c *Controller) Get(ctx context.Context, accountID, promotionID string) (*models.Promotion, error) {
	acct, _, err := c.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	promo := acct.FindPromotion(promotionID)
	if promo == nil {
		return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, promotionID)
	}
	return promo, nil
}

// TriggerDraw runs the countdown-gated draw for a promotion. The UI fronts
// this with a fixed countdown that holds no server-side state; here only
// single-flight applies: while a draw for the promotion is in flight, a
// second trigger joins it instead of starting another.
func (c *Controller) TriggerDraw(ctx context.Context, accountID, promotionID string) (*models.DrawResult, error) {
	key := accountID + "/" + promotionID
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.engine.Draw(ctx, accountID, promotionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.DrawResult), nil
}

// WinnerInfos resolves a promotion's winner ids to contact fields for the
// inactive promotions view, in draw order.
func (c *Controller) WinnerInfos(ctx context.Context, accountID, promotionID string) ([]models.WinnerInfo, error) {
	acct, _, err := c.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	promo := acct.FindPromotion(promotionID)
	if promo == nil {
		return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, promotionID)
	}

	byID := make(map[string]models.Participant, len(acct.Participants))
	for _, p := range acct.Participants {
		byID[p.ID] = p
	}

	infos := make([]models.WinnerInfo, 0, len(promo.Winners))
	for _, winnerID := range promo.Winners {
		info := models.WinnerInfo{ID: winnerID, DrawnAt: promo.DrawnAt[winnerID]}
		if p, ok := byID[winnerID]; ok {
			info.FullName = p.FullName
			info.Phone = p.Phone
			info.PrizeReceived = p.PrizeReceived
			info.ReceiptURL = p.ReceiptURL
		}
		infos = append(infos, info)
	}

	return infos, nil
}
