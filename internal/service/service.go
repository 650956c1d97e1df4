package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"promo-console-api/internal/blob"
	"promo-console-api/internal/cache"
	"promo-console-api/internal/events"
	"promo-console-api/internal/features"
	"promo-console-api/internal/models"
	"promo-console-api/internal/store"
	"promo-console-api/internal/sweeper"
	"promo-console-api/internal/validation"
)

// Service provides the form-driven periphery of the console: promotion
// creation, content upload, social link toggles, participant listing and
// prize fulfillment. State transitions live in the promotion controller
// and the draw engine; this layer only adds and annotates.
type Service struct {
	db      *store.DB
	blobs   blob.Store
	cache   cache.Cache
	sweeper *sweeper.Sweeper
	events  *events.Manager
	flags   *features.Manager
	log     zerolog.Logger
}

// NewService creates a new service instance.
func NewService(db *store.DB, blobs blob.Store, c cache.Cache, sw *sweeper.Sweeper, ev *events.Manager, flags *features.Manager, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		blobs:   blobs,
		cache:   c,
		sweeper: sw,
		events:  ev,
		flags:   flags,
		log:     log,
	}
}

// CreatePromotion validates and stores a new promotion. New promotions
// start active with an empty winners list.
func (s *Service) CreatePromotion(ctx context.Context, accountID string, req models.CreatePromotionRequest) (*models.Promotion, error) {
	if err := validation.ValidateCreatePromotion(req); err != nil {
		return nil, err
	}

	promo := models.Promotion{
		ID:       uuid.New().String(),
		Title:    validation.SanitizeString(req.Title),
		Type:     req.Type,
		Prize:    validation.SanitizeString(req.Prize),
		Rules:    validation.SanitizeString(req.Rules),
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		ImageURL: req.ImageURL,
		Keyword:  validation.SanitizeString(req.Keyword),
		Active:   true,
	}

	if err := s.db.AddPromotion(ctx, accountID, promo); err != nil {
		return nil, fmt.Errorf("failed to store promotion: %w", err)
	}

	return &promo, nil
}

// ActiveContent serves the consumer-facing content view. A cached view is
// re-validated against the clock before display; on a miss the sweep runs
// inline, which also refreshes the cache and flips any overdue items.
func (s *Service) ActiveContent(ctx context.Context, accountID string) ([]models.ContentItem, error) {
	s.sweeper.Track(accountID)

	if s.flags.IsEnabled(features.FeatureCacheEnabled) {
		var cached []models.ContentItem
		if err := cache.GetJSON(ctx, s.cache, sweeper.CacheKey(accountID), &cached); err == nil {
			now := time.Now()
			fresh := cached[:0]
			for _, item := range cached {
				if !item.Expired(now) {
					fresh = append(fresh, item)
				}
			}
			return fresh, nil
		}
	}

	return s.sweeper.Sweep(ctx, accountID)
}

// UploadContent stores the image bytes in the blob store and registers the
// item in the account's image array.
func (s *Service) UploadContent(ctx context.Context, accountID string, req models.AddContentRequest) (*models.ContentItem, error) {
	if err := validation.ValidateAddContent(req); err != nil {
		return nil, err
	}

	storagePath := path.Join("imagens", accountID, validation.SanitizeString(req.FileName))
	url, err := s.blobs.Put(ctx, storagePath, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload blob: %w", err)
	}

	item := models.ContentItem{
		StoragePath: storagePath,
		ImageURL:    url,
		LinkURL:     validation.SanitizeString(req.LinkURL),
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   req.ExpiresAt,
		Active:      true,
	}

	if err := s.db.AddContentItem(ctx, accountID, item); err != nil {
		return nil, fmt.Errorf("failed to register content item: %w", err)
	}

	s.invalidateActiveView(ctx, accountID)
	s.events.PublishContentUploaded(ctx, accountID, item)

	return &item, nil
}

// DeleteContent removes the item from the aggregate and then the blob.
// Content delete is the one physical removal in the system; promotions are
// only ever deactivated.
func (s *Service) DeleteContent(ctx context.Context, accountID, storagePath string) error {
	if err := s.db.RemoveContentItem(ctx, accountID, storagePath); err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, storagePath); err != nil {
		// The document mutation already landed; an orphaned blob is
		// harmless and the delete can be repeated.
		s.log.Warn().Err(err).Str("path", storagePath).Msg("blob delete failed")
	}

	s.invalidateActiveView(ctx, accountID)
	return nil
}

// SetSocialLink creates or rewrites one platform entry in the account's
// social map.
func (s *Service) SetSocialLink(ctx context.Context, accountID, platform string, req models.SetSocialLinkRequest) error {
	platform = validation.SanitizeString(platform)
	if platform == "" {
		return &validation.ValidationError{Field: "platform", Message: "is required"}
	}

	return s.db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		if acct.Social == nil {
			acct.Social = make(map[string]models.SocialLink)
		}
		next := models.SocialLink{URL: validation.SanitizeString(req.URL), Active: req.Active}
		if existing, ok := acct.Social[platform]; ok && existing == next {
			return false, nil
		}
		acct.Social[platform] = next
		return true, nil
	})
}

// SocialLinks returns the account's social map.
func (s *Service) SocialLinks(ctx context.Context, accountID string) (map[string]models.SocialLink, error) {
	acct, _, err := s.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Social == nil {
		return map[string]models.SocialLink{}, nil
	}
	return acct.Social, nil
}

// Participants lists a promotion's participants.
func (s *Service) Participants(ctx context.Context, accountID, promotionID string) ([]models.Participant, error) {
	acct, _, err := s.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.FindPromotion(promotionID) == nil {
		return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, promotionID)
	}
	return acct.PromotionParticipants(promotionID), nil
}

// MarkPrizeReceived records that a winner confirmed receipt, attaching the
// receipt reference. The flag is one-shot: once set it is never unset and
// repeated calls do not rewrite the receipt.
func (s *Service) MarkPrizeReceived(ctx context.Context, accountID, participantID string, req models.MarkPrizeReceivedRequest) error {
	return s.db.Mutate(ctx, accountID, func(acct *models.Account) (bool, error) {
		for i := range acct.Participants {
			p := &acct.Participants[i]
			if p.ID != participantID {
				continue
			}
			if p.PrizeReceived {
				return false, nil
			}
			p.PrizeReceived = true
			p.ReceiptURL = validation.SanitizeString(req.ReceiptURL)
			return true, nil
		}
		return false, fmt.Errorf("%w: participant %s", store.ErrNotFound, participantID)
	})
}

func (s *Service) invalidateActiveView(ctx context.Context, accountID string) {
	if err := s.cache.Delete(ctx, sweeper.CacheKey(accountID)); err != nil {
		s.log.Warn().Err(err).Str("account", accountID).Msg("failed to invalidate active view cache")
	}
}
