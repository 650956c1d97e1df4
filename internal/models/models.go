package models

import "time"

// Promotion types as stored in the document.
const (
	PromotionTypeSinglePassword = "single_password"
	PromotionTypeMultiKeyword   = "multi_keyword"
	PromotionTypeQuestion       = "question"
)

// Participant status values supplied by the registration channel.
const (
	ParticipantStatusActive  = "ativa"
	ParticipantStatusBlocked = "bloqueada"
)

// Promotion represents a prize promotion. Promotions are never physically
// deleted; a delete from the operator console flips Active to false.
type Promotion struct {
	ID       string    `json:"id"` // uuid
	Title    string    `json:"titulo"`
	Type     string    `json:"tipoPromocao"` // one of the PromotionType constants
	Prize    string    `json:"premiacao"`
	Rules    string    `json:"regulamento"`
	StartsAt time.Time `json:"dataInicio"`
	EndsAt   time.Time `json:"dataFim"`
	ImageURL string    `json:"imagem,omitempty"`
	Keyword  string    `json:"palavraChave,omitempty"`
	Active   bool      `json:"ativa"`
	// Winners is ordered by draw sequence and contains no duplicate ids.
	Winners []string             `json:"ganhadores,omitempty"`
	DrawnAt map[string]time.Time `json:"dataSorteio,omitempty"` // winner id -> draw instant
}

// HasWinner reports whether the participant id was already drawn.
func (p *Promotion) HasWinner(participantID string) bool {
	for _, id := range p.Winners {
		if id == participantID {
			return true
		}
	}
	return false
}

// Participant represents a person registered for a promotion. Participants
// arrive via an external registration channel and are read-only here except
// for the prize-fulfillment fields.
type Participant struct {
	ID            string `json:"idParticipante"`
	FullName      string `json:"nomeCompleto"`
	Email         string `json:"email"`
	Phone         string `json:"telefone"`
	PromotionID   string `json:"promocaoId"`
	Status        string `json:"status"`
	PrizeReceived bool   `json:"premioRecebido,omitempty"`
	ReceiptURL    string `json:"comprovante,omitempty"`
}

// ContentItem is an advertising image owned by the account. StoragePath is
// the identifier: two items are the same element iff their paths match.
type ContentItem struct {
	StoragePath string    `json:"storagePath"`
	ImageURL    string    `json:"imagem"`
	LinkURL     string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
	// ExpiresAt zero value is the never-expires sentinel: the item stays
	// active indefinitely and the sweeper must not touch it.
	ExpiresAt time.Time `json:"dataValidade,omitempty"`
	Active    bool      `json:"ativa"`
}

// NeverExpires reports whether the item carries the no-expiry sentinel.
func (c *ContentItem) NeverExpires() bool {
	return c.ExpiresAt.IsZero()
}

// Expired reports whether the item's deadline has passed at the given
// instant. Sentinel items never expire.
func (c *ContentItem) Expired(now time.Time) bool {
	return !c.NeverExpires() && c.ExpiresAt.Before(now)
}

// SocialLink is a per-platform link toggle.
type SocialLink struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// Account is the per-account aggregate document. All entities live as
// embedded arrays of this single document; the store guards it with an
// optimistic version stamp.
type Account struct {
	Images       []ContentItem         `json:"imagens,omitempty"`
	Promotions   []Promotion           `json:"promocoes,omitempty"`
	Participants []Participant         `json:"participantes,omitempty"`
	Social       map[string]SocialLink `json:"social,omitempty"`
}

// FindPromotion returns a pointer into the aggregate's promotions array,
// or nil if the id is absent.
func (a *Account) FindPromotion(id string) *Promotion {
	for i := range a.Promotions {
		if a.Promotions[i].ID == id {
			return &a.Promotions[i]
		}
	}
	return nil
}

// PromotionParticipants returns the participants registered for the given
// promotion, in document order.
func (a *Account) PromotionParticipants(promotionID string) []Participant {
	var out []Participant
	for _, p := range a.Participants {
		if p.PromotionID == promotionID {
			out = append(out, p)
		}
	}
	return out
}

// DrawResult is the externally observable outcome of a draw.
type DrawResult struct {
	Winner  Participant `json:"winner"`
	DrawnAt time.Time   `json:"drawn_at"`
}

// CreatePromotionRequest is the request body for creating a promotion.
type CreatePromotionRequest struct {
	Title    string    `json:"title"`
	Type     string    `json:"type"`
	Prize    string    `json:"prize"`
	Rules    string    `json:"rules"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	ImageURL string    `json:"image_url,omitempty"`
	Keyword  string    `json:"keyword,omitempty"`
}

// AddContentRequest is the request body for registering an uploaded image.
type AddContentRequest struct {
	FileName  string    `json:"file_name"`
	Data      []byte    `json:"data"` // base64 in transit
	LinkURL   string    `json:"link_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero means never expires
}

// SetSocialLinkRequest toggles or rewrites one platform entry.
type SetSocialLinkRequest struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// MarkPrizeReceivedRequest attaches a receipt to a drawn winner.
type MarkPrizeReceivedRequest struct {
	ReceiptURL string `json:"receipt_url"`
}

// WinnerInfo resolves a winner id to its contact fields for display.
type WinnerInfo struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	PrizeReceived bool      `json:"prize_received"`
	ReceiptURL    string    `json:"receipt_url,omitempty"`
	DrawnAt       time.Time `json:"drawn_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
