package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"promo-console-api/internal/auth"
	"promo-console-api/internal/draw"
	"promo-console-api/internal/models"
	"promo-console-api/internal/promotion"
	"promo-console-api/internal/service"
	"promo-console-api/internal/store"
	"promo-console-api/internal/validation"
)

// Handler provides HTTP handlers for the console API.
type Handler struct {
	service     *service.Service
	promotions  *promotion.Controller
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service, ctrl *promotion.Controller) *Handler {
	return NewHandlerWithOptions(svc, ctrl, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, ctrl *promotion.Controller, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		promotions:  ctrl,
		maxBodySize: opts.MaxBodySize,
	}
}

// CreatePromotion handles POST /promotions
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req models.CreatePromotionRequest
	if !h.decode(w, r, &req) {
		return
	}

	promo, err := h.service.CreatePromotion(r.Context(), accountID, req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, promo)
}

// ListPromotions handles GET /promotions?active=true|false
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	active := true
	if v := r.URL.Query().Get("active"); v != "" {
		if v != "true" && v != "false" {
			h.respondError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		active = v == "true"
	}

	promos, err := h.promotions.List(r.Context(), accountID, active)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if promos == nil {
		promos = []models.Promotion{}
	}

	h.respondJSON(w, http.StatusOK, promos)
}

// GetPromotion handles GET /promotions/{promotion_id}
func (h *Handler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	promo, err := h.promotions.Get(r.Context(), accountID, chi.URLParam(r, "promotion_id"))
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, promo)
}

// DrawWinner handles POST /promotions/{promotion_id}/draw
func (h *Handler) DrawWinner(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	result, err := h.promotions.TriggerDraw(r.Context(), accountID, chi.URLParam(r, "promotion_id"))
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// DeactivatePromotion handles POST /promotions/{promotion_id}/deactivate
// and DELETE /promotions/{promotion_id}; operator deletes are modeled as
// deactivation.
func (h *Handler) DeactivatePromotion(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	if err := h.promotions.Deactivate(r.Context(), accountID, chi.URLParam(r, "promotion_id")); err != nil {
		h.respondFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListParticipants handles GET /promotions/{promotion_id}/participants
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	participants, err := h.service.Participants(r.Context(), accountID, chi.URLParam(r, "promotion_id"))
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if participants == nil {
		participants = []models.Participant{}
	}

	h.respondJSON(w, http.StatusOK, participants)
}

// ListWinners handles GET /promotions/{promotion_id}/winners
func (h *Handler) ListWinners(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	winners, err := h.promotions.WinnerInfos(r.Context(), accountID, chi.URLParam(r, "promotion_id"))
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, winners)
}

// UploadContent handles POST /content
func (h *Handler) UploadContent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req models.AddContentRequest
	if !h.decode(w, r, &req) {
		return
	}

	item, err := h.service.UploadContent(r.Context(), accountID, req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, item)
}

// ListContent handles GET /content; this is the consumer-facing read path,
// so it sweeps before serving.
func (h *Handler) ListContent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ActiveContent(r.Context(), accountID)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	if items == nil {
		items = []models.ContentItem{}
	}

	h.respondJSON(w, http.StatusOK, items)
}

// DeleteContent handles DELETE /content?path=...
func (h *Handler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	storagePath := validation.SanitizeString(r.URL.Query().Get("path"))
	if storagePath == "" {
		h.respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.service.DeleteContent(r.Context(), accountID, storagePath); err != nil {
		h.respondFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetSocialLink handles PUT /social/{platform}
func (h *Handler) SetSocialLink(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req models.SetSocialLinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SetSocialLink(r.Context(), accountID, chi.URLParam(r, "platform"), req); err != nil {
		h.respondFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSocialLinks handles GET /social
func (h *Handler) ListSocialLinks(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	links, err := h.service.SocialLinks(r.Context(), accountID)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, links)
}

// MarkPrizeReceived handles POST /participants/{participant_id}/receipt
func (h *Handler) MarkPrizeReceived(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req models.MarkPrizeReceivedRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.MarkPrizeReceived(r.Context(), accountID, chi.URLParam(r, "participant_id"), req); err != nil {
		h.respondFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// accountID resolves the authenticated account or writes a 401.
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, err := auth.AccountIDFromContext(r.Context())
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	return accountID, true
}

// decode reads a size-limited JSON body into dest, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondFailure maps the error taxonomy onto status codes.
func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		h.respondError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, draw.ErrExhaustedPool):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrWriteConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.respondError(w, http.StatusBadRequest, err.Error())
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
