package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"promo-console-api/internal/auth"
	"promo-console-api/internal/blob"
	"promo-console-api/internal/cache"
	"promo-console-api/internal/draw"
	"promo-console-api/internal/events"
	"promo-console-api/internal/features"
	"promo-console-api/internal/models"
	"promo-console-api/internal/promotion"
	"promo-console-api/internal/service"
	"promo-console-api/internal/store"
	"promo-console-api/internal/sweeper"
)

const testSecret = "handler-test-secret"

type testEnv struct {
	router   chi.Router
	db       *store.DB
	verifier *auth.Verifier
}

func setupTestHandler(t *testing.T) (*testEnv, func()) {
	t.Helper()
	dbPath := "./test_handler_" + time.Now().Format("20060102150405.000000000") + ".db"
	db, err := store.New(dbPath, store.DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	blobDir, err := os.MkdirTemp("", "blobs")
	if err != nil {
		t.Fatalf("Failed to create blob dir: %v", err)
	}
	blobs, err := blob.NewDiskStore(blobDir, "http://localhost/blobs")
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}

	c := cache.NewInMemoryCache()
	ev := events.NewManager(false)
	sw := sweeper.New(db, c, ev, zerolog.Nop(), time.Minute)
	engine := draw.NewWithRand(db, ev, zerolog.Nop(), rand.New(rand.NewSource(7)))
	ctrl := promotion.NewController(db, engine, ev, zerolog.Nop())

	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, false, "")

	svc := service.NewService(db, blobs, c, sw, ev, flags, zerolog.Nop())
	h := NewHandler(svc, ctrl)

	verifier := auth.NewVerifier(testSecret, "")

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", h.CreatePromotion)
			r.Get("/", h.ListPromotions)
			r.Get("/{promotion_id}", h.GetPromotion)
			r.Delete("/{promotion_id}", h.DeactivatePromotion)
			r.Post("/{promotion_id}/draw", h.DrawWinner)
			r.Post("/{promotion_id}/deactivate", h.DeactivatePromotion)
			r.Get("/{promotion_id}/participants", h.ListParticipants)
			r.Get("/{promotion_id}/winners", h.ListWinners)
		})

		r.Route("/content", func(r chi.Router) {
			r.Post("/", h.UploadContent)
			r.Get("/", h.ListContent)
			r.Delete("/", h.DeleteContent)
		})

		r.Route("/social", func(r chi.Router) {
			r.Get("/", h.ListSocialLinks)
			r.Put("/{platform}", h.SetSocialLink)
		})

		r.Post("/participants/{participant_id}/receipt", h.MarkPrizeReceived)
	})

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
		os.RemoveAll(blobDir)
	}

	return &testEnv{router: r, db: db, verifier: verifier}, cleanup
}

func (e *testEnv) request(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	token, err := e.verifier.IssueToken("acct-1", time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/promotions", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestAuth_BadToken(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	other := auth.NewVerifier("some-other-secret", "")
	token, _ := other.IssueToken("acct-1", time.Hour)

	req := httptest.NewRequest("GET", "/promotions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for token signed by another key, got %d", w.Code)
	}
}

func TestCreatePromotion_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	req := models.CreatePromotionRequest{
		Title:    "Radio Quiz",
		Type:     models.PromotionTypeQuestion,
		Prize:    "Gift card",
		Rules:    "Answer on air",
		StartsAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
	}

	w := env.request(t, "POST", "/promotions", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var promo models.Promotion
	decodeBody(t, w, &promo)
	if promo.ID == "" || !promo.Active {
		t.Errorf("Unexpected promotion in response: %+v", promo)
	}
}

func TestCreatePromotion_InvalidBody(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	w := env.request(t, "POST", "/promotions", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty body, got %d", w.Code)
	}

	w = env.request(t, "POST", "/promotions", models.CreatePromotionRequest{Title: "no dates"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid request, got %d", w.Code)
	}
}

func TestListPromotions_Partition(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	seedPromotions(t, env.db)

	w := env.request(t, "GET", "/promotions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var active []models.Promotion
	decodeBody(t, w, &active)
	if len(active) != 1 || active[0].ID != "p-active" {
		t.Errorf("Expected default listing to be the active partition, got %+v", active)
	}

	w = env.request(t, "GET", "/promotions?active=false", nil)
	var inactive []models.Promotion
	decodeBody(t, w, &inactive)
	if len(inactive) != 1 || inactive[0].ID != "p-done" {
		t.Errorf("Expected inactive partition, got %+v", inactive)
	}

	w = env.request(t, "GET", "/promotions?active=maybe", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad filter, got %d", w.Code)
	}
}

func TestDrawFlow_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	seedPromotions(t, env.db)

	// Two eligible participants, so two draws succeed and the third finds
	// the pool empty.
	for i := 0; i < 2; i++ {
		w := env.request(t, "POST", "/promotions/p-active/draw", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Draw %d: expected 200, got %d: %s", i+1, w.Code, w.Body.String())
		}
		var result models.DrawResult
		decodeBody(t, w, &result)
		if result.Winner.ID == "" || result.DrawnAt.IsZero() {
			t.Errorf("Draw %d: incomplete result %+v", i+1, result)
		}
	}

	w := env.request(t, "POST", "/promotions/p-active/draw", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 when the pool is exhausted, got %d", w.Code)
	}

	w = env.request(t, "GET", "/promotions/p-active/winners", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var winners []models.WinnerInfo
	decodeBody(t, w, &winners)
	if len(winners) != 2 {
		t.Errorf("Expected 2 winners, got %d", len(winners))
	}
}

func TestDraw_UnknownPromotion_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	seedPromotions(t, env.db)

	w := env.request(t, "POST", "/promotions/missing/draw", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestDeactivatePromotion_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	seedPromotions(t, env.db)

	w := env.request(t, "POST", "/promotions/p-active/deactivate", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}

	// Repeating the call and using the DELETE form are both no-ops.
	w = env.request(t, "POST", "/promotions/p-active/deactivate", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on repeat, got %d", w.Code)
	}
	w = env.request(t, "DELETE", "/promotions/p-active", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on DELETE form, got %d", w.Code)
	}

	w = env.request(t, "GET", "/promotions?active=false", nil)
	var inactive []models.Promotion
	decodeBody(t, w, &inactive)
	if len(inactive) != 2 {
		t.Errorf("Expected both promotions inactive, got %+v", inactive)
	}
}

func TestContentLifecycle_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	upload := models.AddContentRequest{
		FileName: "banner.png",
		Data:     []byte("png-bytes"),
		LinkURL:  "https://example.com",
	}
	w := env.request(t, "POST", "/content", upload)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var item models.ContentItem
	decodeBody(t, w, &item)
	if item.StoragePath == "" || item.ImageURL == "" {
		t.Fatalf("Incomplete item in response: %+v", item)
	}

	w = env.request(t, "GET", "/content", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var items []models.ContentItem
	decodeBody(t, w, &items)
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	w = env.request(t, "DELETE", "/content?path="+item.StoragePath, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}

	w = env.request(t, "GET", "/content", nil)
	items = nil
	decodeBody(t, w, &items)
	if len(items) != 0 {
		t.Errorf("Expected empty listing after delete, got %+v", items)
	}
}

func TestDeleteContent_MissingPath(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	w := env.request(t, "DELETE", "/content", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestSocialLinks_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	req := models.SetSocialLinkRequest{URL: "https://instagram.com/acct", Active: true}
	w := env.request(t, "PUT", "/social/instagram", req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, "GET", "/social", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var links map[string]models.SocialLink
	decodeBody(t, w, &links)
	if link, ok := links["instagram"]; !ok || link.URL != req.URL {
		t.Errorf("Unexpected links: %+v", links)
	}
}

func TestMarkPrizeReceived_HTTP(t *testing.T) {
	env, cleanup := setupTestHandler(t)
	defer cleanup()

	seedPromotions(t, env.db)

	req := models.MarkPrizeReceivedRequest{ReceiptURL: "http://localhost/blobs/comprovante.jpg"}
	w := env.request(t, "POST", "/participants/part-1/receipt", req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = env.request(t, "POST", "/participants/unknown/receipt", req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown participant, got %d", w.Code)
	}
}

func seedPromotions(t *testing.T, db *store.DB) {
	t.Helper()
	err := db.Mutate(context.Background(), "acct-1", func(acct *models.Account) (bool, error) {
		acct.Promotions = []models.Promotion{
			{ID: "p-active", Title: "Live", Active: true},
			{ID: "p-done", Title: "Finished", Active: false},
		}
		acct.Participants = []models.Participant{
			{ID: "part-1", FullName: "Ana", PromotionID: "p-active", Status: models.ParticipantStatusActive},
			{ID: "part-2", FullName: "Bruno", PromotionID: "p-active", Status: models.ParticipantStatusActive},
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Failed to seed account: %v", err)
	}
}
