package validation

import (
	"testing"
	"time"

	"promo-console-api/internal/models"
)

func validPromotionRequest() models.CreatePromotionRequest {
	return models.CreatePromotionRequest{
		Title:    "Test",
		Type:     models.PromotionTypeSinglePassword,
		Prize:    "Prize",
		Rules:    "Rules",
		StartsAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateCreatePromotion(t *testing.T) {
	if err := ValidateCreatePromotion(validPromotionRequest()); err != nil {
		t.Fatalf("Expected valid request, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*models.CreatePromotionRequest)
	}{
		{"blank title", func(r *models.CreatePromotionRequest) { r.Title = "  " }},
		{"missing prize", func(r *models.CreatePromotionRequest) { r.Prize = "" }},
		{"missing rules", func(r *models.CreatePromotionRequest) { r.Rules = "" }},
		{"bad type", func(r *models.CreatePromotionRequest) { r.Type = "raffle" }},
		{"zero start", func(r *models.CreatePromotionRequest) { r.StartsAt = time.Time{} }},
		{"zero end", func(r *models.CreatePromotionRequest) { r.EndsAt = time.Time{} }},
		{"start equals end", func(r *models.CreatePromotionRequest) { r.EndsAt = r.StartsAt }},
		{"over two years", func(r *models.CreatePromotionRequest) { r.EndsAt = r.StartsAt.AddDate(3, 0, 0) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validPromotionRequest()
			tc.mutate(&req)
			if err := ValidateCreatePromotion(req); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidateAddContent(t *testing.T) {
	valid := models.AddContentRequest{FileName: "banner.png", Data: []byte("x")}
	if err := ValidateAddContent(valid); err != nil {
		t.Fatalf("Expected valid request, got %v", err)
	}

	// The zero deadline is the never-expires marker and passes untouched.
	if err := ValidateAddContent(models.AddContentRequest{FileName: "a.png", Data: []byte("x")}); err != nil {
		t.Errorf("Zero deadline must be accepted: %v", err)
	}

	cases := []struct {
		name string
		req  models.AddContentRequest
	}{
		{"missing name", models.AddContentRequest{Data: []byte("x")}},
		{"path in name", models.AddContentRequest{FileName: "../escape.png", Data: []byte("x")}},
		{"empty data", models.AddContentRequest{FileName: "a.png"}},
		{"past deadline", models.AddContentRequest{
			FileName: "a.png", Data: []byte("x"), ExpiresAt: time.Now().Add(-time.Minute),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateAddContent(tc.req); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  "); got != "helloworld" {
		t.Errorf("Expected control characters stripped, got %q", got)
	}
	if got := SanitizeString("multi\nline"); got != "multi\nline" {
		t.Errorf("Expected newlines preserved, got %q", got)
	}
}
