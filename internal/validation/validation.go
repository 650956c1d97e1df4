package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"promo-console-api/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func ValidateCreatePromotion(req models.CreatePromotionRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}

	if strings.TrimSpace(req.Prize) == "" {
		return &ValidationError{Field: "prize", Message: "is required"}
	}

	if strings.TrimSpace(req.Rules) == "" {
		return &ValidationError{Field: "rules", Message: "is required"}
	}

	switch req.Type {
	case models.PromotionTypeSinglePassword, models.PromotionTypeMultiKeyword, models.PromotionTypeQuestion:
	default:
		return &ValidationError{
			Field:   "type",
			Message: "must be one of single_password, multi_keyword, question",
		}
	}

	if req.StartsAt.IsZero() {
		return &ValidationError{Field: "starts_at", Message: "is required"}
	}

	if req.EndsAt.IsZero() {
		return &ValidationError{Field: "ends_at", Message: "is required"}
	}

	if !req.StartsAt.Before(req.EndsAt) {
		return &ValidationError{
			Field:   "starts_at",
			Message: "must be before ends_at",
		}
	}

	maxDuration := 2 * 365 * 24 * time.Hour
	if req.EndsAt.Sub(req.StartsAt) > maxDuration {
		return &ValidationError{
			Field:   "ends_at",
			Message: "promotion duration cannot exceed 2 years",
		}
	}

	return nil
}

func ValidateAddContent(req models.AddContentRequest) error {
	name := SanitizeString(req.FileName)
	if name == "" {
		return &ValidationError{Field: "file_name", Message: "is required"}
	}

	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return &ValidationError{
			Field:   "file_name",
			Message: "must be a bare file name",
		}
	}

	if len(req.Data) == 0 {
		return &ValidationError{Field: "data", Message: "is required"}
	}

	maxSize := 10 << 20
	if len(req.Data) > maxSize {
		return &ValidationError{
			Field:   "data",
			Message: "exceeds maximum allowed size",
		}
	}

	// A zero ExpiresAt is the never-expires sentinel, so only non-zero
	// deadlines are range checked.
	if !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(time.Now()) {
		return &ValidationError{
			Field:   "expires_at",
			Message: "must be in the future",
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
