package domain

import (
	"strings"
	"time"

	apperrors "github.com/utafrali/promotion-service/pkg/errors"
)

// Character classes available for coupon code generation.
const (
	couponDigits  = "0123456789"
	couponLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	couponSymbols = "!@#$%&*"

	// Characters that are easy to confuse when read aloud or retyped.
	similarChars = "0O1Il"
)

// CouponCode is a single code bound to one campaign. The code is unique
// across all campaigns, not just its own. IsUsed, UsedBy, and UsedAt are
// written at order completion by the order pipeline; this service only
// reads them during validation.
type CouponCode struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	CampaignID string     `json:"campaign_id"`
	IsUsed     bool       `json:"is_used"`
	UsedBy     string     `json:"used_by,omitempty"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired reports whether the code has an expiry in the past.
func (c *CouponCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// CouponGenerationConfig controls a batch generation request.
type CouponGenerationConfig struct {
	Prefix              string `json:"prefix,omitempty"`
	Suffix              string `json:"suffix,omitempty"`
	Length              int    `json:"length"`
	IncludeNumbers      bool   `json:"include_numbers"`
	IncludeLetters      bool   `json:"include_letters"`
	IncludeSpecialChars bool   `json:"include_special_chars"`
	ExcludeSimilarChars bool   `json:"exclude_similar_chars"`
	Quantity            int    `json:"quantity"`
	ExpirationDays      *int   `json:"expiration_days,omitempty"`
}

// BodyLength returns the number of random characters in each code, i.e. the
// total length minus the fixed prefix and suffix.
func (c *CouponGenerationConfig) BodyLength() int {
	return c.Length - len(c.Prefix) - len(c.Suffix)
}

// Charset builds the sampling alphabet from the selected character classes,
// stripping visually ambiguous characters when requested.
func (c *CouponGenerationConfig) Charset() string {
	var sb strings.Builder
	if c.IncludeNumbers {
		sb.WriteString(couponDigits)
	}
	if c.IncludeLetters {
		sb.WriteString(couponLetters)
	}
	if c.IncludeSpecialChars {
		sb.WriteString(couponSymbols)
	}

	charset := sb.String()
	if c.ExcludeSimilarChars {
		charset = strings.Map(func(r rune) rune {
			if strings.ContainsRune(similarChars, r) {
				return -1
			}
			return r
		}, charset)
	}
	return charset
}

// Validate checks the generation config before any codes are produced.
func (c *CouponGenerationConfig) Validate() error {
	if c.Quantity <= 0 {
		return apperrors.Validation("quantity", "must be positive")
	}
	if c.Length <= 0 {
		return apperrors.Validation("length", "must be positive")
	}
	if c.BodyLength() <= 0 {
		return apperrors.Validation("length", "must leave room for random characters after prefix and suffix")
	}
	if !c.IncludeNumbers && !c.IncludeLetters && !c.IncludeSpecialChars {
		return apperrors.Validation("include_numbers", "at least one character class must be enabled")
	}
	if c.Charset() == "" {
		return apperrors.Validation("exclude_similar_chars", "selected character classes leave an empty alphabet")
	}
	if c.ExpirationDays != nil && *c.ExpirationDays <= 0 {
		return apperrors.Validation("expiration_days", "must be positive when set")
	}
	return nil
}
