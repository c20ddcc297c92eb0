package domain

import "math"

const (
	MinSentiment     = -1.0
	MaxSentiment     = 1.0
	DefaultSentiment = 0.0

	// RollingWindowDays is the trailing period used for requester-level scores.
	RollingWindowDays = 30
)

// Normalize clamps a raw sentiment value into [MinSentiment, MaxSentiment].
// NaN carries no information and maps to DefaultSentiment.
func Normalize(raw float64) float64 {
	if math.IsNaN(raw) {
		return DefaultSentiment
	}
	return math.Max(MinSentiment, math.Min(MaxSentiment, raw))
}

// Category is the coarse bucket used by list filters and topbar counts.
type Category string

const (
	CategoryNegative Category = "negative"
	CategoryNeutral  Category = "neutral"
	CategoryPositive Category = "positive"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryNegative, CategoryNeutral, CategoryPositive}

// ParseCategory returns the category for s, or false for anything unknown.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryNegative, CategoryNeutral, CategoryPositive:
		return Category(s), true
	}
	return "", false
}

// Categorize buckets a score: negative <= -0.5 < neutral < 0.5 <= positive.
func Categorize(score float64) Category {
	score = Normalize(score)
	switch {
	case score <= -0.5:
		return CategoryNegative
	case score >= 0.5:
		return CategoryPositive
	default:
		return CategoryNeutral
	}
}

// Band is the five-way styling bucket shown next to individual tickets.
type Band string

const (
	BandVeryNegative Band = "very-negative"
	BandNegative     Band = "negative"
	BandNeutral      Band = "neutral"
	BandPositive     Band = "positive"
	BandVeryPositive Band = "very-positive"
)

// BandOf maps a score to its display band.
func BandOf(score float64) Band {
	score = Normalize(score)
	switch {
	case score > 0.75:
		return BandVeryPositive
	case score > 0.5:
		return BandPositive
	case score >= -0.5:
		return BandNeutral
	case score >= -0.75:
		return BandNegative
	default:
		return BandVeryNegative
	}
}
