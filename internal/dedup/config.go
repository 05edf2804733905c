// Package dedup implements duplicate detection for transaction candidates.
//
// Detection runs in two stages:
//  1. Exact matching on the verbatim (date, amount, description) key. This
//     stage is always on and is what the import pipeline uses to decide
//     whether a row is skipped.
//  2. Optional fuzzy matching that scores near-misses against stored
//     transactions using weighted field similarity. Fuzzy results are
//     advisory: they surface likely duplicates for review, they never block
//     an import on their own.
//
// Example usage:
//
//	detector := dedup.NewDetector(dedup.FuzzyDetectorConfig())
//	detector.LoadTransactions(stored)
//	matches := detector.Detect(candidate)
package dedup

import (
	"fmt"
)

// ScoringWeights defines the relative importance of each field when scoring
// a fuzzy match. Date, amount and description are always evaluated; the
// category bonus only enters the weighted average when both records carry a
// category and the similarity clears CategoryBonusThreshold.
type ScoringWeights struct {
	DateWeight        float64 `json:"date_weight"`
	AmountWeight      float64 `json:"amount_weight"`
	DescriptionWeight float64 `json:"description_weight"`
	CategoryBonus     float64 `json:"category_bonus"`
}

// DetectorConfig holds the tunables for duplicate detection.
type DetectorConfig struct {
	// EnableFuzzyMatching turns on the similarity-scoring stage. Exact
	// matching runs regardless.
	EnableFuzzyMatching bool `json:"enable_fuzzy_matching"`

	// DateToleranceDays bounds how far apart two dates may be for a fuzzy
	// comparison to proceed.
	DateToleranceDays int `json:"date_tolerance_days"`

	// AmountTolerancePercent bounds the relative difference between two
	// amounts (0.0 to 100.0) for the amount field to score above zero.
	AmountTolerancePercent float64 `json:"amount_tolerance_percent"`

	// DescriptionThreshold is the minimum normalized similarity for the
	// description field to score above zero.
	DescriptionThreshold float64 `json:"description_threshold"`

	// CategoryBonusThreshold is the minimum category similarity for the
	// bonus weight to apply.
	CategoryBonusThreshold float64 `json:"category_bonus_threshold"`

	// MinConfidenceScore filters which scored comparisons are reported.
	MinConfidenceScore float64 `json:"min_confidence_score"`

	// MaxCandidatesPerRow caps how many stored transactions are scored
	// against a single candidate.
	MaxCandidatesPerRow int `json:"max_candidates_per_row"`

	Weights ScoringWeights `json:"weights"`
}

// DefaultDetectorConfig returns the configuration the import pipeline uses:
// exact matching only.
func DefaultDetectorConfig() *DetectorConfig {
	cfg := FuzzyDetectorConfig()
	cfg.EnableFuzzyMatching = false
	return cfg
}

// FuzzyDetectorConfig returns a configuration with similarity scoring
// enabled and balanced tolerances.
func FuzzyDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		EnableFuzzyMatching:    true,
		DateToleranceDays:      3,
		AmountTolerancePercent: 5.0,
		DescriptionThreshold:   0.85,
		CategoryBonusThreshold: 0.8,
		MinConfidenceScore:     0.8,
		MaxCandidatesPerRow:    1000,
		Weights: ScoringWeights{
			DateWeight:        0.3,
			AmountWeight:      0.4,
			DescriptionWeight: 0.3,
			CategoryBonus:     0.1,
		},
	}
}

// StrictDetectorConfig returns a configuration that only reports fuzzy
// matches that are nearly exact.
func StrictDetectorConfig() *DetectorConfig {
	cfg := FuzzyDetectorConfig()
	cfg.DateToleranceDays = 1
	cfg.AmountTolerancePercent = 1.0
	cfg.DescriptionThreshold = 0.95
	cfg.MinConfidenceScore = 0.95
	return cfg
}

// Validate checks if the detector configuration is valid
func (dc *DetectorConfig) Validate() error {
	if dc.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", dc.DateToleranceDays)
	}

	if dc.AmountTolerancePercent < 0.0 || dc.AmountTolerancePercent > 100.0 {
		return fmt.Errorf("amount tolerance percent must be between 0.0 and 100.0: %f", dc.AmountTolerancePercent)
	}

	if dc.DescriptionThreshold < 0.0 || dc.DescriptionThreshold > 1.0 {
		return fmt.Errorf("description threshold must be between 0.0 and 1.0: %f", dc.DescriptionThreshold)
	}

	if dc.CategoryBonusThreshold < 0.0 || dc.CategoryBonusThreshold > 1.0 {
		return fmt.Errorf("category bonus threshold must be between 0.0 and 1.0: %f", dc.CategoryBonusThreshold)
	}

	if dc.MinConfidenceScore < 0.0 || dc.MinConfidenceScore > 1.0 {
		return fmt.Errorf("minimum confidence score must be between 0.0 and 1.0: %f", dc.MinConfidenceScore)
	}

	if dc.MaxCandidatesPerRow <= 0 {
		return fmt.Errorf("max candidates per row must be positive: %d", dc.MaxCandidatesPerRow)
	}

	if err := dc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Validate checks if the scoring weights are valid
func (sw *ScoringWeights) Validate() error {
	if sw.DateWeight < 0.0 || sw.DateWeight > 1.0 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", sw.DateWeight)
	}

	if sw.AmountWeight < 0.0 || sw.AmountWeight > 1.0 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", sw.AmountWeight)
	}

	if sw.DescriptionWeight < 0.0 || sw.DescriptionWeight > 1.0 {
		return fmt.Errorf("description weight must be between 0.0 and 1.0: %f", sw.DescriptionWeight)
	}

	if sw.CategoryBonus < 0.0 || sw.CategoryBonus > 1.0 {
		return fmt.Errorf("category bonus must be between 0.0 and 1.0: %f", sw.CategoryBonus)
	}

	// The three base weights should sum to approximately 1.0; the category
	// bonus sits outside that budget because it is conditionally evaluated.
	total := sw.DateWeight + sw.AmountWeight + sw.DescriptionWeight
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("base weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// Clone creates a deep copy of the detector configuration
func (dc *DetectorConfig) Clone() *DetectorConfig {
	if dc == nil {
		return nil
	}

	copied := *dc
	return &copied
}

// String returns a human-readable description of the configuration
func (dc *DetectorConfig) String() string {
	return fmt.Sprintf("DetectorConfig{Fuzzy: %v, DateTolerance: %d days, AmountTolerance: %.2f%%, DescThreshold: %.2f, MinConfidence: %.2f}",
		dc.EnableFuzzyMatching, dc.DateToleranceDays, dc.AmountTolerancePercent, dc.DescriptionThreshold, dc.MinConfidenceScore)
}
