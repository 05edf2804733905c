package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"transaction-import-service/internal/models"
)

func day(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		t.Fatalf("bad test date %q: %v", raw, err)
	}
	return parsed
}

func candidate(t *testing.T, date, amount, description, category string) *models.Candidate {
	t.Helper()
	return models.NewCandidate(day(t, date), decimal.RequireFromString(amount), description, category)
}

func stored(t *testing.T, id int64, date, amount, description, category string) *models.Transaction {
	t.Helper()
	return &models.Transaction{
		ID:          id,
		Date:        models.TruncateToDay(day(t, date)),
		Amount:      decimal.RequireFromString(amount),
		Description: description,
		Category:    category,
	}
}

func newFuzzyDetector(t *testing.T, transactions ...*models.Transaction) *Detector {
	t.Helper()
	detector, err := NewDetector(FuzzyDetectorConfig())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	detector.LoadTransactions(transactions)
	return detector
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DetectorConfig)
		wantErr bool
	}{
		{
			name:   "default config is valid",
			mutate: func(cfg *DetectorConfig) {},
		},
		{
			name:   "strict config is valid",
			mutate: func(cfg *DetectorConfig) { *cfg = *StrictDetectorConfig() },
		},
		{
			name:    "negative date tolerance",
			mutate:  func(cfg *DetectorConfig) { cfg.DateToleranceDays = -1 },
			wantErr: true,
		},
		{
			name:    "amount tolerance above 100",
			mutate:  func(cfg *DetectorConfig) { cfg.AmountTolerancePercent = 150 },
			wantErr: true,
		},
		{
			name:    "confidence above 1",
			mutate:  func(cfg *DetectorConfig) { cfg.MinConfidenceScore = 1.5 },
			wantErr: true,
		},
		{
			name:    "zero candidate cap",
			mutate:  func(cfg *DetectorConfig) { cfg.MaxCandidatesPerRow = 0 },
			wantErr: true,
		},
		{
			name: "base weights must sum to one",
			mutate: func(cfg *DetectorConfig) {
				cfg.Weights.DateWeight = 0.1
				cfg.Weights.AmountWeight = 0.1
				cfg.Weights.DescriptionWeight = 0.1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FuzzyDetectorConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetectExactMatch(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 1, "2025-01-15", "42.50", "Coffee Shop", ""),
	)

	matches := detector.Detect(candidate(t, "2025-01-15", "42.50", "Coffee Shop", ""))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].MatchType != models.MatchExact {
		t.Errorf("expected exact match, got %s", matches[0].MatchType)
	}
	if matches[0].Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", matches[0].Confidence)
	}
	if matches[0].ExistingID != 1 {
		t.Errorf("expected existing id 1, got %d", matches[0].ExistingID)
	}
}

func TestDetectExactMatchIsCaseSensitive(t *testing.T) {
	detector, err := NewDetector(DefaultDetectorConfig())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	detector.LoadTransactions([]*models.Transaction{
		stored(t, 1, "2025-01-15", "42.50", "Coffee Shop", ""),
	})

	matches := detector.Detect(candidate(t, "2025-01-15", "42.50", "coffee shop", ""))
	if len(matches) != 0 {
		t.Errorf("case-differing description must not match exactly, got %d matches", len(matches))
	}
}

func TestDetectFuzzyNearMiss(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 7, "2025-01-15", "42.50", "Coffee Shop Downtown", ""),
	)

	// One day off, same amount, near-identical description.
	matches := detector.Detect(candidate(t, "2025-01-16", "42.50", "Coffee Shop Downtwn", ""))
	if len(matches) != 1 {
		t.Fatalf("expected 1 fuzzy match, got %d", len(matches))
	}
	match := matches[0]
	if match.MatchType != models.MatchFuzzy {
		t.Errorf("expected fuzzy match, got %s", match.MatchType)
	}
	if match.ExistingID != 7 {
		t.Errorf("expected existing id 7, got %d", match.ExistingID)
	}
	if match.Confidence < 0.8 || match.Confidence >= 1.0 {
		t.Errorf("expected confidence in [0.8, 1.0), got %f", match.Confidence)
	}
}

func TestDetectFuzzyDisabledByDefault(t *testing.T) {
	detector, err := NewDetector(DefaultDetectorConfig())
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}
	detector.LoadTransactions([]*models.Transaction{
		stored(t, 1, "2025-01-15", "42.50", "Coffee Shop Downtown", ""),
	})

	matches := detector.Detect(candidate(t, "2025-01-16", "42.50", "Coffee Shop Downtwn", ""))
	if len(matches) != 0 {
		t.Errorf("fuzzy matching must be opt-in, got %d matches", len(matches))
	}
}

func TestDetectRespectsDateTolerance(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 1, "2025-01-15", "42.50", "Coffee Shop", ""),
	)

	// Four days off: outside the 3-day window, no candidates at all.
	matches := detector.Detect(candidate(t, "2025-01-19", "42.50", "Coffee Shop", ""))
	if len(matches) != 0 {
		t.Errorf("expected no matches outside the date window, got %d", len(matches))
	}
}

func TestDetectDissimilarDescriptions(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 1, "2025-01-15", "42.50", "Coffee Shop", ""),
	)

	matches := detector.Detect(candidate(t, "2025-01-15", "42.50", "Grocery Store", ""))
	if len(matches) != 0 {
		t.Errorf("dissimilar descriptions must not be flagged, got %d matches", len(matches))
	}
}

func TestDetectAmountOutsideTolerance(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 1, "2025-01-15", "42.50", "Coffee Shop", ""),
	)

	// 20% off: the amount field scores zero and drags confidence below 0.8.
	matches := detector.Detect(candidate(t, "2025-01-15", "51.00", "Coffee Shop", ""))
	if len(matches) != 0 {
		t.Errorf("expected no match for a 20%% amount difference, got %d", len(matches))
	}
}

func TestDetectOppositeSignAmounts(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 1, "2025-01-15", "-42.50", "Coffee Shop", ""),
	)

	matches := detector.Detect(candidate(t, "2025-01-15", "42.50", "Coffee Shop", ""))
	for _, match := range matches {
		if match.MatchType == models.MatchFuzzy {
			t.Errorf("a refund must not be flagged as a duplicate of the charge (confidence %f)", match.Confidence)
		}
	}
}

func TestDetectCategoryBonus(t *testing.T) {
	withCategory := newFuzzyDetector(t,
		stored(t, 1, "2025-01-16", "42.50", "Coffee Shop Dwntown", "Dining"),
	)
	without := newFuzzyDetector(t,
		stored(t, 1, "2025-01-16", "42.50", "Coffee Shop Dwntown", ""),
	)

	probe := func(d *Detector, category string) float64 {
		matches := d.Detect(candidate(t, "2025-01-15", "42.50", "Coffee Shop Downtown", category))
		if len(matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(matches))
		}
		return matches[0].Confidence
	}

	boosted := probe(withCategory, "Dining")
	plain := probe(without, "")
	if boosted <= plain {
		t.Errorf("matching categories should raise confidence: %f vs %f", boosted, plain)
	}
}

func TestDetectSortsMatchesByConfidence(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 1, "2025-01-17", "42.50", "Coffee Shop Downtown", ""),
		stored(t, 2, "2025-01-15", "42.50", "Coffee Shop Downtown", ""),
	)

	matches := detector.Detect(candidate(t, "2025-01-15", "42.50", "Coffee Shop Downtwn", ""))
	if len(matches) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Confidence > matches[i-1].Confidence {
			t.Errorf("matches must be sorted by confidence descending")
		}
	}
	if matches[0].ExistingID != 2 {
		t.Errorf("same-day match should rank first, got id %d", matches[0].ExistingID)
	}
}

func TestDetectBulkFlagsBatchDuplicates(t *testing.T) {
	detector := newFuzzyDetector(t)

	batch := []*models.Candidate{
		candidate(t, "2025-01-15", "42.50", "Coffee", ""),
		candidate(t, "2025-01-15", "42.50", "Coffee", ""),
		candidate(t, "2025-01-16", "10.00", "Lunch", ""),
	}

	result := detector.DetectBulk(batch)
	if result.CleanCount != 2 {
		t.Errorf("expected 2 clean candidates, got %d", result.CleanCount)
	}
	matches, flagged := result.Matches[1]
	if !flagged {
		t.Fatal("expected batch index 1 to be flagged")
	}
	if !matches[0].IsBatchDuplicate() {
		t.Errorf("expected batch sentinel id, got %d", matches[0].ExistingID)
	}
	if matches[0].MatchType != models.MatchExact {
		t.Errorf("expected exact batch match, got %s", matches[0].MatchType)
	}
}

func TestDetectBulkMixesStoredAndBatchMatches(t *testing.T) {
	detector := newFuzzyDetector(t,
		stored(t, 9, "2025-01-15", "42.50", "Coffee", ""),
	)

	batch := []*models.Candidate{
		candidate(t, "2025-01-15", "42.50", "Coffee", ""),
		candidate(t, "2025-01-15", "42.50", "Coffee", ""),
	}

	result := detector.DetectBulk(batch)

	first := result.Matches[0]
	if len(first) != 1 || first[0].ExistingID != 9 {
		t.Fatalf("expected first row to match stored id 9, got %+v", first)
	}

	second := result.Matches[1]
	if len(second) < 2 {
		t.Fatalf("expected second row to carry batch and stored matches, got %d", len(second))
	}
	if !second[0].IsBatchDuplicate() {
		t.Error("batch-internal match should rank first for a repeated row")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "coffee shop", "coffee shop", 1.0},
		{"empty left", "", "coffee", 0.0},
		{"both empty", "", "", 1.0},
		{"one edit", "coffee", "cofee", 1.0 - 1.0/6.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := similarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
