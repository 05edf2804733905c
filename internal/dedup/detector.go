package dedup

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"transaction-import-service/internal/models"
	pkgerrors "transaction-import-service/pkg/errors"
)

var two = decimal.NewFromInt(2)

// Detector scores transaction candidates against stored transactions to
// find exact and near-miss duplicates.
type Detector struct {
	Config *DetectorConfig
	Index  *TransactionIndex
}

// BulkDetectionResult is the outcome of scanning one batch of candidates.
type BulkDetectionResult struct {
	// Matches maps the batch index of each flagged candidate to its
	// duplicate matches, best first.
	Matches map[int][]*models.DuplicateMatch

	// CleanCount is the number of candidates with no match at all.
	CleanCount int
}

// NewDetector creates a detector with the specified configuration.
func NewDetector(config *DetectorConfig) (*Detector, error) {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, pkgerrors.InternalError(pkgerrors.CodeInvalidConfig, "duplicate detector", err)
	}

	return &Detector{
		Config: config,
		Index:  NewTransactionIndex(nil),
	}, nil
}

// LoadTransactions replaces the detector's view of stored transactions.
func (d *Detector) LoadTransactions(transactions []*models.Transaction) {
	d.Index = NewTransactionIndex(transactions)
}

// Detect returns the duplicate matches for one candidate, best first. An
// exact match always reports confidence 1.0; fuzzy matches only appear when
// the configuration enables them and the weighted score clears the
// confidence threshold.
func (d *Detector) Detect(candidate *models.Candidate) []*models.DuplicateMatch {
	var matches []*models.DuplicateMatch

	if id, ok := d.Index.LookupExact(candidate.Key()); ok {
		matches = append(matches, &models.DuplicateMatch{
			Candidate:     candidate,
			ExistingID:    id,
			Confidence:    1.0,
			MatchType:     models.MatchExact,
			MatchedFields: []string{"date", "amount", "description"},
		})
	}

	if !d.Config.EnableFuzzyMatching {
		return matches
	}

	exactKey := candidate.Key()
	stored := d.Index.GetCandidates(candidate, d.Config.DateToleranceDays, d.Config.MaxCandidatesPerRow)
	for _, tx := range stored {
		if tx.Key() == exactKey {
			continue // already reported as exact
		}
		match := d.score(candidate, tx)
		if match != nil {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	return matches
}

// DetectBulk scans a batch of candidates against stored transactions and
// against earlier rows of the same batch. A candidate whose exact key
// repeats an earlier batch row is flagged with the batch sentinel id.
func (d *Detector) DetectBulk(candidates []*models.Candidate) *BulkDetectionResult {
	result := &BulkDetectionResult{
		Matches: make(map[int][]*models.DuplicateMatch),
	}

	seen := make(map[string]int, len(candidates))
	for i, candidate := range candidates {
		matches := d.Detect(candidate)

		key := candidate.Key()
		if _, dup := seen[key]; dup {
			batchMatch := &models.DuplicateMatch{
				Candidate:     candidate,
				ExistingID:    models.BatchDuplicateID,
				Confidence:    1.0,
				MatchType:     models.MatchExact,
				MatchedFields: []string{"date", "amount", "description"},
			}
			matches = append([]*models.DuplicateMatch{batchMatch}, matches...)
		} else {
			seen[key] = i
		}

		if len(matches) == 0 {
			result.CleanCount++
			continue
		}
		result.Matches[i] = matches
	}

	return result
}

// score computes the weighted similarity between a candidate and a stored
// transaction. It returns nil when the confidence falls below the
// configured threshold.
func (d *Detector) score(candidate *models.Candidate, tx *models.Transaction) *models.DuplicateMatch {
	weights := d.Config.Weights

	dateScore := d.dateScore(candidate, tx)
	amountScore := d.amountScore(candidate, tx)
	descScore := d.descriptionScore(candidate.Description, tx.Description)

	weightedSum := dateScore*weights.DateWeight +
		amountScore*weights.AmountWeight +
		descScore*weights.DescriptionWeight
	totalWeight := weights.DateWeight + weights.AmountWeight + weights.DescriptionWeight

	var matchedFields []string
	if dateScore >= 1.0 {
		matchedFields = append(matchedFields, "date")
	}
	if amountScore >= 1.0 {
		matchedFields = append(matchedFields, "amount")
	}
	if descScore > 0 {
		matchedFields = append(matchedFields, "description")
	}

	// Category only enters the average when both records carry one and the
	// similarity clears the bonus threshold, so missing categories never
	// drag the confidence down.
	if candidate.Category != "" && tx.Category != "" {
		categorySim := similarity(normalizeText(candidate.Category), normalizeText(tx.Category))
		if categorySim > d.Config.CategoryBonusThreshold {
			weightedSum += categorySim * weights.CategoryBonus
			totalWeight += weights.CategoryBonus
			matchedFields = append(matchedFields, "category")
		}
	}

	confidence := weightedSum / totalWeight
	if confidence < d.Config.MinConfidenceScore {
		return nil
	}

	return &models.DuplicateMatch{
		Candidate:     candidate,
		ExistingID:    tx.ID,
		Confidence:    confidence,
		MatchType:     models.MatchFuzzy,
		MatchedFields: matchedFields,
	}
}

// dateScore scores date proximity: 1.0 for the same day, decaying linearly
// to 0.5 at the tolerance window edge, 0.0 outside it.
func (d *Detector) dateScore(candidate *models.Candidate, tx *models.Transaction) float64 {
	diff := candidate.Date.Sub(tx.Date)
	if diff < 0 {
		diff = -diff
	}
	diffDays := int(diff.Hours() / 24)

	if diffDays == 0 {
		return 1.0
	}
	if d.Config.DateToleranceDays == 0 || diffDays > d.Config.DateToleranceDays {
		return 0.0
	}

	decay := 0.5 * float64(diffDays) / float64(d.Config.DateToleranceDays)
	return 1.0 - decay
}

// amountScore scores amount proximity: 1.0 for equal amounts, decaying
// linearly as the relative difference approaches the tolerance, 0.0 beyond.
func (d *Detector) amountScore(candidate *models.Candidate, tx *models.Transaction) float64 {
	a := candidate.Amount.Abs()
	b := tx.Amount.Abs()

	if candidate.Amount.Equal(tx.Amount) {
		return 1.0
	}
	if d.Config.AmountTolerancePercent == 0.0 {
		return 0.0
	}
	// Differing signs are different transactions regardless of magnitude.
	if candidate.Amount.Sign() != tx.Amount.Sign() {
		return 0.0
	}

	avg := a.Add(b).Div(two)
	if avg.IsZero() {
		return 0.0
	}
	pctDiff := a.Sub(b).Abs().Div(avg).InexactFloat64() * 100.0
	if pctDiff > d.Config.AmountTolerancePercent {
		return 0.0
	}

	return math.Max(0.0, 1.0-pctDiff/d.Config.AmountTolerancePercent)
}

// descriptionScore scores description similarity, zeroed below the
// configured threshold.
func (d *Detector) descriptionScore(a, b string) float64 {
	sim := similarity(normalizeText(a), normalizeText(b))
	if sim < d.Config.DescriptionThreshold {
		return 0.0
	}
	return sim
}

// similarity returns a normalized Levenshtein similarity in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ra, rb := []rune(a), []rune(b)
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1.0 - float64(distance)/float64(longest)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
