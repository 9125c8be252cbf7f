// Package plagiarism combines per-algorithm similarity results into a
// single suspicion report per submission.
package plagiarism

import (
	"fmt"
	"sort"

	"proctorexam/internal/models"
)

// Recommendations attached to a report by intensity
const (
	RecommendImmediateReview = "IMMEDIATE_REVIEW_REQUIRED"
	RecommendDetailedReview  = "DETAILED_REVIEW"
	RecommendMonitor         = "MONITOR"
	RecommendNormal          = "NORMAL"
)

// Bands are the lower bounds of the MEDIUM and HIGH intensities and the
// upper bound of HIGH. Scores above Critical are CRITICAL.
type Bands struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultBands returns the standard 0.3 / 0.6 / 0.85 banding
func DefaultBands() Bands {
	return Bands{Medium: 0.3, High: 0.6, Critical: 0.85}
}

// Validate checks that the bands are monotonic within [0,1]
func (b Bands) Validate() error {
	if b.Medium < 0 || b.Critical > 1 {
		return fmt.Errorf("plagiarism bands must lie within [0,1]: %+v", b)
	}
	if b.Medium > b.High || b.High > b.Critical {
		return fmt.Errorf("plagiarism bands must be monotonic: %+v", b)
	}
	return nil
}

// Classify maps a suspicion score to its intensity
func (b Bands) Classify(score float64) models.Intensity {
	switch {
	case score < b.Medium:
		return models.IntensityLow
	case score < b.High:
		return models.IntensityMedium
	case score <= b.Critical:
		return models.IntensityHigh
	default:
		return models.IntensityCritical
	}
}

// Recommendation returns the review action for an intensity
func Recommendation(level models.Intensity) string {
	switch level {
	case models.IntensityCritical:
		return RecommendImmediateReview
	case models.IntensityHigh:
		return RecommendDetailedReview
	case models.IntensityMedium:
		return RecommendMonitor
	}
	return RecommendNormal
}

// Options tune aggregation
type Options struct {
	// AgreementThreshold is the similarity an algorithm must exceed to count as agreeing
	AgreementThreshold float64
	// MinAgreeing is how many distinct algorithms must agree on one matched submission
	MinAgreeing int
	// BoostFactor is the fraction of the remaining distance to 1.0 added on agreement
	BoostFactor float64
	Bands       Bands
}

// DefaultOptions returns the standard aggregation settings
func DefaultOptions() Options {
	return Options{AgreementThreshold: 0.7, MinAgreeing: 2, BoostFactor: 0.5, Bands: DefaultBands()}
}

// Aggregator builds reports from similarity results
type Aggregator struct {
	opts Options
}

// NewAggregator validates opts and returns an aggregator
func NewAggregator(opts Options) (*Aggregator, error) {
	if err := opts.Bands.Validate(); err != nil {
		return nil, err
	}
	if opts.MinAgreeing < 1 {
		return nil, fmt.Errorf("min agreeing algorithms must be at least 1, got %d", opts.MinAgreeing)
	}
	if opts.BoostFactor < 0 || opts.BoostFactor > 1 {
		return nil, fmt.Errorf("boost factor must lie within [0,1], got %v", opts.BoostFactor)
	}
	return &Aggregator{opts: opts}, nil
}

// Build computes a fresh report for submissionID. The report has no ID or
// timestamps and its review status is pending.
func (ag *Aggregator) Build(submissionID, studentID, problemID string, results []models.SimilarityResult) *models.PlagiarismReport {
	type key struct{ matched, matchType string }
	best := make(map[key]models.PlagiarismMatch)
	for _, r := range results {
		if r.MatchedSubmissionID == submissionID {
			continue
		}
		k := key{r.MatchedSubmissionID, r.MatchType}
		if cur, ok := best[k]; ok && cur.SimilarityScore >= r.SimilarityScore {
			continue
		}
		best[k] = models.PlagiarismMatch{
			MatchedSubmissionID: r.MatchedSubmissionID,
			MatchedStudentID:    r.MatchedStudentID,
			SimilarityScore:     clamp(r.SimilarityScore),
			MatchType:           r.MatchType,
		}
	}

	matches := make([]models.PlagiarismMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		if matches[i].MatchedSubmissionID != matches[j].MatchedSubmissionID {
			return matches[i].MatchedSubmissionID < matches[j].MatchedSubmissionID
		}
		return matches[i].MatchType < matches[j].MatchType
	})

	maxSim := 0.0
	perMatched := make(map[string]float64)
	agreeing := make(map[string]int)
	suspicious := 0
	for _, m := range matches {
		if m.SimilarityScore > maxSim {
			maxSim = m.SimilarityScore
		}
		if m.SimilarityScore > perMatched[m.MatchedSubmissionID] {
			perMatched[m.MatchedSubmissionID] = m.SimilarityScore
		}
		if m.SimilarityScore > ag.opts.AgreementThreshold {
			agreeing[m.MatchedSubmissionID]++
		}
		if m.SimilarityScore >= ag.opts.Bands.High {
			suspicious++
		}
	}

	score := maxSim
	for matched, n := range agreeing {
		if n < ag.opts.MinAgreeing {
			continue
		}
		top := perMatched[matched]
		if boosted := top + (1-top)*ag.opts.BoostFactor; boosted > score {
			score = boosted
		}
	}
	score = clamp(score)

	level := ag.opts.Bands.Classify(score)
	return &models.PlagiarismReport{
		SubmissionID:         submissionID,
		StudentID:            studentID,
		ProblemID:            problemID,
		SuspicionScore:       score,
		MaxSimilarity:        maxSim,
		Intensity:            level,
		Recommendation:       Recommendation(level),
		SuspiciousMatchCount: suspicious,
		ReviewStatus:         models.ReviewPending,
		Matches:              matches,
	}
}

// Merge overlays a freshly built report onto the stored one. Scoring fields
// come from fresh; identity and every review field stay as stored, so a
// human decision is never reset to pending.
func Merge(existing, fresh *models.PlagiarismReport) *models.PlagiarismReport {
	if existing == nil {
		return fresh
	}
	out := *fresh
	out.ID = existing.ID
	out.CreatedAt = existing.CreatedAt
	out.ReviewStatus = existing.ReviewStatus
	out.ReviewNotes = existing.ReviewNotes
	out.ReviewedBy = existing.ReviewedBy
	out.ReviewedAt = existing.ReviewedAt
	if out.ReviewStatus == "" {
		out.ReviewStatus = models.ReviewPending
	}
	return &out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
