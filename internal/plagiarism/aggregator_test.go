package plagiarism

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctorexam/internal/models"
)

func result(matched, matchType string, score float64) models.SimilarityResult {
	return models.SimilarityResult{
		SubmissionID:        "sub-1",
		MatchedSubmissionID: matched,
		MatchedStudentID:    "student-" + matched,
		MatchType:           matchType,
		SimilarityScore:     score,
	}
}

func TestBandsClassify(t *testing.T) {
	b := DefaultBands()
	tests := []struct {
		score float64
		want  models.Intensity
	}{
		{0, models.IntensityLow},
		{0.29, models.IntensityLow},
		{0.3, models.IntensityMedium},
		{0.59, models.IntensityMedium},
		{0.6, models.IntensityHigh},
		{0.85, models.IntensityHigh},
		{0.851, models.IntensityCritical},
		{1, models.IntensityCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Classify(tt.score), "score %v", tt.score)
	}
}

func TestBandsValidate(t *testing.T) {
	assert.NoError(t, DefaultBands().Validate())
	assert.Error(t, Bands{Medium: 0.5, High: 0.4, Critical: 0.9}.Validate())
	assert.Error(t, Bands{Medium: -0.1, High: 0.4, Critical: 0.9}.Validate())
	assert.Error(t, Bands{Medium: 0.1, High: 0.4, Critical: 1.2}.Validate())

	_, err := NewAggregator(Options{MinAgreeing: 2, Bands: Bands{Medium: 0.7, High: 0.6, Critical: 0.9}})
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	ag, err := NewAggregator(DefaultOptions())
	require.NoError(t, err)

	tests := []struct {
		name           string
		results        []models.SimilarityResult
		wantScore      float64
		wantIntensity  models.Intensity
		wantMatches    int
		wantSuspicious int
	}{
		{
			name:          "no results",
			wantScore:     0,
			wantIntensity: models.IntensityLow,
		},
		{
			name:          "single algorithm uses max",
			results:       []models.SimilarityResult{result("sub-2", "token", 0.5), result("sub-3", "token", 0.2)},
			wantScore:     0.5,
			wantIntensity: models.IntensityMedium,
			wantMatches:   2,
		},
		{
			name:           "two agreeing algorithms boost",
			results:        []models.SimilarityResult{result("sub-2", "token", 0.8), result("sub-2", "ast", 0.75)},
			wantScore:      0.9,
			wantIntensity:  models.IntensityCritical,
			wantMatches:    2,
			wantSuspicious: 2,
		},
		{
			name:           "agreement on different submissions does not boost",
			results:        []models.SimilarityResult{result("sub-2", "token", 0.8), result("sub-3", "ast", 0.75)},
			wantScore:      0.8,
			wantIntensity:  models.IntensityHigh,
			wantMatches:    2,
			wantSuspicious: 2,
		},
		{
			name:           "duplicate algorithm results keep the highest",
			results:        []models.SimilarityResult{result("sub-2", "token", 0.8), result("sub-2", "token", 0.75)},
			wantScore:      0.8,
			wantIntensity:  models.IntensityHigh,
			wantMatches:    1,
			wantSuspicious: 1,
		},
		{
			name:          "self matches are ignored",
			results:       []models.SimilarityResult{result("sub-1", "token", 1)},
			wantScore:     0,
			wantIntensity: models.IntensityLow,
		},
		{
			name:           "boost is capped",
			results:        []models.SimilarityResult{result("sub-2", "token", 1), result("sub-2", "ast", 1), result("sub-2", "timing", 1)},
			wantScore:      1,
			wantIntensity:  models.IntensityCritical,
			wantMatches:    3,
			wantSuspicious: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ag.Build("sub-1", "student-1", "problem-1", tt.results)
			assert.InDelta(t, tt.wantScore, r.SuspicionScore, 1e-9)
			assert.Equal(t, tt.wantIntensity, r.Intensity)
			assert.Equal(t, Recommendation(tt.wantIntensity), r.Recommendation)
			assert.Len(t, r.Matches, tt.wantMatches)
			assert.Equal(t, tt.wantSuspicious, r.SuspiciousMatchCount)
			assert.Equal(t, models.ReviewPending, r.ReviewStatus)
			assert.GreaterOrEqual(t, r.SuspicionScore, r.MaxSimilarity)
		})
	}
}

func TestBuildOrdersMatches(t *testing.T) {
	ag, err := NewAggregator(DefaultOptions())
	require.NoError(t, err)

	r := ag.Build("sub-1", "s", "p", []models.SimilarityResult{
		result("sub-4", "token", 0.4),
		result("sub-2", "ast", 0.9),
		result("sub-3", "token", 0.4),
	})

	require.Len(t, r.Matches, 3)
	assert.Equal(t, "sub-2", r.Matches[0].MatchedSubmissionID)
	assert.Equal(t, "sub-3", r.Matches[1].MatchedSubmissionID)
	assert.Equal(t, "sub-4", r.Matches[2].MatchedSubmissionID)
}

func TestMerge(t *testing.T) {
	reviewedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created := reviewedAt.Add(-time.Hour)
	existing := &models.PlagiarismReport{
		ID:             "rep-1",
		SubmissionID:   "sub-1",
		SuspicionScore: 0.4,
		ReviewStatus:   models.ReviewConfirmed,
		ReviewNotes:    "copied from sub-2",
		ReviewedBy:     "reviewer-1",
		ReviewedAt:     &reviewedAt,
		CreatedAt:      created,
	}
	fresh := &models.PlagiarismReport{
		SubmissionID:   "sub-1",
		SuspicionScore: 0.9,
		Intensity:      models.IntensityCritical,
		ReviewStatus:   models.ReviewPending,
	}

	merged := Merge(existing, fresh)
	assert.Equal(t, "rep-1", merged.ID)
	assert.Equal(t, 0.9, merged.SuspicionScore)
	assert.Equal(t, models.IntensityCritical, merged.Intensity)
	assert.Equal(t, models.ReviewConfirmed, merged.ReviewStatus)
	assert.Equal(t, "copied from sub-2", merged.ReviewNotes)
	assert.Equal(t, created, merged.CreatedAt)

	assert.Same(t, fresh, Merge(nil, fresh))
}
