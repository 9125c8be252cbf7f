// Package shuffle produces stable question orders for an attempt.
//
// The seed is a 32-bit string hash of "<studentID>-<testID>": for each
// UTF-16 code unit c, h = h*31 + c with two's-complement wraparound, and
// the seed is |h| (so it always lies in [0, 2^31]).
//
// The shuffle is a backward Fisher-Yates driven by the linear congruential
// generator s' = (s*9301 + 49297) mod 233280, each draw yielding s'/233280.
// For i from len-1 down to 1 the swap index is floor(draw * (i+1)).
package shuffle

import (
	"math"
	"unicode/utf16"

	"proctorexam/internal/models"
)

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// GenerateSeed derives the attempt seed from student and test identity
func GenerateSeed(studentID, testID string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(studentID + "-" + testID)) {
		h = (h << 5) - h + int32(c)
	}
	seed := int64(h)
	if seed < 0 {
		seed = -seed
	}
	return seed
}

// StageSeed offsets the attempt seed per stage kind so each stage gets its
// own stable order.
func StageSeed(seed int64, kind models.StageKind) int64 {
	return seed + int64(len(kind))
}

// Shuffle returns a permutation of items determined entirely by seed.
// The input slice is not modified. Negative seeds are treated as their
// absolute value.
func Shuffle[T any](items []T, seed int64) []T {
	out := make([]T, len(items))
	copy(out, items)
	if len(out) < 2 {
		return out
	}

	s := seed
	if s < 0 {
		s = -s
	}
	next := func() float64 {
		s = (s*lcgMultiplier + lcgIncrement) % lcgModulus
		return float64(s) / lcgModulus
	}

	for i := len(out) - 1; i >= 1; i-- {
		j := int(math.Floor(next() * float64(i+1)))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Items returns a stage's items in the order fixed by the attempt seed
func Items(stage models.StageSpec, seed int64) []models.StageItem {
	return Shuffle(stage.Items, StageSeed(seed, stage.Kind))
}
