package attempt

import (
	"strconv"
	"strings"

	"proctorexam/internal/models"
)

// ScoreMCQ returns the percentage of items answered correctly. Items are
// matched by ID, so the score does not depend on presentation order.
// Unanswered items count as wrong; an empty pool scores 100.
func ScoreMCQ(items []models.StageItem, answers map[string]string) float64 {
	if len(items) == 0 {
		return 100
	}
	correct := 0
	for _, item := range items {
		given, ok := answers[item.ID]
		if !ok {
			continue
		}
		if len(item.Options) == 0 {
			if item.Answer != "" && strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(item.Answer)) {
				correct++
			}
			continue
		}
		want := optionIndex(item, item.Answer)
		if want >= 0 && optionIndex(item, given) == want {
			correct++
		}
	}
	return float64(correct) / float64(len(items)) * 100
}

// optionIndex resolves an answer given as a letter ("B"), a zero-based
// index ("1") or the option text to an option index. It returns -1 when the
// answer matches no option.
func optionIndex(item models.StageItem, answer string) int {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return -1
	}
	if len(answer) == 1 {
		c := strings.ToUpper(answer)[0]
		if c >= 'A' && c <= 'Z' {
			if idx := int(c - 'A'); idx < len(item.Options) {
				return idx
			}
		}
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 0 && n < len(item.Options) {
		return n
	}
	for i, opt := range item.Options {
		if strings.EqualFold(strings.TrimSpace(opt), answer) {
			return i
		}
	}
	return -1
}
