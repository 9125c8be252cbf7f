// Package proctoring decides how recorded proctoring signals affect an
// attempt and summarizes them as review evidence.
package proctoring

import (
	"sort"

	"proctorexam/internal/models"
)

// ReasonTabSwitchLimit is the failure reason recorded when an attempt
// exceeds its tab-switch allowance.
const ReasonTabSwitchLimit = "proctoring violation: tab-switch limit exceeded"

// Decision is the policy outcome of one recorded violation
type Decision struct {
	ForceFail bool
	Reason    string
	// Evidence marks signals surfaced to reviewers without changing the attempt
	Evidence bool
}

// KnownKind reports whether k is a recognized violation kind
func KnownKind(k models.ViolationKind) bool {
	_, ok := points[k]
	return ok
}

// Evaluate applies the test's proctoring configuration to a newly recorded
// violation. tabSwitches is the number of distinct tab_switch events on the
// attempt including this one. Only the tab-switch limit can fail an attempt;
// face, audio and copy/paste signals are evidence.
func Evaluate(cfg models.ProctoringConfig, kind models.ViolationKind, tabSwitches int) Decision {
	if !cfg.Enabled {
		return Decision{}
	}
	switch kind {
	case models.ViolationTabSwitch:
		if cfg.TrackTabSwitches && tabSwitches > cfg.MaxTabSwitches {
			return Decision{ForceFail: true, Reason: ReasonTabSwitchLimit}
		}
		return Decision{Evidence: cfg.TrackTabSwitches}
	case models.ViolationNoFace, models.ViolationMultiFace, models.ViolationAudioAnomaly:
		return Decision{Evidence: cfg.RequireVideoAudio}
	case models.ViolationCopyPaste:
		return Decision{Evidence: cfg.DisableCopyPaste}
	}
	return Decision{}
}

// Per-kind weights used to rate the evidence on an attempt
var points = map[models.ViolationKind]int{
	models.ViolationTabSwitch:    10,
	models.ViolationCopyPaste:    15,
	models.ViolationNoFace:       10,
	models.ViolationMultiFace:    30,
	models.ViolationAudioAnomaly: 5,
}

// Severity of a single violation kind
func Severity(kind models.ViolationKind) string {
	p := points[kind]
	switch {
	case p >= 20:
		return "CRITICAL"
	case p >= 12:
		return "HIGH"
	case p >= 8:
		return "MEDIUM"
	}
	return "LOW"
}

func rating(score int) string {
	switch {
	case score >= 80:
		return "CRITICAL"
	case score >= 60:
		return "HIGH"
	case score >= 30:
		return "MEDIUM"
	}
	return "LOW"
}

// Summarize groups an attempt's violations for review tooling
func Summarize(attemptID string, cfg models.ProctoringConfig, events []*models.ViolationEvent) models.ViolationSummary {
	sum := models.ViolationSummary{
		AttemptID:   attemptID,
		ByKind:      make(map[models.ViolationKind]int),
		FlagReasons: []string{},
	}

	critical := 0
	for _, ev := range events {
		sum.Total++
		sum.ByKind[ev.Kind]++
		sum.Score += points[ev.Kind]
		if Severity(ev.Kind) == "CRITICAL" {
			critical++
		}
	}
	if sum.Score > 100 {
		sum.Score = 100
	}
	sum.Severity = rating(sum.Score)

	if critical >= 2 {
		sum.FlagReasons = append(sum.FlagReasons, "MULTIPLE_CRITICAL_VIOLATIONS")
	}
	if sum.ByKind[models.ViolationMultiFace] > 0 {
		sum.FlagReasons = append(sum.FlagReasons, "MULTIPLE_PEOPLE_DETECTED")
	}
	if sum.ByKind[models.ViolationNoFace] > 0 {
		sum.FlagReasons = append(sum.FlagReasons, "FACE_NOT_VISIBLE")
	}
	if sum.ByKind[models.ViolationAudioAnomaly] > 0 {
		sum.FlagReasons = append(sum.FlagReasons, "AUDIO_ANOMALY")
	}
	if sum.ByKind[models.ViolationCopyPaste] > 0 {
		sum.FlagReasons = append(sum.FlagReasons, "SUSPICIOUS_PASTE_PATTERN")
	}
	if n := sum.ByKind[models.ViolationTabSwitch]; n > 0 && (!cfg.TrackTabSwitches || n > cfg.MaxTabSwitches) {
		sum.FlagReasons = append(sum.FlagReasons, "EXCESSIVE_TAB_SWITCHING")
	}
	sort.Strings(sum.FlagReasons)
	return sum
}
