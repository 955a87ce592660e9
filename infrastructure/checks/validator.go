// Package checks implements the deterministic proof validator: a fixed
// battery of weighted checks with a critical-failure override.
//
// The per-check breakdown in the result is not optional telemetry; the
// external audit log persists it verbatim, so its shape is part of the
// contract.
package checks

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/poidh-labs/sentinel/internal/domain"
)

// Check names, stable identifiers in the audit breakdown.
const (
	CheckProofContent = "proof_content"
	CheckMediaLocator = "media_locator"
	CheckLocation     = "location"
	CheckTimeWindow   = "time_window"
	CheckKeywords     = "keywords"
	CheckExif         = "exif"
	CheckFreshness    = "freshness"
	CheckScreenshot   = "screenshot"
)

// Fixed point weights per check. Not configurable.
var checkWeights = map[string]int{
	CheckProofContent: 20,
	CheckMediaLocator: 20,
	CheckLocation:     30,
	CheckTimeWindow:   20,
	CheckKeywords:     10,
	CheckExif:         15,
	CheckFreshness:    20,
	CheckScreenshot:   15,
}

// criticalChecks auto-reject the submission when an applicable one fails,
// regardless of the numeric score.
var criticalChecks = map[string]bool{
	CheckProofContent: true,
	CheckMediaLocator: true,
	CheckExif:         true,
	CheckFreshness:    true,
	CheckScreenshot:   true,
}

// screenshotMarkers are the device-field substrings that flag a screen
// capture. This heuristic is known-weak: the device field is frequently
// absent, and an absent field passes.
var screenshotMarkers = []string{"screenshot", "screen capture", "snipping"}

// minPassingScore is the normalized score floor for overall validity.
const minPassingScore = 50

// Validator runs the deterministic check battery against a submission.
// It is stateless apart from an injectable clock.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// NewValidatorWithClock creates a validator with a fixed clock for tests.
func NewValidatorWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// Validate runs every applicable check and produces the normalized result.
// Scores are deterministic for identical input; there is no randomness.
func (v *Validator) Validate(sub *domain.Submission, criteria domain.BountyCriteria) domain.ValidationResult {
	rules := criteria.Rules
	content := sub.Content

	var earned, possible int
	var checks []domain.CheckResult
	var criticalFailure string

	record := func(name string, passed bool, detail string) {
		weight := checkWeights[name]
		possible += weight
		if passed {
			earned += weight
		} else if criticalChecks[name] && criticalFailure == "" {
			criticalFailure = name
		}
		checks = append(checks, domain.CheckResult{Name: name, Passed: passed, Detail: detail})
	}

	// Proof content present: always applicable.
	if content != nil {
		record(CheckProofContent, true, fmt.Sprintf("proof content present (%s)", content.Type))
	} else {
		record(CheckProofContent, false, "proof content unavailable")
	}

	// Media locator: applies to photo and video proofs.
	if content != nil && (content.Type == domain.ProofTypePhoto || content.Type == domain.ProofTypeVideo) {
		if content.MediaURI != "" {
			record(CheckMediaLocator, true, "media locator present")
		} else {
			record(CheckMediaLocator, false, fmt.Sprintf("%s proof has no media locator", content.Type))
		}
	}

	if rules.Location != nil {
		v.checkLocation(record, content, rules.Location)
	}
	if rules.TimeWindow != nil {
		v.checkTimeWindow(record, sub, rules.TimeWindow)
	}
	if len(rules.RequiredKeywords) > 0 {
		v.checkKeywords(record, content, rules.RequiredKeywords)
	}
	if rules.RequireExif {
		v.checkExif(record, content)
	}
	if rules.MaxAgeMinutes > 0 {
		v.checkFreshness(record, sub, rules.MaxAgeMinutes)
	}
	if rules.RejectScreenshots {
		v.checkScreenshot(record, content)
	}

	score := 0
	if possible > 0 {
		score = int(math.Round(100 * float64(earned) / float64(possible)))
	}

	valid := criticalFailure == "" && score >= minPassingScore

	passedCount := 0
	for _, c := range checks {
		if c.Passed {
			passedCount++
		}
	}
	summary := fmt.Sprintf("%d/%d checks passed, score %d/100", passedCount, len(checks), score)
	if criticalFailure != "" {
		summary += fmt.Sprintf("; rejected: critical check %q failed", criticalFailure)
	}

	return domain.ValidationResult{
		Valid:   valid,
		Score:   score,
		Checks:  checks,
		Summary: summary,
	}
}

type recordFunc func(name string, passed bool, detail string)

// checkLocation compares the proof's GPS coordinates against the required
// point. Missing GPS data is an automatic fail, not an exemption.
func (v *Validator) checkLocation(record recordFunc, content *domain.ProofContent, rule *domain.LocationRule) {
	if content == nil || !content.Exif.HasGPS() {
		record(CheckLocation, false, "no GPS data in proof metadata")
		return
	}

	dist := HaversineDistance(*content.Exif.Latitude, *content.Exif.Longitude, rule.Latitude, rule.Longitude)
	label := rule.Label
	if label == "" {
		label = fmt.Sprintf("%.5f,%.5f", rule.Latitude, rule.Longitude)
	}

	if dist <= rule.RadiusMeters {
		record(CheckLocation, true, fmt.Sprintf("%.0fm from %s (limit %.0fm)", dist, label, rule.RadiusMeters))
	} else {
		record(CheckLocation, false, fmt.Sprintf("%.0fm from %s exceeds limit %.0fm", dist, label, rule.RadiusMeters))
	}
}

// checkTimeWindow prefers the EXIF capture time, falling back to the
// submission receipt time, and passes on inclusive bounds.
func (v *Validator) checkTimeWindow(record recordFunc, sub *domain.Submission, rule *domain.TimeWindowRule) {
	ts, source := proofTimestamp(sub)
	epoch := ts.Unix()

	if epoch >= rule.Start && epoch <= rule.End {
		record(CheckTimeWindow, true, fmt.Sprintf("%s timestamp %d within [%d, %d]", source, epoch, rule.Start, rule.End))
	} else {
		record(CheckTimeWindow, false, fmt.Sprintf("%s timestamp %d outside [%d, %d]", source, epoch, rule.Start, rule.End))
	}
}

// checkKeywords requires every keyword to appear, case-insensitively, in
// the description or the serialized metadata.
func (v *Validator) checkKeywords(record recordFunc, content *domain.ProofContent, keywords []string) {
	var haystack strings.Builder
	if content != nil {
		haystack.WriteString(content.Description)
		if len(content.Metadata) > 0 {
			if raw, err := json.Marshal(content.Metadata); err == nil {
				haystack.WriteString(" ")
				haystack.Write(raw)
			}
		}
	}

	folder := cases.Fold()
	folded := folder.String(haystack.String())

	var missing []string
	for _, kw := range keywords {
		if !strings.Contains(folded, folder.String(kw)) {
			missing = append(missing, kw)
		}
	}

	if len(missing) == 0 {
		record(CheckKeywords, true, fmt.Sprintf("all %d required keywords present", len(keywords)))
	} else {
		record(CheckKeywords, false, fmt.Sprintf("missing keywords: %s", strings.Join(missing, ", ")))
	}
}

func (v *Validator) checkExif(record recordFunc, content *domain.ProofContent) {
	if content != nil && content.Exif != nil && !content.Exif.Timestamp.IsZero() {
		record(CheckExif, true, "EXIF metadata present with timestamp")
	} else {
		record(CheckExif, false, "EXIF metadata with timestamp required but absent")
	}
}

func (v *Validator) checkFreshness(record recordFunc, sub *domain.Submission, maxAgeMinutes int) {
	ts, source := proofTimestamp(sub)
	age := v.now().Sub(ts)
	limit := time.Duration(maxAgeMinutes) * time.Minute

	if age <= limit {
		record(CheckFreshness, true, fmt.Sprintf("%s age %s within %s", source, age.Round(time.Second), limit))
	} else {
		record(CheckFreshness, false, fmt.Sprintf("%s age %s exceeds %s", source, age.Round(time.Second), limit))
	}
}

// checkScreenshot looks for capture-tool markers in the device field.
// Explicitly weak: proofs without a device field always pass. Do not
// strengthen without new signal sources.
func (v *Validator) checkScreenshot(record recordFunc, content *domain.ProofContent) {
	device := ""
	if content != nil && content.Exif != nil {
		device = strings.ToLower(content.Exif.Device)
	}

	for _, marker := range screenshotMarkers {
		if device != "" && strings.Contains(device, marker) {
			record(CheckScreenshot, false, fmt.Sprintf("device %q matches screenshot marker %q", device, marker))
			return
		}
	}
	record(CheckScreenshot, true, "no screenshot markers in device metadata")
}

// proofTimestamp returns the best available capture time: the EXIF
// timestamp when present, otherwise the submission receipt time.
func proofTimestamp(sub *domain.Submission) (time.Time, string) {
	if sub.Content != nil && sub.Content.Exif != nil && !sub.Content.Exif.Timestamp.IsZero() {
		return sub.Content.Exif.Timestamp, "EXIF"
	}
	return sub.CreatedAt, "receipt"
}
