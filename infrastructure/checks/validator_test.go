package checks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poidh-labs/sentinel/internal/domain"
)

func ptr(v float64) *float64 { return &v }

// fixedClock is the evaluation instant used by freshness tests.
var fixedClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	return NewValidatorWithClock(func() time.Time { return fixedClock })
}

// fullSubmission builds a submission that satisfies every rule used in
// these tests: on-site, in-window, fresh, EXIF-bearing photo.
func fullSubmission() *domain.Submission {
	captured := fixedClock.Add(-10 * time.Minute)
	return &domain.Submission{
		ID:        "b1/c1",
		BountyID:  "b1",
		ClaimID:   "c1",
		CreatedAt: fixedClock.Add(-5 * time.Minute),
		ProofURI:  "ipfs://QmProof",
		Content: &domain.ProofContent{
			Type:        domain.ProofTypePhoto,
			MediaURI:    "ipfs://QmPhoto",
			Description: "Sunrise over the pier with my coffee",
			Exif: &domain.ExifData{
				Timestamp: captured,
				Latitude:  ptr(51.5007),
				Longitude: ptr(-0.1246),
				Device:    "Pixel 9 Pro",
			},
		},
	}
}

func strictCriteria() domain.BountyCriteria {
	return domain.BountyCriteria{
		Mode:  domain.SelectionFirstValid,
		Proof: domain.ProofTypePhoto,
		Rules: domain.ValidationRules{
			Location: &domain.LocationRule{
				Latitude:     51.5007,
				Longitude:    -0.1246,
				RadiusMeters: 500,
				Label:        "pier",
			},
			TimeWindow: &domain.TimeWindowRule{
				Start: fixedClock.Add(-time.Hour).Unix(),
				End:   fixedClock.Unix(),
			},
			RequiredKeywords:  []string{"sunrise", "pier"},
			RequireExif:       true,
			MaxAgeMinutes:     60,
			RejectScreenshots: true,
		},
	}
}

// TestValidate_AllChecksPass verifies a fully compliant submission scores
// 100 and is valid, with one result per applicable check.
func TestValidate_AllChecksPass(t *testing.T) {
	result := testValidator().Validate(fullSubmission(), strictCriteria())

	assert.True(t, result.Valid)
	assert.Equal(t, 100, result.Score)
	assert.Len(t, result.Checks, 8)
	for _, check := range result.Checks {
		assert.True(t, check.Passed, "check %s: %s", check.Name, check.Detail)
	}
	assert.Contains(t, result.Summary, "8/8 checks passed")
}

// TestValidate_Deterministic verifies identical input yields identical
// output, breakdown included.
func TestValidate_Deterministic(t *testing.T) {
	v := testValidator()
	first := v.Validate(fullSubmission(), strictCriteria())
	second := v.Validate(fullSubmission(), strictCriteria())

	assert.Equal(t, first, second)
}

// TestValidate_CriticalOverridesScore verifies that a failed critical check
// rejects the submission even when the numeric score clears the floor.
func TestValidate_CriticalOverridesScore(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Exif.Device = "Android Screenshot Tool"

	result := testValidator().Validate(sub, strictCriteria())

	// Only the screenshot check fails: 15 of 150 points lost.
	assert.Equal(t, 90, result.Score)
	assert.False(t, result.Valid, "critical failure must override the score")
	assert.Contains(t, result.Summary, `critical check "screenshot" failed`)
}

// TestValidate_MissingContent verifies an unresolvable proof fails the
// always-critical content check.
func TestValidate_MissingContent(t *testing.T) {
	sub := fullSubmission()
	sub.Content = nil

	result := testValidator().Validate(sub, strictCriteria())

	assert.False(t, result.Valid)
	assert.Contains(t, result.Summary, `critical check "proof_content" failed`)
}

// TestValidate_LocationOutsideRadius verifies GPS beyond the radius fails
// the (non-critical) location check and drags the score down.
func TestValidate_LocationOutsideRadius(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Exif.Latitude = ptr(48.8566) // Paris, not the pier
	sub.Content.Exif.Longitude = ptr(2.3522)

	result := testValidator().Validate(sub, strictCriteria())

	// 30 of 150 points lost, no critical failure.
	assert.Equal(t, 80, result.Score)
	assert.True(t, result.Valid)

	var location domain.CheckResult
	for _, c := range result.Checks {
		if c.Name == CheckLocation {
			location = c
		}
	}
	assert.False(t, location.Passed)
	assert.Contains(t, location.Detail, "exceeds limit")
}

// TestValidate_LocationWithoutGPS verifies a missing coordinate fails the
// location check rather than exempting the submission.
func TestValidate_LocationWithoutGPS(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Exif.Latitude = nil

	result := testValidator().Validate(sub, strictCriteria())

	for _, c := range result.Checks {
		if c.Name == CheckLocation {
			assert.False(t, c.Passed)
			assert.Contains(t, c.Detail, "no GPS data")
		}
	}
}

// TestValidate_KeywordsCaseInsensitive verifies keyword matching folds case
// and searches metadata as well as the description.
func TestValidate_KeywordsCaseInsensitive(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Description = "SUNRISE photo"
	sub.Content.Metadata = map[string]any{"spot": "the Pier"}

	result := testValidator().Validate(sub, strictCriteria())

	for _, c := range result.Checks {
		if c.Name == CheckKeywords {
			assert.True(t, c.Passed, c.Detail)
		}
	}
}

// TestValidate_MissingKeywordsListed verifies the failure detail names what
// was absent, for the audit trail.
func TestValidate_MissingKeywordsListed(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Description = "a photo"
	sub.Content.Metadata = nil

	result := testValidator().Validate(sub, strictCriteria())

	for _, c := range result.Checks {
		if c.Name == CheckKeywords {
			assert.False(t, c.Passed)
			assert.Contains(t, c.Detail, "sunrise")
			assert.Contains(t, c.Detail, "pier")
		}
	}
}

// TestValidate_FreshnessUsesReceiptFallback verifies the receipt time is
// used when no EXIF timestamp exists, and stale proofs fail.
func TestValidate_FreshnessUsesReceiptFallback(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Exif = nil
	sub.CreatedAt = fixedClock.Add(-3 * time.Hour)

	criteria := domain.BountyCriteria{
		Rules: domain.ValidationRules{MaxAgeMinutes: 60},
	}
	result := testValidator().Validate(sub, criteria)

	for _, c := range result.Checks {
		if c.Name == CheckFreshness {
			assert.False(t, c.Passed)
			assert.Contains(t, c.Detail, "receipt")
		}
	}
	assert.False(t, result.Valid, "freshness is critical")
}

// TestValidate_TimeWindowInclusiveBounds verifies boundary timestamps pass.
func TestValidate_TimeWindowInclusiveBounds(t *testing.T) {
	criteria := domain.BountyCriteria{
		Rules: domain.ValidationRules{
			TimeWindow: &domain.TimeWindowRule{
				Start: fixedClock.Add(-time.Hour).Unix(),
				End:   fixedClock.Unix(),
			},
		},
	}

	sub := fullSubmission()
	sub.Content.Exif.Timestamp = fixedClock // exactly End

	result := testValidator().Validate(sub, criteria)
	for _, c := range result.Checks {
		if c.Name == CheckTimeWindow {
			assert.True(t, c.Passed, c.Detail)
		}
	}
}

// TestValidate_ScreenshotHeuristicAbsentDevicePasses documents the known
// weakness: no device metadata means the screenshot check cannot fire.
func TestValidate_ScreenshotHeuristicAbsentDevicePasses(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Exif.Device = ""

	result := testValidator().Validate(sub, strictCriteria())

	for _, c := range result.Checks {
		if c.Name == CheckScreenshot {
			assert.True(t, c.Passed)
		}
	}
}

// TestValidate_NoRulesMinimalBattery verifies a bounty without optional
// rules still runs the content check.
func TestValidate_NoRulesMinimalBattery(t *testing.T) {
	sub := fullSubmission()
	result := testValidator().Validate(sub, domain.BountyCriteria{Proof: domain.ProofTypePhoto})

	// content + media locator only.
	require.Len(t, result.Checks, 2)
	assert.Equal(t, 100, result.Score)
	assert.True(t, result.Valid)
}

// TestValidate_RequiredExifMissing verifies a photo without EXIF metadata is
// invalid when the bounty demands it, regardless of the remaining score.
func TestValidate_RequiredExifMissing(t *testing.T) {
	sub := fullSubmission()
	sub.Content.Exif = nil

	criteria := domain.BountyCriteria{
		Proof: domain.ProofTypePhoto,
		Rules: domain.ValidationRules{RequireExif: true},
	}
	result := testValidator().Validate(sub, criteria)

	var exif *domain.CheckResult
	for i := range result.Checks {
		if result.Checks[i].Name == CheckExif {
			exif = &result.Checks[i]
		}
	}
	require.NotNil(t, exif)
	assert.False(t, exif.Passed)
	assert.False(t, result.Valid, "exif is critical")
}

// TestValidate_ScoreBounds verifies scores stay within [0, 100] across
// pass/fail mixes.
func TestValidate_ScoreBounds(t *testing.T) {
	empty := &domain.Submission{CreatedAt: fixedClock}
	result := testValidator().Validate(empty, strictCriteria())
	assert.GreaterOrEqual(t, result.Score, 0)
	assert.LessOrEqual(t, result.Score, 100)
	assert.False(t, result.Valid)

	result = testValidator().Validate(fullSubmission(), strictCriteria())
	assert.LessOrEqual(t, result.Score, 100)
}
