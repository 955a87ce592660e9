package checks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHaversineDistance_MeridianDegree verifies one degree of latitude along
// a meridian measures ~111.2km, within 0.5%.
func TestHaversineDistance_MeridianDegree(t *testing.T) {
	dist := HaversineDistance(0, 0, 1, 0)

	expected := 111_195.0 // meters, mean-radius meridian arc
	assert.InEpsilon(t, expected, dist, 0.005)
}

// TestHaversineDistance_ZeroDistance verifies identical points measure zero.
func TestHaversineDistance_ZeroDistance(t *testing.T) {
	assert.Zero(t, HaversineDistance(51.5, -0.12, 51.5, -0.12))
}

// TestHaversineDistance_Symmetric verifies direction does not matter.
func TestHaversineDistance_Symmetric(t *testing.T) {
	a := HaversineDistance(51.5007, -0.1246, 48.8566, 2.3522)
	b := HaversineDistance(48.8566, 2.3522, 51.5007, -0.1246)

	assert.InDelta(t, a, b, 1e-6)
	// London to Paris is roughly 334km.
	assert.InEpsilon(t, 334_000, a, 0.02)
}

// TestHaversineDistance_Antipodal verifies the formula is stable at the
// half-circumference extreme.
func TestHaversineDistance_Antipodal(t *testing.T) {
	dist := HaversineDistance(0, 0, 0, 180)
	assert.InEpsilon(t, math.Pi*earthRadiusMeters, dist, 0.001)
}
