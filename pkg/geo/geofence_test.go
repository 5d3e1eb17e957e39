package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	assert.Zero(t, Distance(-6.2088, 106.8456, -6.2088, 106.8456))
	assert.True(t, WithinRadius(-6.2088, 106.8456, -6.2088, 106.8456, 1))
}

func TestDistanceSymmetry(t *testing.T) {
	d1 := Distance(-6.2088, 106.8456, -6.1751, 106.8650)
	d2 := Distance(-6.1751, 106.8650, -6.2088, 106.8456)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of latitude is roughly 111.2 km on the reference sphere.
	d := Distance(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)
}

func TestWithinRadiusBoundary(t *testing.T) {
	// ~110 m north of the center along a cardinal bearing.
	const centerLat, centerLon = -6.2088, 106.8456
	pointLat := centerLat + 0.00099

	d := Distance(centerLat, centerLon, pointLat, centerLon)
	assert.True(t, WithinRadius(centerLat, centerLon, pointLat, centerLon, d+1))
	assert.False(t, WithinRadius(centerLat, centerLon, pointLat, centerLon, d-1))
}

func TestWithinRadiusNegativeRadius(t *testing.T) {
	assert.False(t, WithinRadius(0, 0, 0, 0, -1))
}
