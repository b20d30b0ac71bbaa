package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/herd-api/pkg/civil"
)

func TestNewZonedFallsBackToUTC(t *testing.T) {
	z := NewZoned("Not/AZone")

	assert.True(t, z.Degraded())
	assert.Equal(t, time.UTC, z.Location())
}

func TestNewZonedEmptyIsUTC(t *testing.T) {
	z := NewZoned("")

	assert.False(t, z.Degraded())
	assert.Equal(t, time.UTC, z.Location())
}

func TestFixedTodayUsesLocation(t *testing.T) {
	// 03:00 UTC on Sep 27 is still Sep 26 six hours west of UTC.
	loc := time.FixedZone("GT", -6*3600)
	f := NewFixed(time.Date(2025, 9, 27, 3, 0, 0, 0, time.UTC), loc)

	assert.Equal(t, civil.New(2025, 9, 26), f.Today())

	f.Advance(6 * time.Hour)
	assert.Equal(t, civil.New(2025, 9, 27), f.Today())
}

func TestOnDate(t *testing.T) {
	d := civil.New(2025, 9, 26)
	assert.Equal(t, d, OnDate(d).Today())
}
