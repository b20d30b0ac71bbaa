package civil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfStripsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	d := Of(time.Date(2025, 1, 1, 23, 59, 0, 0, loc))

	assert.Equal(t, New(2025, 1, 1), d)
	assert.Equal(t, "2025-01-01", d.String())
}

func TestAddDaysAndDaysSince(t *testing.T) {
	base := New(2025, 1, 1)

	assert.Equal(t, MustParse("2025-02-02"), base.AddDays(32))
	assert.Equal(t, MustParse("2025-07-30"), base.AddDays(210))
	assert.Equal(t, MustParse("2025-10-11"), base.AddDays(283))

	assert.Equal(t, 15, MustParse("2025-10-11").DaysSince(MustParse("2025-09-26")))
	assert.Equal(t, -3, MustParse("2025-01-01").DaysSince(MustParse("2025-01-04")))
	assert.Equal(t, 0, base.DaysSince(base))
}

func TestDaysSinceAcrossLeapDay(t *testing.T) {
	assert.Equal(t, 2, MustParse("2024-03-01").DaysSince(MustParse("2024-02-28")))
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Date Date `json:"date"`
	}

	out, err := json.Marshal(payload{Date: New(2025, 9, 26)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-09-26"}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-09-26T18:30:00Z"}`), &in))
	assert.Equal(t, New(2025, 9, 26), in.Date)

	require.Error(t, json.Unmarshal([]byte(`{"date":"26/09/2025"}`), &in))
}

func TestScan(t *testing.T) {
	var d Date

	require.NoError(t, d.Scan(time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, New(2025, 10, 11), d)

	require.NoError(t, d.Scan([]byte("2025-10-12")))
	assert.Equal(t, New(2025, 10, 12), d)

	require.NoError(t, d.Scan("2025-10-13T00:00:00Z"))
	assert.Equal(t, New(2025, 10, 13), d)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}
