package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jwalitptl/herd-api/pkg/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from    AlertState
		tr      Transition
		want    AlertState
		changed bool
	}{
		{AlertStatePending, TransitionNotify, AlertStateNotified, true},
		{AlertStateAttended, TransitionNotify, AlertStateAttended, false},
		{AlertStateNotified, TransitionNotify, AlertStateNotified, false},
		{AlertStateExpired, TransitionNotify, AlertStateNotified, true},
		{AlertStateNotified, TransitionAttend, AlertStateAttended, true},
		{AlertStatePending, TransitionExpire, AlertStateExpired, true},
		{AlertStateNotified, TransitionExpire, AlertStateNotified, false},
		{AlertStateAttended, TransitionExpire, AlertStateAttended, false},
		{AlertStateAttended, TransitionReopen, AlertStatePending, true},
		{AlertStateExpired, TransitionReopen, AlertStatePending, true},
	}
	for _, tc := range cases {
		got, changed := tc.from.Apply(tc.tr)
		assert.Equal(t, tc.want, got, "%s -%s->", tc.from, tc.tr)
		assert.Equal(t, tc.changed, changed, "%s -%s->", tc.from, tc.tr)
	}
}

func TestStateCanBecome(t *testing.T) {
	assert.True(t, AlertStatePending.CanBecome(AlertStateExpired))
	assert.True(t, AlertStatePending.CanBecome(AlertStatePending))
	assert.True(t, AlertStateAttended.CanBecome(AlertStatePending))
	assert.True(t, AlertStateExpired.CanBecome(AlertStateNotified))
	assert.False(t, AlertStateAttended.CanBecome(AlertStateExpired))
	assert.False(t, AlertStateAttended.CanBecome(AlertStateNotified))
	assert.False(t, AlertStateNotified.CanBecome(AlertStateExpired))
}

func TestDueThreshold(t *testing.T) {
	today := civil.MustParse("2025-09-26")
	a := &Alert{TargetDate: today.AddDays(7), Reminders: Reminders{}}

	th, ok := a.DueThreshold(today)
	require.True(t, ok)
	assert.Equal(t, Threshold7, th)

	a.Reminders.Mark(Threshold7, time.Now())
	_, ok = a.DueThreshold(today)
	assert.False(t, ok)

	a.TargetDate = today.AddDays(6)
	_, ok = a.DueThreshold(today)
	assert.False(t, ok)

	a.TargetDate = today
	th, ok = a.DueThreshold(today)
	require.True(t, ok)
	assert.Equal(t, Threshold0, th)

	a.TargetDate = today.AddDays(-1)
	_, ok = a.DueThreshold(today)
	assert.False(t, ok)
}

func TestRemindersSQLRoundTrip(t *testing.T) {
	at := time.Date(2025, 9, 26, 14, 0, 0, 0, time.UTC)
	r := Reminders{}
	r.Mark(Threshold15, at)

	v, err := r.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"15":{"sent":true,"sent_at":"2025-09-26T14:00:00Z"}}`, v.(string))

	var back Reminders
	require.NoError(t, back.Scan([]byte(v.(string))))
	assert.True(t, back.Sent(Threshold15))
	assert.False(t, back.Sent(Threshold7))
	assert.True(t, back[Threshold15].SentAt.Equal(at))

	require.NoError(t, back.Scan(nil))
	assert.Empty(t, back)
	assert.Error(t, back.Scan(42))
}

func TestRemindersJSONIsOrdered(t *testing.T) {
	at := time.Date(2025, 9, 26, 0, 0, 0, 0, time.UTC)
	r := Reminders{}
	r.Mark(Threshold0, at)
	r.Mark(Threshold15, at)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"threshold":15,"sent_at":"2025-09-26T00:00:00Z"},{"threshold":0,"sent_at":"2025-09-26T00:00:00Z"}]`, string(b))
}

func TestFilterResolveUpcoming(t *testing.T) {
	today := civil.MustParse("2025-03-10")

	f := AlertFilter{Upcoming: true}.Resolve(today)
	assert.Equal(t, "2025-03-07", f.From.String())
	assert.Equal(t, "2025-04-14", f.To.String())
	assert.Equal(t, AlertStatePending, f.State)

	explicit := AlertFilter{Upcoming: true, From: today}.Resolve(today)
	assert.True(t, explicit.To.IsZero())
	assert.Empty(t, explicit.State)
}

func TestKindLabels(t *testing.T) {
	assert.Equal(t, "Likely birth", AlertKindLikelyBirth.Label())
	assert.True(t, AlertKindHealth.Valid())
	assert.False(t, AlertKind("calving").Valid())
	assert.Equal(t, "calving", AlertKind("calving").Label())
}
