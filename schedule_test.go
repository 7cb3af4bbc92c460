package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts.UTC()
}

func mustSchedule(t *testing.T, definition string) *Schedule {
	t.Helper()
	schedule, err := ParseSchedule(definition)
	require.NoError(t, err)
	return schedule
}

func TestSafeTimeCompareDailyRunOnTime(t *testing.T) {
	schedule := mustSchedule(t, "@daily")
	start := mustTime(t, "2024-06-02T00:00:05Z")

	safe, err := SafeTimeCompare(schedule, start)

	assert.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-06-01T00:00:00Z"), safe)
}

func TestSafeTimeCompareIsDeterministic(t *testing.T) {
	schedule := mustSchedule(t, "0 0 * * ? *")
	start := mustTime(t, "2024-06-02T00:00:05Z")

	first, err := SafeTimeCompare(schedule, start)
	require.NoError(t, err)
	second, err := SafeTimeCompare(schedule, start)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSafeTimeComparePresets(t *testing.T) {
	cases := []struct {
		schedule string
		start    string
		expected string
	}{
		{"@hourly", "2024-06-02T10:00:30Z", "2024-06-02T09:00:00Z"},
		{"@minutely", "2024-06-02T10:20:01Z", "2024-06-02T10:19:00Z"},
		{"@every10min", "2024-06-02T10:20:01Z", "2024-06-02T10:10:00Z"},
		{"@every10min", "2024-06-02T10:29:59Z", "2024-06-02T10:10:00Z"},
		{"@monthly", "2024-06-01T00:00:10Z", "2024-05-01T00:00:00Z"},
		{"@monday", "2024-06-03T00:00:05Z", "2024-05-27T00:00:00Z"},
		{"@friday", "2024-06-07T00:00:05Z", "2024-05-31T00:00:00Z"},
		{"@sunday", "2024-06-02T00:01:00Z", "2024-05-26T00:00:00Z"},
		{"@saturday", "2024-06-01T03:00:00Z", "2024-05-25T00:00:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.schedule+" "+tc.start, func(t *testing.T) {
			safe, err := SafeTimeCompare(mustSchedule(t, tc.schedule), mustTime(t, tc.start))
			assert.NoError(t, err)
			assert.Equal(t, mustTime(t, tc.expected), safe)
		})
	}
}

func TestSafeTimeCompareWeekdaysSpansWeekend(t *testing.T) {
	// Monday run: the previous firing is Friday, the one before Thursday.
	schedule := mustSchedule(t, "0 0 ? * 2-6 *")

	safe, err := SafeTimeCompare(schedule, mustTime(t, "2024-06-03T00:00:05Z"))

	assert.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-05-31T00:00:00Z"), safe)
}

func TestSafeTimeCompareWithinOneIntervalUsesPrev0(t *testing.T) {
	schedule := mustSchedule(t, "@daily")
	scheduled := mustTime(t, "2024-06-02T00:00:00Z")

	safe, err := SafeTimeCompareFor(schedule, scheduled, scheduled.Add(23*time.Hour))

	assert.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-06-01T00:00:00Z"), safe)
}

func TestSafeTimeCompareExactlyOneIntervalLateUsesPrev0(t *testing.T) {
	schedule := mustSchedule(t, "@hourly")
	scheduled := mustTime(t, "2024-06-02T10:00:00Z")

	safe, err := SafeTimeCompareFor(schedule, scheduled, scheduled.Add(time.Hour))

	assert.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-06-02T09:00:00Z"), safe)
}

func TestSafeTimeCompareLateRunWidensWindow(t *testing.T) {
	schedule := mustSchedule(t, "@daily")
	scheduled := mustTime(t, "2024-06-02T00:00:00Z")

	safe, err := SafeTimeCompareFor(schedule, scheduled, scheduled.Add(25*time.Hour))

	assert.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-05-31T00:00:00Z"), safe)
}

func TestPreviousFiringsAreStrictlyBefore(t *testing.T) {
	schedule := mustSchedule(t, "@hourly")

	prev, err := schedule.Previous(mustTime(t, "2024-06-02T10:00:00Z"), 2)

	assert.NoError(t, err)
	assert.Equal(t, []time.Time{
		mustTime(t, "2024-06-02T09:00:00Z"),
		mustTime(t, "2024-06-02T08:00:00Z"),
	}, prev)
}

func TestLatestIncludesExactFiring(t *testing.T) {
	schedule := mustSchedule(t, "@hourly")

	latest, err := schedule.Latest(mustTime(t, "2024-06-02T10:00:00Z"))

	assert.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-06-02T10:00:00Z"), latest)
}

func TestScheduleYearField(t *testing.T) {
	schedule := mustSchedule(t, "0 0 1 1 ? 2020-2022")

	prev, err := schedule.Previous(mustTime(t, "2024-06-01T00:00:00Z"), 2)
	assert.NoError(t, err)
	assert.Equal(t, []time.Time{
		mustTime(t, "2022-01-01T00:00:00Z"),
		mustTime(t, "2021-01-01T00:00:00Z"),
	}, prev)

	assert.True(t, schedule.Next(mustTime(t, "2023-01-01T00:00:00Z")).IsZero())
	assert.Equal(t, mustTime(t, "2020-01-01T00:00:00Z"), schedule.Next(mustTime(t, "2018-03-01T00:00:00Z")))
	assert.False(t, schedule.MatchesYear(mustTime(t, "2024-01-01T00:00:00Z")))
}

func TestScheduleStandardForm(t *testing.T) {
	assert.Equal(t, "0 0 ? * 0", mustSchedule(t, "@sunday").Standard())
	assert.Equal(t, "0 0 ? * 6", mustSchedule(t, "@saturday").Standard())
	assert.Equal(t, "0/10 * * * ?", mustSchedule(t, "@every10min").Standard())
	assert.Equal(t, "0 0 ? * 1-5", mustSchedule(t, "0 0 ? * 2-6 *").Standard())
	assert.Equal(t, "0 0 ? JAN MON-FRI", mustSchedule(t, "0 0 ? JAN MON-FRI *").Standard())
}

func TestParseScheduleRejectsInvalidDefinitions(t *testing.T) {
	for _, definition := range []string{
		"",
		"@yearly",
		"0 0 * * *",
		"0 0 L * ? *",
		"0 0 ? * 6#3 *",
		"0 0 15W * ? *",
		"0 0 ? * 8 *",
		"0 0 1 1 ? 20x2",
		"99 0 * * ? *",
	} {
		_, err := ParseSchedule(definition)
		assert.Error(t, err, definition)
	}
}
