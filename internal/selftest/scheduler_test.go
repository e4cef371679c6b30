package selftest

import (
	"testing"
	"time"

	"github.com/stratastor/smartmond/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayOnlyLongTest(t *testing.T) {
	pat, n, l, err := config.CompileSelfTestPattern(`L/../../[1-5]/02`)
	require.NoError(t, err)

	// A Monday (2026-08-03) at 02:00 local should match; a Saturday
	// (2026-08-08) at 02:00 should not.
	mon := time.Date(2026, 8, 3, 2, 0, 0, 0, time.Local)
	sat := time.Date(2026, 8, 8, 2, 0, 0, 0, time.Local)

	checkpoint := mon.Add(-time.Hour)
	testType, _, _, ok := Due(mon, checkpoint, pat, []TestType{TestLong}, 0, n, l)
	require.True(t, ok)
	assert.Equal(t, TestLong, testType)

	checkpoint2 := sat.Add(-time.Hour)
	_, _, _, ok2 := Due(sat, checkpoint2, pat, []TestType{TestLong}, 0, n, l)
	assert.False(t, ok2)
}

func TestReplayAfterDowntimeCatchesUpOnce(t *testing.T) {
	pat, n, l, err := config.CompileSelfTestPattern(`L/../../[1-5]/02`)
	require.NoError(t, err)

	mon := time.Date(2026, 8, 3, 2, 0, 0, 0, time.Local)
	// Daemon was down for 3 days before booting well after the matching hour.
	// The replay window starts at Friday 2026-07-31 02:00, itself a matching
	// weekday hour, so that earliest match is the one kept; Monday's equal-
	// priority match does not replace it.
	checkpoint := mon.Add(-3 * 24 * time.Hour)
	now := mon.Add(5 * time.Hour)

	testType, matchedAt, newCheckpoint, ok := Due(now, checkpoint, pat, []TestType{TestLong}, 0, n, l)
	require.True(t, ok)
	assert.Equal(t, TestLong, testType)
	assert.Equal(t, checkpoint.Truncate(time.Hour), matchedAt)
	assert.Equal(t, now.Truncate(time.Hour).Add(time.Hour), newCheckpoint)

	// A second call with the advanced checkpoint must not refire for the
	// same hour.
	_, _, _, ok2 := Due(now.Add(time.Hour), newCheckpoint, pat, []TestType{TestLong}, 0, n, l)
	assert.False(t, ok2)
}

func TestPriorityPrefersHigherOverLowerAtSameHour(t *testing.T) {
	// Pattern that matches both L and S at the same hour.
	pat, n, l, err := config.CompileSelfTestPattern(`[LS]/../.././..`)
	require.NoError(t, err)
	now := time.Date(2026, 8, 3, 2, 0, 0, 0, time.Local)
	checkpoint := now.Add(-time.Hour)

	testType, _, _, ok := Due(now, checkpoint, pat, []TestType{TestLong, TestShort}, 0, n, l)
	require.True(t, ok)
	assert.Equal(t, TestLong, testType, "long must win over short at the same hour")
}

func TestClockAdjustmentSnapsFutureCheckpoint(t *testing.T) {
	now := time.Date(2026, 8, 3, 2, 0, 0, 0, time.Local)
	future := now.Add(2 * time.Hour)
	adjusted := AdjustCheckpoint(future, now)
	assert.Equal(t, now, adjusted)
}

func TestClockAdjustmentBoundsPastCheckpoint(t *testing.T) {
	now := time.Date(2026, 8, 3, 2, 0, 0, 0, time.Local)
	past := now.Add(-200 * 24 * time.Hour)
	adjusted := AdjustCheckpoint(past, now)
	assert.Equal(t, now.Add(-90*24*time.Hour), adjusted)
}

func TestOffsetStaggersMatchingHour(t *testing.T) {
	pat, n, l, err := config.CompileSelfTestPattern(`S/../.././03:1-3`)
	require.NoError(t, err)
	now := time.Date(2026, 8, 3, 4, 0, 0, 0, time.Local)
	checkpoint := now.Add(-2 * time.Hour)

	// offsetFactor=2, n=1, l=3 => delay = 2*1 % 4 = 2 hours, so the
	// device's effective hour-03 match happens at wall-clock hour 05.
	_, _, _, ok := Due(now, checkpoint, pat, []TestType{TestShort}, 2, n, l)
	assert.False(t, ok, "shifted hour 05 is outside the walked window ending at 04")
}
