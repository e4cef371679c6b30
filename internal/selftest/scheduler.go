// Package selftest implements the regex-driven self-test schedule
// matcher: given a device's -s pattern and the wall-clock window since
// its last checkpoint, decides which test type (if any) is due.
package selftest

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// TestType is one of the vendor self-test kinds a device may run.
type TestType string

const (
	TestLong        TestType = "L"
	TestSelectiveNext TestType = "n"
	TestSelectiveCont TestType = "c"
	TestSelectiveRedo TestType = "r"
	TestShort       TestType = "S"
	TestConveyance  TestType = "C"
	TestOffline     TestType = "O"
)

// priority maps a test type to its rank, lower is higher priority, per
// §4.4 read against test_type_chars's ("LncrSCO") own totally-ordered
// listing: L > n > c > r > S > C > O, all seven ranks distinct -- see
// DESIGN.md Open Question decisions.
var priority = map[TestType]int{
	TestLong:          0,
	TestSelectiveNext: 1,
	TestSelectiveCont: 2,
	TestSelectiveRedo: 3,
	TestShort:         4,
	TestConveyance:    5,
	TestOffline:       6,
}

// allTypesByPriority is the evaluation order used when scanning a given
// hour for the best match.
var allTypesByPriority = []TestType{TestLong, TestSelectiveNext, TestSelectiveCont, TestSelectiveRedo, TestShort, TestConveyance, TestOffline}

const (
	maxFutureSkew = time.Hour
	maxReplayWindow = 90 * 24 * time.Hour
)

// AdjustCheckpoint applies the §4.4 clock-adjustment policy: a
// checkpoint too far in the future is snapped to now, and one too far
// in the past is bounded to a 90-day replay window.
func AdjustCheckpoint(checkpoint, now time.Time) time.Time {
	if checkpoint.After(now.Add(maxFutureSkew)) {
		return now
	}
	if checkpoint.Add(maxReplayWindow).Before(now) {
		return now.Add(-maxReplayWindow)
	}
	return checkpoint
}

// Due replays every hour from checkpoint (after clock adjustment) to
// now, builds the canonical "T/MM/DD/d/HH" string for each capable test
// type at each hour (after applying the device's per-device offset
// delay), and returns the single highest-priority match found anywhere
// in that window, plus the checkpoint advanced to the top of the hour
// after now. If nothing matched, ok is false but the checkpoint still
// advances.
func Due(now, checkpoint time.Time, pattern *regexp.Regexp, capable []TestType, offsetFactor, offsetN, offsetL int) (testType TestType, matchedAt time.Time, newCheckpoint time.Time, ok bool) {
	checkpoint = AdjustCheckpoint(checkpoint, now)

	delay := offsetFactor * offsetN
	if offsetL > 0 {
		delay %= offsetL + 1
	}
	delayDur := time.Duration(delay) * time.Hour

	bestPriority := -1

	start := checkpoint.Truncate(time.Hour)
	end := now.Truncate(time.Hour)
	for h := start; !h.After(end); h = h.Add(time.Hour) {
		shifted := h.Add(-delayDur)
		for _, t := range allTypesByPriority {
			if !contains(capable, t) {
				continue
			}
			if bestPriority != -1 && priority[t] >= bestPriority {
				continue
			}
			if pattern.MatchString(canonical(t, shifted)) {
				bestPriority = priority[t]
				testType = t
				matchedAt = h
				ok = true
			}
		}
	}

	newCheckpoint = end.Add(time.Hour)
	return testType, matchedAt, newCheckpoint, ok
}

func contains(list []TestType, t TestType) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

// canonical builds the T/MM/DD/d/HH match string for type t at hour h,
// using h's local timezone per §9's timezone-consistency note.
func canonical(t TestType, h time.Time) string {
	h = h.Local()
	weekday := int(h.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday is 7, per §4.4 (Mon=1..Sun=7)
	}
	return fmt.Sprintf("%s/%02d/%02d/%d/%02d", t, h.Month(), h.Day(), weekday, h.Hour())
}

// ScheduledTest is one row of a -q showtests style preview (§2.3).
type ScheduledTest struct {
	Hour time.Time
	Type TestType
}

// Preview replays the pattern hour-by-hour over [from, from+horizon]
// without mutating any real checkpoint, returning every matching
// (hour, type) pair -- used by the -q showtests diagnostic mode.
func Preview(from time.Time, horizon time.Duration, pattern *regexp.Regexp, capable []TestType, offsetFactor, offsetN, offsetL int) []ScheduledTest {
	delay := offsetFactor * offsetN
	if offsetL > 0 {
		delay %= offsetL + 1
	}
	delayDur := time.Duration(delay) * time.Hour

	var out []ScheduledTest
	start := from.Truncate(time.Hour)
	end := from.Add(horizon).Truncate(time.Hour)
	for h := start; !h.After(end); h = h.Add(time.Hour) {
		shifted := h.Add(-delayDur)
		for _, t := range allTypesByPriority {
			if !contains(capable, t) {
				continue
			}
			if pattern.MatchString(canonical(t, shifted)) {
				out = append(out, ScheduledTest{Hour: h, Type: t})
				break // highest-priority match wins this hour, as in Due
			}
		}
	}
	return out
}

// Execution records one self-test start under a fresh correlation ID.
// The control loop and the warning engine do not create or log one.
type Execution struct {
	ID       string
	Device   string
	Type     TestType
	StartedAt time.Time
}

// NewExecution creates an Execution with a fresh correlation ID.
func NewExecution(device string, t TestType, startedAt time.Time) *Execution {
	return &Execution{ID: uuid.NewString(), Device: device, Type: t, StartedAt: startedAt}
}
