package warning

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

type logEntry struct {
	level string
	msg   string
	kv    []any
}

type fakeLogger struct{ entries []logEntry }

func (f *fakeLogger) Debug(msg string, kv ...any) { f.entries = append(f.entries, logEntry{"debug", msg, kv}) }
func (f *fakeLogger) Info(msg string, kv ...any)  { f.entries = append(f.entries, logEntry{"info", msg, kv}) }
func (f *fakeLogger) Warn(msg string, kv ...any)  { f.entries = append(f.entries, logEntry{"warn", msg, kv}) }
func (f *fakeLogger) Error(msg string, kv ...any) { f.entries = append(f.entries, logEntry{"error", msg, kv}) }
func (f *fakeLogger) Crit(msg string, kv ...any)  { f.entries = append(f.entries, logEntry{"crit", msg, kv}) }

func (f *fakeLogger) critMessages() []string {
	var out []string
	for _, e := range f.entries {
		if e.level == "crit" {
			out = append(out, e.msg)
		}
	}
	return out
}

func (f *fakeLogger) infoMessages() []string {
	var out []string
	for _, e := range f.entries {
		if e.level == "info" {
			out = append(out, e.msg)
		}
	}
	return out
}

type fakeRunner struct {
	exitCode int
	output   []byte
	err      error
	lastEnv  []string
	calls    int
}

func (f *fakeRunner) Run(ctx context.Context, executable string, env []string) (int, []byte, error) {
	f.calls++
	f.lastEnv = env
	return f.exitCode, f.output, f.err
}

func newTestEngine(cfg *config.DeviceConfig) (*Engine, *fakeLogger, *fakeRunner, *statestore.DeviceState) {
	log := &fakeLogger{}
	state := statestore.NewDeviceState()
	eng := New(cfg, state, log, DeviceInfo{Device: "/dev/sda"})
	runner := &fakeRunner{}
	eng.runner = runner
	return eng, log, runner, state
}

func TestOncePolicySendsFirstOccurrenceOnly(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqOnce}
	eng, _, runner, _ := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "disk failing"})
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "disk still failing"})

	assert.Equal(t, 1, runner.calls)
}

func TestAlwaysPolicySendsEveryOccurrence(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqAlways}
	eng, _, runner, _ := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "a"})
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "b"})
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "c"})

	assert.Equal(t, 3, runner.calls)
}

func TestDailyPolicySuppressesWithin24Hours(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqDaily}
	eng, _, runner, _ := newTestEngine(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return base }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "a"})

	eng.now = func() time.Time { return base.Add(2 * time.Hour) }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "b"})
	assert.Equal(t, 1, runner.calls)

	eng.now = func() time.Time { return base.Add(25 * time.Hour) }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "c"})
	assert.Equal(t, 2, runner.calls)
}

func TestDiminishingPolicyFollowsExponentialSchedule(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqDiminishing}
	eng, _, runner, _ := newTestEngine(cfg)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return base }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "0"}) // invocation k=0, count 0 -> 1
	assert.Equal(t, 1, runner.calls)

	// invocation k=1 requires t0 + 2^1 = 2 days; 47h is short of that.
	eng.now = func() time.Time { return base.Add(47 * time.Hour) }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "1"})
	assert.Equal(t, 1, runner.calls)

	// at/past 48h: sends, count becomes 2.
	eng.now = func() time.Time { return base.Add(49 * time.Hour) }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "2"})
	assert.Equal(t, 2, runner.calls)

	// invocation k=2 requires t0 + 2^2 = 4 days = 96h; 95h is short of that.
	eng.now = func() time.Time { return base.Add(95 * time.Hour) }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "3"})
	assert.Equal(t, 2, runner.calls)

	eng.now = func() time.Time { return base.Add(97 * time.Hour) }
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "4"})
	assert.Equal(t, 3, runner.calls)
}

func TestKindZeroTestMailIsNeverRateLimited(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqOnce}
	eng, _, runner, _ := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindTest, Level: health.Crit, Message: "test"})
	eng.Emit(health.Event{Kind: health.KindTest, Level: health.Crit, Message: "test"})

	assert.Equal(t, 2, runner.calls)
}

func TestClearEventResetsMailCounter(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqOnce}
	eng, _, runner, state := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindTemperature, Level: health.Crit, Message: "hot"})
	assert.Equal(t, 1, runner.calls)

	eng.Emit(health.Event{Kind: health.KindTemperature, Clear: true, Message: "cool"})
	_, seen := state.Persistent.Mail[int(health.KindTemperature)]
	assert.False(t, seen)

	eng.Emit(health.Event{Kind: health.KindTemperature, Level: health.Crit, Message: "hot again"})
	assert.Equal(t, 2, runner.calls)
}

func TestNoExecutableConfiguredNeverDispatches(t *testing.T) {
	cfg := &config.DeviceConfig{EmailFreq: config.FreqAlways}
	eng, _, runner, _ := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "x"})
	assert.Equal(t, 0, runner.calls)
}

func TestInfoEventsAreLoggedButNeverDispatched(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqAlways}
	eng, _, runner, _ := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindTemperature, Level: health.Info, Message: "informational"})
	assert.Equal(t, 0, runner.calls)
}

func TestNotifierExitNonZeroLogsAndStillIncrementsCount(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", Addresses: []string{"ops@example.com"}, EmailFreq: config.FreqOnce}
	eng, log, runner, state := newTestEngine(cfg)
	runner.exitCode = 1

	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "disk failing"})

	var found bool
	for _, m := range log.critMessages() {
		if m == "Warning via /usr/local/bin/notify to ops@example.com: failed (32-bit/8-bit exit status: 256/1)" {
			found = true
		}
	}
	assert.True(t, found, "expected scenario-6 formatted failure log line, got %v", log.critMessages())

	info := state.Persistent.Mail[int(health.KindHealth)]
	assert.Equal(t, 1, info.Count)

	wantHint := os.Geteuid() != 0
	var sawHint bool
	for _, m := range log.infoMessages() {
		if m == "notifier failure may be due to dropped privileges; the daemon is not running as root" {
			sawHint = true
		}
	}
	assert.Equal(t, wantHint, sawHint, "capability-drop hint belongs on the non-zero-exit path, per the notifier running to completion and failing")

	// Once policy: a second occurrence of the same kind must not re-dispatch.
	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "disk still failing"})
	assert.Equal(t, 1, runner.calls)
}

func TestNotifierSpawnErrorIsCrit(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", EmailFreq: config.FreqOnce}
	eng, log, runner, _ := newTestEngine(cfg)
	runner.err = errors.New("fork failed")

	eng.Emit(health.Event{Kind: health.KindHealth, Level: health.Crit, Message: "x"})
	require.NotEmpty(t, log.critMessages())

	for _, m := range log.infoMessages() {
		assert.NotEqual(t, "notifier failure may be due to dropped privileges; the daemon is not running as root", m,
			"a spawn failure never runs the notifier to completion, so the exit-status hint does not apply")
	}
}

func TestBuildEnvCarriesSMARTDContract(t *testing.T) {
	cfg := &config.DeviceConfig{Executable: "/usr/local/bin/notify", Addresses: []string{"a@b.com"}, EmailFreq: config.FreqAlways}
	eng, _, runner, _ := newTestEngine(cfg)

	eng.Emit(health.Event{Kind: health.KindTemperature, Level: health.Crit, Message: "too hot"})

	env := runner.lastEnv
	assertContainsPrefix(t, env, "SMARTD_FAILTYPE=Temperature")
	assertContainsPrefix(t, env, "SMARTD_MESSAGE=too hot")
	assertContainsPrefix(t, env, "SMARTD_ADDRESS=a@b.com")
	assertContainsPrefix(t, env, "SMARTD_DEVICE=/dev/sda")
	assertContainsPrefix(t, env, "SMARTD_SUBJECT=")
}

func assertContainsPrefix(t *testing.T, env []string, prefix string) {
	t.Helper()
	for _, e := range env {
		if e == prefix || (len(e) >= len(prefix) && e[:len(prefix)] == prefix) {
			return
		}
	}
	t.Fatalf("expected env to contain an entry starting with %q, got %v", prefix, env)
}
