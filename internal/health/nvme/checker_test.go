package nvme

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

type fakeSink struct{ events []health.Event }

func (s *fakeSink) Emit(ev health.Event) { s.events = append(s.events, ev) }

type fakeNvmeHandle struct {
	snap        *probe.NvmeSnapshot
	readErr     error
	startErr    error
	startedTest selftest.TestType
}

func (f *fakeNvmeHandle) Identity() probe.DeviceIdentity                { return probe.DeviceIdentity{} }
func (f *fakeNvmeHandle) ApplyOnOpenSettings(*config.DeviceConfig) error { return nil }
func (f *fakeNvmeHandle) Close() error                                  { return nil }
func (f *fakeNvmeHandle) ReadSnapshot(ctx context.Context) (*probe.NvmeSnapshot, error) {
	return f.snap, f.readErr
}
func (f *fakeNvmeHandle) StartSelfTest(ctx context.Context, t selftest.TestType) error {
	f.startedTest = t
	return f.startErr
}

func TestCheckerReadFailureEmitsFailedReadEvent(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	h := &fakeNvmeHandle{readErr: errors.New("smartctl exit 2")}

	require.NoError(t, New().Check(context.Background(), &config.DeviceConfig{}, state, h, false, false, "", sink))
	require.Len(t, sink.events, 1)
	assert.Equal(t, health.KindFailedReadSmartData, sink.events[0].Kind)
}

func TestCheckerCriticalWarningMaskedBitsFireCrit(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	cfg := &config.DeviceConfig{NVMeWarningMask: 0b00011111}
	h := &fakeNvmeHandle{snap: &probe.NvmeSnapshot{Temperature: -1, CriticalWarning: 0b00000001}}

	require.NoError(t, New().Check(context.Background(), cfg, state, h, false, false, "", sink))

	var sawCrit bool
	for _, ev := range sink.events {
		if ev.Kind == health.KindHealth && ev.Level == health.Crit {
			sawCrit = true
		}
	}
	assert.True(t, sawCrit)
}

func TestCheckerCriticalWarningOutsideMaskIsInfoOnly(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	cfg := &config.DeviceConfig{NVMeWarningMask: 0} // scenario 4: mask excludes everything
	h := &fakeNvmeHandle{snap: &probe.NvmeSnapshot{Temperature: -1, CriticalWarning: 0b00000100}}

	require.NoError(t, New().Check(context.Background(), cfg, state, h, false, false, "", sink))

	for _, ev := range sink.events {
		if ev.Kind == health.KindHealth {
			assert.Equal(t, health.Info, ev.Level)
			assert.Contains(t, ev.Message, "[Reliability]")
		}
	}
}

func TestCheckerPersistsCountersAcrossTicks(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	cfg := &config.DeviceConfig{TrackErrorLog: true}
	h := &fakeNvmeHandle{snap: &probe.NvmeSnapshot{Temperature: -1, AvailableSpare: 90, PercentageUsed: 10, MediaErrors: 0, ErrLogEntries: 2}}

	require.NoError(t, New().Check(context.Background(), cfg, state, h, false, false, "", sink))

	assert.EqualValues(t, 90, state.Persistent.NvmeAvailableSpare)
	assert.EqualValues(t, 10, state.Persistent.NvmePercentageUsed)
	assert.EqualValues(t, 2, state.Persistent.NvmeErrLogEntries)
}

func TestCheckerSelfTestInProgressRefusesNewStart(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	cfg := &config.DeviceConfig{TrackSelfTestLog: true}
	h := &fakeNvmeHandle{snap: &probe.NvmeSnapshot{Temperature: -1, SelfTestInProgress: true}}

	require.NoError(t, New().Check(context.Background(), cfg, state, h, false, true, selftest.TestShort, sink))
	assert.Equal(t, selftest.TestType(""), h.startedTest)
}

func TestCheckerStartsSelfTestWhenDue(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	cfg := &config.DeviceConfig{TrackSelfTestLog: true}
	h := &fakeNvmeHandle{snap: &probe.NvmeSnapshot{Temperature: -1}}

	require.NoError(t, New().Check(context.Background(), cfg, state, h, false, true, selftest.TestLong, sink))
	assert.Equal(t, selftest.TestLong, h.startedTest)
}
