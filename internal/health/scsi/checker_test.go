package scsi

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

type fakeScsiHandle struct {
	snap        *probe.ScsiSnapshot
	readErr     error
	startErr    error
	startedTest selftest.TestType
}

func (f *fakeScsiHandle) Identity() probe.DeviceIdentity                { return probe.DeviceIdentity{} }
func (f *fakeScsiHandle) ApplyOnOpenSettings(*config.DeviceConfig) error { return nil }
func (f *fakeScsiHandle) Close() error                                  { return nil }
func (f *fakeScsiHandle) ReadSnapshot() (*probe.ScsiSnapshot, error)     { return f.snap, f.readErr }
func (f *fakeScsiHandle) StartSelfTest(ctx context.Context, t selftest.TestType) error {
	f.startedTest = t
	return f.startErr
}

func TestCheckerReadFailureEmitsFailedReadEvent(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	h := &fakeScsiHandle{readErr: errors.New("sg_io failed")}

	require.NoError(t, New().Check(context.Background(), &config.DeviceConfig{}, state, h, false, false, "", sink))
	require.Len(t, sink.events, 1)
	assert.Equal(t, health.KindFailedReadSmartData, sink.events[0].Kind)
}

func TestCheckerSelectiveTestsAreRefusedOnSCSI(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	h := &fakeScsiHandle{snap: &probe.ScsiSnapshot{Temperature: -1}}

	require.NoError(t, New().Check(context.Background(), &config.DeviceConfig{}, state, h, false, true, selftest.TestSelectiveNext, sink))

	assert.True(t, state.Transient.NotCapSelective)
	var sawRefusal bool
	for _, ev := range sink.events {
		if ev.Kind == health.KindSelfTest {
			sawRefusal = true
		}
	}
	assert.True(t, sawRefusal)
}

func TestCheckerNonMediumErrorsReportInfo(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	h := &fakeScsiHandle{snap: &probe.ScsiSnapshot{Temperature: -1, NonMediumErrors: 3}}

	require.NoError(t, New().Check(context.Background(), &config.DeviceConfig{}, state, h, false, false, "", sink))

	var sawInfo bool
	for _, ev := range sink.events {
		if ev.Kind == health.KindErrorCount && ev.Level == health.Info {
			sawInfo = true
		}
	}
	assert.True(t, sawInfo)
}

func TestCheckerStartsAllowedSelfTestType(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	h := &fakeScsiHandle{snap: &probe.ScsiSnapshot{Temperature: -1}}

	require.NoError(t, New().Check(context.Background(), &config.DeviceConfig{}, state, h, false, true, selftest.TestLong, sink))
	assert.Equal(t, selftest.TestLong, h.startedTest)
}

func TestCheckerReportsStartRefusal(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	h := &fakeScsiHandle{snap: &probe.ScsiSnapshot{Temperature: -1}, startErr: errors.New("device busy")}

	require.NoError(t, New().Check(context.Background(), &config.DeviceConfig{}, state, h, false, true, selftest.TestShort, sink))

	var sawRefusal bool
	for _, ev := range sink.events {
		if ev.Kind == health.KindSelfTest && ev.Message == "self-test start refused: device busy" {
			sawRefusal = true
		}
	}
	assert.True(t, sawRefusal)
}

func TestCheckerSelfTestLogDeltaUpdatesCachedCounters(t *testing.T) {
	sink := &fakeSink{}
	state := statestore.NewDeviceState()
	cfg := &config.DeviceConfig{TrackSelfTestLog: true}
	h := &fakeScsiHandle{snap: &probe.ScsiSnapshot{Temperature: -1, SelfTestFailedCount: 2, SelfTestLastFailureHour: 40}}

	require.NoError(t, New().Check(context.Background(), cfg, state, h, false, false, "", sink))

	assert.Equal(t, 2, state.Transient.CachedScsiSelfTestFail)
	assert.Equal(t, 40, state.Transient.CachedScsiSelfTestHour)
}
