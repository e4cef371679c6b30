// Package scsi implements the SCSI-specific half of HealthChecker
// (§4.5): IE mode page / log page driven checks, with ATA-only scheduler
// branches disabled.
package scsi

import (
	"context"

	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// scsiHandle is the narrow surface this checker needs off a device
// handle; *probe.ScsiHandle satisfies it structurally.
type scsiHandle interface {
	probe.Handle
	ReadSnapshot() (*probe.ScsiSnapshot, error)
	StartSelfTest(ctx context.Context, t selftest.TestType) error
}

// Checker implements health.Checker for SCSI/SAS devices.
type Checker struct{}

func New() *Checker { return &Checker{} }

func (c *Checker) Check(ctx context.Context, cfg *config.DeviceConfig, state *statestore.DeviceState, h probe.Handle, firstPass, selftestsAllowed bool, due selftest.TestType, sink health.Sink) error {
	sh, ok := h.(scsiHandle)
	if !ok {
		return rterrors.New(rterrors.HealthDeviceOpen, "SCSI checker given a non-SCSI handle")
	}

	snap, err := sh.ReadSnapshot()
	if err != nil {
		sink.Emit(health.Event{Kind: health.KindFailedReadSmartData, Level: health.Crit, Message: err.Error()})
		state.Transient.MustWriteDirty = true
		return nil
	}

	if cfg.TempInfoThreshold > 0 || cfg.TempCritThreshold > 0 || cfg.TempDeltaThreshold > 0 {
		health.CheckTemperature(sink, state, uint8(snap.Temperature), cfg.TempDeltaThreshold, cfg.TempInfoThreshold, cfg.TempCritThreshold)
	}

	if cfg.TrackSelfTestLog {
		health.CheckSelfTestLogDelta(sink,
			uint64(state.Transient.CachedScsiSelfTestFail), uint64(snap.SelfTestFailedCount),
			uint64(state.Transient.CachedScsiSelfTestHour), uint64(snap.SelfTestLastFailureHour))
		state.Transient.CachedScsiSelfTestFail = snap.SelfTestFailedCount
		state.Transient.CachedScsiSelfTestHour = snap.SelfTestLastFailureHour
	}

	if snap.NonMediumErrors > 0 {
		sink.Emit(health.Event{Kind: health.KindErrorCount, Level: health.Info, Message: "non-medium errors reported"})
	}

	// Selective/next/continue/redo and offline tests are ATA-only per
	// §4.5; SCSI scheduling is restricted to short/long/conveyance, and
	// anything else is refused locally via not_cap flags rather than
	// attempted against the device.
	switch due {
	case selftest.TestSelectiveNext, selftest.TestSelectiveCont, selftest.TestSelectiveRedo, selftest.TestOffline:
		state.Transient.NotCapSelective = true
		state.Transient.NotCapOffline = true
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "SCSI device cannot run " + string(due) + " tests"})
	case selftest.TestLong, selftest.TestShort, selftest.TestConveyance:
		if selftestsAllowed {
			if err := sh.StartSelfTest(ctx, due); err != nil {
				sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test start refused: " + err.Error()})
			} else {
				sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "starting " + string(due) + " self-test"})
			}
		}
	}

	state.Transient.MustWriteDirty = true
	return nil
}
