// Package nvme implements the NVMe-specific half of HealthChecker
// (§4.5): identify-controller/health-log reads, namespace-aware
// identity, and critical-warning bitmap masking.
package nvme

import (
	"context"

	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// nvmeHandle is the narrow surface this checker needs off a device
// handle; *probe.NvmeHandle satisfies it structurally.
type nvmeHandle interface {
	probe.Handle
	ReadSnapshot(ctx context.Context) (*probe.NvmeSnapshot, error)
	StartSelfTest(ctx context.Context, t selftest.TestType) error
}

// Checker implements health.Checker for NVMe devices.
type Checker struct{}

func New() *Checker { return &Checker{} }

func (c *Checker) Check(ctx context.Context, cfg *config.DeviceConfig, state *statestore.DeviceState, h probe.Handle, firstPass, selftestsAllowed bool, due selftest.TestType, sink health.Sink) error {
	nh, ok := h.(nvmeHandle)
	if !ok {
		return rterrors.New(rterrors.HealthDeviceOpen, "NVMe checker given a non-NVMe handle")
	}

	snap, err := nh.ReadSnapshot(ctx)
	if err != nil {
		sink.Emit(health.Event{Kind: health.KindFailedReadSmartData, Level: health.Crit, Message: err.Error()})
		state.Transient.MustWriteDirty = true
		return nil
	}

	p := state.Persistent
	t := state.Transient

	if cfg.TempInfoThreshold > 0 || cfg.TempCritThreshold > 0 || cfg.TempDeltaThreshold > 0 {
		health.CheckTemperature(sink, state, uint8(snap.Temperature), cfg.TempDeltaThreshold, cfg.TempInfoThreshold, cfg.TempCritThreshold)
	}

	health.CheckNvmeCriticalWarning(sink, snap.CriticalWarning, cfg.NVMeWarningMask)

	if cfg.TrackErrorLog {
		health.CheckErrorLogGrowth(sink, int64(p.NvmeErrLogEntries), int64(snap.ErrLogEntries))
	}
	p.NvmeErrLogEntries = snap.ErrLogEntries
	p.NvmeAvailableSpare = snap.AvailableSpare
	p.NvmePercentageUsed = snap.PercentageUsed
	p.NvmeMediaErrors = snap.MediaErrors

	if t.NvmeLastSelfTestOp != 0 && !snap.SelfTestInProgress {
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test completed"})
	}
	t.NvmeLastSelfTestOp = boolToInt(snap.SelfTestInProgress)
	t.NvmeLastSelfTestCompletion = snap.SelfTestCompletion

	if due != "" && selftestsAllowed && cfg.TrackSelfTestLog {
		if snap.SelfTestInProgress {
			sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test already in progress, not starting " + string(due)})
		} else if err := nh.StartSelfTest(ctx, due); err != nil {
			sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test start refused: " + err.Error()})
		}
	}

	state.Transient.MustWriteDirty = true
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
