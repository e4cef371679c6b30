// Package ata implements the ATA-specific half of HealthChecker (§4.5):
// offline/self-test status tracking, applying the selected monitors, and
// starting short/long/conveyance/offline/selective tests.
package ata

import (
	"context"

	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// selfTestInProgressStatus is the top nibble value of the ATA self-test
// execution status byte while a test is running.
const selfTestInProgressStatus = 0xf

// ataHandle is the narrow surface this checker needs off a device
// handle; *probe.AtaHandle satisfies it structurally. Asserting against
// this instead of the concrete type keeps the checker testable with a
// fake.
type ataHandle interface {
	probe.Handle
	ReadSnapshot() (*probe.AtaSnapshot, error)
	StartSelfTest(ctx context.Context, t selftest.TestType) error
}

// powerModeQueryable is implemented by handles that can report the
// device's current ATA power state; none of the pack's ATA backends do
// today (anatol/smart.go exposes no CHECK POWER MODE command), so the
// gate always sees statestore.PowerActive in practice and never trips --
// the mechanism is complete and ready for a handle that can answer it.
type powerModeQueryable interface {
	PowerMode(ctx context.Context) (statestore.PowerMode, error)
}

// Checker implements health.Checker for ATA devices.
type Checker struct{}

func New() *Checker { return &Checker{} }

func (c *Checker) Check(ctx context.Context, cfg *config.DeviceConfig, state *statestore.DeviceState, h probe.Handle, firstPass, selftestsAllowed bool, due selftest.TestType, sink health.Sink) error {
	ah, ok := h.(ataHandle)
	if !ok {
		return rterrors.New(rterrors.HealthDeviceOpen, "ATA checker given a non-ATA handle")
	}

	currentPower := statestore.PowerActive
	if pq, ok := h.(powerModeQueryable); ok {
		if m, err := pq.PowerMode(ctx); err == nil {
			currentPower = m
		}
	}
	if health.CheckPowerModeGate(sink, state.Transient, cfg.PowerGate, currentPower) {
		return nil
	}

	snap, err := ah.ReadSnapshot()
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

	c.checkOfflineAndSelfTestStatus(sink, t, snap, firstPass)

	if cfg.TrackErrorLog {
		health.CheckErrorLogGrowth(sink, int64(p.AtaErrorCount), int64(snap.ErrorLogCount))
		p.AtaErrorCount = snap.ErrorLogCount
	}

	if cfg.TrackSelfTestLog {
		health.CheckSelfTestLogDelta(sink, uint64(p.SelfTestErrors), uint64(snap.SelfTestFailedCount), p.SelfTestLastErrorHour, snap.SelfTestLastFailureHour)
		p.SelfTestErrors = snap.SelfTestFailedCount
		p.SelfTestLastErrorHour = snap.SelfTestLastFailureHour
	}

	c.diffAttributes(sink, cfg, p, snap)

	if due != "" && selftestsAllowed {
		c.maybeStartSelfTest(ctx, sink, ah, t, due)
	}

	p.TemperatureMax = maxU8(p.TemperatureMax, uint8(snap.Temperature))
	state.Transient.MustWriteDirty = true
	return nil
}

func (c *Checker) checkOfflineAndSelfTestStatus(sink health.Sink, t *statestore.TransientDeviceState, snap *probe.AtaSnapshot, firstPass bool) {
	selfTestChanged := snap.SelfTestStatus != t.CachedAtaSelfTestStatus
	offlineChanged := snap.OfflineStatus != t.CachedAtaOfflineStatus

	inProgress := snap.SelfTestStatus>>4 == selfTestInProgressStatus
	if t.SelfTestJustStarted && !inProgress {
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test completed"})
		t.SelfTestJustStarted = false
	}

	if !firstPass && (selfTestChanged || offlineChanged) {
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test or offline-collection status changed"})
	} else if firstPass && (snap.SelfTestStatus != 0 || snap.OfflineStatus != 0) {
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "nonzero self-test/offline status on first pass"})
	}

	t.CachedAtaSelfTestStatus = snap.SelfTestStatus
	t.CachedAtaOfflineStatus = snap.OfflineStatus
}

func (c *Checker) diffAttributes(sink health.Sink, cfg *config.DeviceConfig, p *statestore.PersistentDeviceState, snap *probe.AtaSnapshot) {
	prev := make(map[uint8]statestore.AtaAttributeSnapshot, len(p.AtaAttributes))
	for _, a := range p.AtaAttributes {
		prev[a.ID] = a
	}

	for _, cur := range snap.Attributes {
		flags := cfg.AttrFlags[cur.ID]
		if flags.Ignore {
			continue
		}
		if old, ok := prev[cur.ID]; ok {
			failed := !flags.IgnoreFailedUsage && cfg.TrackUsageFailed && cur.Threshold > 0 && cur.Value <= cur.Threshold
			asCritical := flags.AsCritical || (flags.RawAsCritical && cur.Raw != old.Raw)
			health.AttributeDiff(sink, cur.ID, old, cur, asCritical, cfg.TrackPrefail, failed)
		}
	}

	if len(snap.Attributes) > 0 {
		p.AtaAttributes = snap.Attributes
	}
}

func (c *Checker) maybeStartSelfTest(ctx context.Context, sink health.Sink, ah ataHandle, t *statestore.TransientDeviceState, due selftest.TestType) {
	if t.CachedAtaSelfTestStatus>>4 == selfTestInProgressStatus {
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test already in progress, not starting " + string(due)})
		return
	}

	if err := ah.StartSelfTest(ctx, due); err != nil {
		sink.Emit(health.Event{Kind: health.KindSelfTest, Level: health.Info, Message: "self-test start refused: " + err.Error()})
		return
	}
	t.SelfTestJustStarted = true
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}
