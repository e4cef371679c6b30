package control

import (
	"context"

	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// standbyState is the per-device auto-standby policy state machine of
// §4.7 step 4 (init_disable_standby_check/do_disable_standby_check).
type standbyState int

const (
	standbyEnabledNoTests  standbyState = 1 // automatic standby untouched, no test is asking for it
	standbyDisableRejected standbyState = 2 // a test wants it disabled but the handle couldn't/wouldn't
	standbyDisabled        standbyState = 3 // automatic standby is currently suppressed
)

// standbyDisabler is implemented by handles that can toggle a device's
// automatic standby timer at runtime. None of the pack's ATA/SCSI
// backends expose a SET FEATURES-style "disable standby timer" op
// (anatol/smart.go is read-only telemetry), so this mirrors
// internal/health/ata's powerModeQueryable precedent: the state machine
// is complete and correct, it simply never finds a capable handle today.
type standbyDisabler interface {
	SetStandbyDisabled(ctx context.Context, disabled bool) error
}

// driveStandby implements §4.7 step 4: while a self-test the device
// config asked to run standby-suppressed is in flight, try to hold the
// device out of automatic standby; release the hold once the test has
// finished starting (the tick after SelfTestJustStarted clears).
func driveStandby(ctx context.Context, rt *deviceRuntime, t *statestore.TransientDeviceState, due selftest.TestType) {
	wantDisable := t.SelfTestJustStarted && (rt.standby == standbyDisabled || wantsStandbySuppressed(rt.cfg, due))

	sd, capable := rt.handle.(standbyDisabler)

	switch {
	case wantDisable && rt.standby == standbyEnabledNoTests:
		if !capable {
			rt.standby = standbyDisableRejected
			return
		}
		if err := sd.SetStandbyDisabled(ctx, true); err != nil {
			rt.standby = standbyDisableRejected
			return
		}
		rt.standby = standbyDisabled

	case !wantDisable && rt.standby != standbyEnabledNoTests:
		if rt.standby == standbyDisabled && capable {
			sd.SetStandbyDisabled(ctx, false)
		}
		rt.standby = standbyEnabledNoTests
	}
}

func wantsStandbySuppressed(cfg *config.DeviceConfig, due selftest.TestType) bool {
	if due == selftest.TestOffline {
		return cfg.DisableStandbyOffline
	}
	if due != "" {
		return cfg.DisableStandbySelfTest
	}
	return false
}
