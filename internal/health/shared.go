package health

import (
	"fmt"
	"time"

	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// CheckTemperature implements the shared temperature logic of §4.5:
// update tempmax (flagging the first-ever change), delay tempmin
// sampling ~30 minutes past first read to skip a cold-start low, and
// emit Info/Crit events per the threshold triplet, with hysteresis clear
// at min(info, crit-5).
func CheckTemperature(sink Sink, state *statestore.DeviceState, current uint8, deltaThreshold, infoThreshold, critThreshold uint8) {
	t := state.Transient
	p := state.Persistent

	firstRead := p.TemperatureMax == 0 && p.TemperatureMin == 0
	if firstRead {
		t.TempMinSampleDeadline = time.Now().Add(30 * time.Minute)
	}

	prevTemp := t.LastTemperature
	changed := prevTemp != 0 && current != prevTemp
	t.LastTemperature = current

	if current > p.TemperatureMax {
		p.TemperatureMax = current
		if !firstRead {
			sink.Emit(Event{Kind: KindTemperature, Level: Info, Message: fmt.Sprintf("temperature %dC, new maximum", current)})
		}
	}
	if (p.TemperatureMin == 0 || current < p.TemperatureMin) && time.Now().After(t.TempMinSampleDeadline) {
		p.TemperatureMin = current
	}

	if deltaThreshold > 0 && changed {
		var delta int
		if int(current) > int(prevTemp) {
			delta = int(current) - int(prevTemp)
		} else {
			delta = int(prevTemp) - int(current)
		}
		if delta >= int(deltaThreshold) {
			sink.Emit(Event{Kind: KindTemperature, Level: Info, Message: fmt.Sprintf("temperature changed %d degrees to %dC", delta, current)})
		}
	}

	switch {
	case critThreshold > 0 && current >= critThreshold:
		sink.Emit(Event{Kind: KindTemperature, Level: Crit, Message: fmt.Sprintf("temperature %dC reached critical limit %dC", current, critThreshold)})
	case infoThreshold > 0 && current >= infoThreshold:
		sink.Emit(Event{Kind: KindTemperature, Level: Info, Message: fmt.Sprintf("temperature %dC reached informational limit %dC", current, infoThreshold)})
	default:
		clearAt := infoThreshold
		if critThreshold >= 5 && critThreshold-5 < clearAt {
			clearAt = critThreshold - 5
		}
		if clearAt > 0 && current < clearAt {
			sink.Emit(Event{Kind: KindTemperature, Clear: true, Message: fmt.Sprintf("temperature %dC back below limit", current)})
		}
	}
}

// CheckPendingSectors implements §4.5's pending-sector logic: bounds-
// check the raw value against capacity, report on any nonzero value (or
// only strict increases under increase-only policy), and clear when it
// returns to zero.
func CheckPendingSectors(sink Sink, kind Kind, raw, previous, capacitySectors uint64, increaseOnly bool) (bogus bool) {
	if capacitySectors > 0 && raw > capacitySectors {
		sink.Emit(Event{Kind: kind, Level: Info, Message: "pending sector count exceeds device capacity, disabling monitor"})
		return true
	}

	switch {
	case raw == 0 && previous != 0:
		sink.Emit(Event{Kind: kind, Clear: true, Message: "pending sector count returned to 0"})
	case raw > 0 && (!increaseOnly || raw > previous):
		sink.Emit(Event{Kind: kind, Level: Crit, Message: fmt.Sprintf("%d sectors pending", raw)})
	}
	return false
}

// AttributeDiff compares a tracked attribute's previous and current
// snapshot and reports per §4.5: as-critical promotes to Crit+mail,
// otherwise Info; a threshold failure (current <= thresh, modeled here
// via the caller-supplied failed flag) emits a Usage-kind failure.
func AttributeDiff(sink Sink, id uint8, prev, cur statestore.AtaAttributeSnapshot, asCritical, prefail, failed bool) {
	if prev.Value == cur.Value && prev.Raw == cur.Raw {
		return
	}

	level := Info
	if asCritical {
		level = Crit
	}
	sink.Emit(Event{
		Kind:  KindUsage,
		Level: level,
		Message: fmt.Sprintf("attribute %d changed: value %d->%d raw %d->%d", id, prev.Value, cur.Value, prev.Raw, cur.Raw),
	})

	if failed {
		template := "Usage"
		if prefail {
			template = "Prefailure"
		}
		sink.Emit(Event{Kind: KindUsage, Level: Crit, Message: fmt.Sprintf("%s attribute %d failed its threshold", template, id)})
	}
}

// CheckErrorLogGrowth implements §4.5's monotonic error-log counter
// logic: any increase is Crit, any decrease is Info (with a clear when
// it returns to zero).
func CheckErrorLogGrowth(sink Sink, previous, current int64) {
	switch {
	case current > previous:
		sink.Emit(Event{Kind: KindErrorCount, Level: Crit, Message: fmt.Sprintf("error count increased from %d to %d", previous, current)})
	case current < previous:
		if current == 0 {
			sink.Emit(Event{Kind: KindErrorCount, Clear: true, Message: "error count returned to 0"})
		} else {
			sink.Emit(Event{Kind: KindErrorCount, Level: Info, Message: fmt.Sprintf("error count decreased from %d to %d", previous, current)})
		}
	}
}

// CheckSelfTestLogDelta implements §4.5's self-test log comparison: a
// strict increase in failed count, or a new most-recent-failure hour,
// is Crit; a decrease to zero is a clear, otherwise Info.
func CheckSelfTestLogDelta(sink Sink, prevFailed, curFailed uint64, prevHour, curHour uint64) {
	switch {
	case curFailed > prevFailed || (curFailed == prevFailed && curHour != prevHour && curFailed > 0):
		sink.Emit(Event{Kind: KindSelfTest, Level: Crit, Message: fmt.Sprintf("self-test log shows %d failures, latest at hour %d", curFailed, curHour)})
	case curFailed < prevFailed:
		if curFailed == 0 {
			sink.Emit(Event{Kind: KindSelfTest, Clear: true, Message: "self-test log no longer shows errors"})
		} else {
			sink.Emit(Event{Kind: KindSelfTest, Level: Info, Message: fmt.Sprintf("self-test log failures decreased to %d", curFailed)})
		}
	}
}

var powerModeRank = map[string]statestore.PowerMode{
	"idle":    statestore.PowerIdle,
	"standby": statestore.PowerStandby,
	"sleep":   statestore.PowerSleep,
}

// CheckPowerModeGate implements §4.5's ATA-only power-mode gate: once the
// device's mode is at or above the configured threshold, the check is
// skipped (caller must not read telemetry this tick); skipping is capped
// at gate.SkipLimit consecutive ticks (0 = unlimited), and a mode change
// is logged once unless the gate is quiet.
func CheckPowerModeGate(sink Sink, t *statestore.TransientDeviceState, gate config.PowerModeGate, current statestore.PowerMode) (skip bool) {
	if gate.Mode == "" || gate.Mode == "never" {
		return false
	}
	threshold, ok := powerModeRank[gate.Mode]
	if !ok {
		return false
	}
	if current < threshold {
		t.LastSkippedMode = statestore.PowerActive
		t.PowerSkipCount = 0
		return false
	}

	if current != t.LastSkippedMode {
		if !gate.Quiet {
			sink.Emit(Event{Kind: KindHealth, Level: Info, Message: "device power mode reached gate threshold, skipping checks"})
		}
		t.LastSkippedMode = current
		t.PowerSkipCount = 0
	}

	t.PowerSkipCount++
	if gate.SkipLimit > 0 && t.PowerSkipCount > gate.SkipLimit {
		t.PowerSkipCount = 0
		return false
	}
	return true
}

// NvmeCriticalWarningNames maps each bit of the NVMe critical-warning
// byte to its mnemonic, in bit order.
var nvmeCriticalWarningNames = []string{
	"LowSpare",
	"Temperature",
	"Reliability",
	"ReadOnly",
	"VolMemBackup",
	"PersistentMemoryRegion",
}

// CheckNvmeCriticalWarning implements §4.5's masking rule: bits set in
// warningMask fire Crit+mail, naming every set bit but bracketing the
// ones the mask excludes, matching end-to-end scenario 4.
func CheckNvmeCriticalWarning(sink Sink, warning, mask uint8) {
	if warning == 0 {
		return
	}

	var msg string
	fired := false
	for bit := 0; bit < len(nvmeCriticalWarningNames); bit++ {
		if warning&(1<<bit) == 0 {
			continue
		}
		name := nvmeCriticalWarningNames[bit]
		if mask&(1<<bit) != 0 {
			msg += name + ", "
			fired = true
		} else {
			msg += "[" + name + "], "
		}
	}
	if msg != "" {
		msg = msg[:len(msg)-2]
	}

	level := Info
	if fired {
		level = Crit
	}
	sink.Emit(Event{Kind: KindHealth, Level: level, Message: "critical warning: " + msg})
}
