// Package statestore persists per-device SMART state across restarts and
// appends per-tick attribute-log rows, per §4.3.
package statestore

import "time"

// AtaAttributeSnapshot is one row of a device's last-seen ATA attribute
// table, kept to detect value/raw changes between ticks.
type AtaAttributeSnapshot struct {
	ID        uint8
	Value     uint8
	Worst     uint8
	Raw       uint64 // six little-endian bytes, as read off the wire
	Resvd     uint8
	Threshold uint8 // from the device's SMART thresholds page, 0 = unknown/never-fails
}

// MailInfo is the per-warning-kind send history used by the frequency
// policies in internal/warning.
type MailInfo struct {
	Count          int
	FirstSentEpoch int64
	LastSentEpoch  int64
}

// PersistentDeviceState is the subset of a device's bookkeeping that
// survives restarts, round-tripped through the state file (§4.3).
type PersistentDeviceState struct {
	TemperatureMin          uint8
	TemperatureMax          uint8
	SelfTestErrors          uint8
	SelfTestLastErrorHour   uint64
	ScheduledTestNextCheck  int64 // unix seconds checkpoint, see internal/selftest
	SelectiveTestLastStart  uint64
	SelectiveTestLastEnd    uint64
	AtaErrorCount           int32

	// Mail is keyed by warning kind, 0..12 per §4.6.
	Mail map[int]MailInfo

	AtaAttributes []AtaAttributeSnapshot // up to 30 entries

	NvmeErrLogEntries    uint64
	NvmeAvailableSpare   uint8
	NvmePercentageUsed   uint8
	NvmeMediaErrors      uint64
}

// NewPersistentDeviceState returns a structurally zero-initialized state,
// matching what a fresh device (or a state file with only zero-valued
// keys) reads back as.
func NewPersistentDeviceState() *PersistentDeviceState {
	return &PersistentDeviceState{Mail: make(map[int]MailInfo)}
}

// PowerMode enumerates the ATA power states the standby gate compares
// against the user's configured threshold.
type PowerMode int

const (
	PowerActive PowerMode = iota
	PowerIdle
	PowerStandby
	PowerSleep
)

// TransientDeviceState is runtime-only bookkeeping, re-initialized every
// process start except where noted (§3).
type TransientDeviceState struct {
	MustWriteDirty bool
	Skip           bool
	NextWakeup     time.Time

	NotCapLong      bool
	NotCapShort     bool
	NotCapConveyance bool
	NotCapOffline   bool
	NotCapSelective bool

	LastTemperature     uint8
	TempMinSampleDeadline time.Time

	Removed bool

	PowerSkipCount int
	LastSkippedMode PowerMode

	// ValidProtocol names which transport's cached telemetry below is
	// authoritative this tick ("ata", "scsi", "nvme").
	ValidProtocol string

	// AtaErrorLogCount/NvmeErrorLogCount/ScsiSelfTestFailCount etc. are
	// the previous-tick cached counters used purely for delta detection;
	// kept loose (not re-derived from PersistentDeviceState) because they
	// must reflect what was actually read this process run, not what was
	// last written to disk.
	CachedAtaErrorLogCount  int32
	CachedNvmeErrorLogCount uint64
	CachedScsiSelfTestFail  int
	CachedScsiSelfTestHour  int

	SelfTestJustStarted bool
	NvmeLastSelfTestOp         int
	NvmeLastSelfTestCompletion int

	// CachedAtaOfflineStatus/CachedAtaSelfTestStatus are the previous
	// tick's raw ATA status bytes, used to detect a status change even
	// when the device reports the same thing the very next tick after a
	// test starts (the "self-test just started" bridge, §4.5).
	CachedAtaOfflineStatus  byte
	CachedAtaSelfTestStatus byte
}

// NewTransientDeviceState returns a freshly initialized transient state.
func NewTransientDeviceState() *TransientDeviceState {
	return &TransientDeviceState{ValidProtocol: ""}
}

// DeviceState bundles both halves for a single device, as the
// HealthChecker and WarningEngine see it.
type DeviceState struct {
	Persistent *PersistentDeviceState
	Transient  *TransientDeviceState
}

// NewDeviceState creates a DeviceState with a zeroed persistent half and
// a fresh transient half -- the state a device has before any load.
func NewDeviceState() *DeviceState {
	return &DeviceState{
		Persistent: NewPersistentDeviceState(),
		Transient:  NewTransientDeviceState(),
	}
}
