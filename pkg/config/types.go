// Package config parses the daemon's directive configuration file: one
// line per monitored device (or the DEVICESCAN sentinel), optional
// DEFAULT carry-forward directives, comments, and backslash line
// continuation.
package config

import "regexp"

// Transport identifies the declared or auto-detected device protocol.
type Transport string

const (
	TransportAuto Transport = "auto"
	TransportATA  Transport = "ata"
	TransportSCSI Transport = "scsi"
	TransportNVMe Transport = "nvme"
)

// EmailFreq is one of the four notification rate policies of §4.6.
type EmailFreq string

const (
	FreqOnce        EmailFreq = "once"
	FreqAlways      EmailFreq = "always"
	FreqDaily       EmailFreq = "daily"
	FreqDiminishing EmailFreq = "diminishing"
)

// AttrFlags is the per-attribute bitmap described in §3, one entry per
// ATA attribute ID (0-255).
type AttrFlags struct {
	IgnoreFailedUsage bool
	Ignore            bool
	PrintRaw          bool
	TrackRaw          bool
	AsCritical        bool
	RawAsCritical     bool
}

// PendingSectorPolicy names an attribute ID tracked for pending/offline
// uncorrectable sectors, with an optional increase-only gate.
type PendingSectorPolicy struct {
	AttributeID  int
	IncreaseOnly bool
}

// PowerModeGate is the optional "-n" directive: skip a device's check
// entirely while it is at or below a given low-power state, so polling
// itself doesn't spin idle disks back up. Mode is one of "", "never",
// "sleep", "standby", "idle" ("" and "never" both disable the gate).
type PowerModeGate struct {
	Mode      string
	SkipLimit int // 0 = no limit; force a check anyway after this many consecutive skips
	Quiet     bool
}

// OnOpenSettings are applied once, at probe time, to an ATA device.
type OnOpenSettings struct {
	AAM             *int // Automatic Acoustic Management level, nil = leave unset
	APM             *int // Advanced Power Management level
	Lookahead       *bool
	WriteCache      *bool
	DSN             *bool
	StandbyTimer    *int
	SecurityFreeze  bool
	SCTERCReadDs    *int // deciseconds
	SCTERCWriteDs   *int
}

// DeviceConfig is the immutable, per-device configuration produced by
// ConfigParser. One instance exists per monitored device for the
// lifetime of a config generation; it is discarded wholesale on reload.
type DeviceConfig struct {
	// Identity as declared in the config file.
	Name      string
	Transport Transport
	LineNo    int
	Scanned   bool // true for a device produced by DEVICESCAN expansion, not an explicit line

	// Monitoring flags.
	SMARTCheck          bool
	NVMeWarningMask      uint8
	TrackUsageFailed     bool
	TrackPrefail         bool
	TrackUsage           bool
	TrackSelfTestLog     bool
	TrackErrorLog        bool
	TrackXErrorLog       bool
	TrackOfflineStatus   bool
	TrackSelfTestStatus  bool
	DisableStandbyOffline  bool // suppress auto-standby while offline collection runs
	DisableStandbySelfTest bool // suppress auto-standby while a self-test runs

	// Temperature policy (°C).
	TempDeltaThreshold uint8
	TempInfoThreshold  uint8
	TempCritThreshold  uint8

	PendingSectors  [2]PendingSectorPolicy
	AttrFlags       [256]AttrFlags

	SelfTestPattern *regexp.Regexp
	SelfTestRaw     string
	OffsetN         int // NNN in the :NNN[-LLL] suffix, 0 if absent
	OffsetL         int // LLL in the :NNN-LLL suffix, 0 if absent
	OffsetFactor    int // assigned at registration for staggering (§4.4)

	Addresses    []string
	Executable   string
	EmailFreq    EmailFreq
	explicitFreq EmailFreq // set only when -M once/always/daily/diminishing was seen
	EmailTest    bool

	CheckIntervalSeconds int // 0 = use global interval

	PowerGate PowerModeGate

	OnOpen OnOpenSettings

	StateFilePath   string
	AttrLogFilePath string

	IDIsUnique bool
}

// DefaultDeviceConfig returns a DeviceConfig with every monitor disabled,
// the state the parser starts building a line from before applying
// DEFAULT carry-forward and the line's own directives.
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Transport: TransportAuto,
		EmailFreq: FreqOnce,
	}
}

// ApplyAllMonitors implements the "-a" shorthand: turn on every monitor.
// Used both explicitly (the -a directive) and implicitly when a device
// line carries no monitor directive at all (§4.1 post-condition).
func (c *DeviceConfig) ApplyAllMonitors() {
	c.SMARTCheck = true
	c.TrackUsageFailed = true
	c.TrackPrefail = true
	c.TrackUsage = true
	c.TrackSelfTestLog = true
	c.TrackErrorLog = true
	c.TrackXErrorLog = true
	c.TrackOfflineStatus = true
	c.TrackSelfTestStatus = true
	if c.TempCritThreshold == 0 {
		c.TempCritThreshold = 60
	}
	if c.TempInfoThreshold == 0 {
		c.TempInfoThreshold = 50
	}
}

// hasAnyMonitor reports whether any monitor directive has been applied,
// used to decide whether the implicit "-a" post-condition fires.
func (c *DeviceConfig) hasAnyMonitor() bool {
	return c.SMARTCheck || c.TrackUsageFailed || c.TrackPrefail || c.TrackUsage ||
		c.TrackSelfTestLog || c.TrackErrorLog || c.TrackXErrorLog ||
		c.TrackOfflineStatus || c.TrackSelfTestStatus
}
