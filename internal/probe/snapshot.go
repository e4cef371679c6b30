package probe

import (
	"github.com/stratastor/smartmond/internal/statestore"
)

// AtaSnapshot is everything an ATA HealthChecker needs from one probe or
// one tick's device read.
type AtaSnapshot struct {
	Temperature int // Celsius, -1 if unavailable
	PowerMode   statestore.PowerMode

	Attributes []statestore.AtaAttributeSnapshot

	ErrorLogCount int32

	SelfTestFailedCount    uint8
	SelfTestLastFailureHour uint64

	// OfflineStatus/SelfTestStatus are the raw ATA status bytes; bits
	// 4..7 of SelfTestStatus are the self-test execution status (0xf
	// means "in progress") and bits 0..3 the remaining work in tenths,
	// per §4.5's state machine.
	OfflineStatus  byte
	SelfTestStatus byte
}

// ScsiSnapshot is everything a SCSI HealthChecker needs.
type ScsiSnapshot struct {
	Temperature int

	ReadCounters   map[string]uint64
	WriteCounters  map[string]uint64
	VerifyCounters map[string]uint64

	NonMediumErrors uint64

	SelfTestFailedCount int
	SelfTestLastFailureHour int

	IEAsc, IEAscq byte // informational-exception mode page additional sense code
}

// NvmeSnapshot is everything an NVMe HealthChecker needs.
type NvmeSnapshot struct {
	Temperature        int
	CriticalWarning    uint8
	AvailableSpare     uint8
	PercentageUsed     uint8
	MediaErrors        uint64
	ErrLogEntries      uint64

	SelfTestInProgress    bool
	SelfTestCompletion    int // percent complete, per NVMe log
	SelfTestLastResult    int
}
