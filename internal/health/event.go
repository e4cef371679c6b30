// Package health implements the shared half of HealthChecker (§4.5):
// temperature, pending-sector, attribute-diff, error-log-growth, and
// self-test-log-delta logic common to every transport. The ATA/SCSI/NVMe
// specific responsibilities live in internal/health/ata,
// internal/health/scsi, internal/health/nvme.
package health

// Kind is one of the 13 warning kinds §4.6 enumerates (0..12), matching
// the SMARTD_FAILTYPE values one-for-one.
type Kind int

const (
	KindTest Kind = iota // 0: "test mail", never rate-limited
	KindHealth
	KindUsage
	KindSelfTest
	KindErrorCount
	KindFailedHealthCheck
	KindFailedReadSmartData
	KindFailedReadSmartErrorLog
	KindFailedReadSmartSelfTestLog
	KindFailedOpenDevice
	KindCurrentPendingSector
	KindOfflineUncorrectableSector
	KindTemperature
)

// FailType renders the kind as the SMARTD_FAILTYPE string §4.6 specifies.
func (k Kind) FailType() string {
	switch k {
	case KindTest:
		return "EmailTest"
	case KindHealth:
		return "Health"
	case KindUsage:
		return "Usage"
	case KindSelfTest:
		return "SelfTest"
	case KindErrorCount:
		return "ErrorCount"
	case KindFailedHealthCheck:
		return "FailedHealthCheck"
	case KindFailedReadSmartData:
		return "FailedReadSmartData"
	case KindFailedReadSmartErrorLog:
		return "FailedReadSmartErrorLog"
	case KindFailedReadSmartSelfTestLog:
		return "FailedReadSmartSelfTestLog"
	case KindFailedOpenDevice:
		return "FailedOpenDevice"
	case KindCurrentPendingSector:
		return "CurrentPendingSector"
	case KindOfflineUncorrectableSector:
		return "OfflineUncorrectableSector"
	case KindTemperature:
		return "Temperature"
	default:
		return "Unknown"
	}
}

// Level is the log severity an Event carries; Crit events are also
// offered to the notifier, Info events are logged only.
type Level int

const (
	Info Level = iota
	Crit
)

// Event is one health observation a Checker hands to the sink. Clear
// marks a "condition cleared" event, which always resets the kind's mail
// history regardless of Level.
type Event struct {
	Kind    Kind
	Level   Level
	Message string
	Clear   bool
}

// Sink receives every Event a Checker emits during one device's tick.
// Checkers are side-effect-only with respect to notification: they never
// decide whether a mail actually goes out, they just report what
// happened and let WarningEngine apply the frequency policy.
type Sink interface {
	Emit(ev Event)
}
