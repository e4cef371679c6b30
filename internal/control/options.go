// Package control implements ControlLoop (§4.7): the single-threaded
// cooperative tick scheduler that owns every device, config, and state
// vector for the process's lifetime, restructured from the module-level
// mutable signal/standby/debug globals a direct port would carry into an
// explicit Daemon value whose signal handler writes only atomic fields,
// per §9's "module-level mutable singletons" design note.
package control

import (
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/pkg/drivedb"
)

// QuitPolicy is the daemon's "-q" exit policy, controlling both
// first-run tolerance for missing/unmonitorable devices and whether the
// process exits after one pass.
type QuitPolicy string

const (
	QuitNodev         QuitPolicy = "nodev"
	QuitNodev0        QuitPolicy = "nodev0"
	QuitNodevStartup  QuitPolicy = "nodevstartup"
	QuitNodev0Startup QuitPolicy = "nodev0startup"
	QuitErrors        QuitPolicy = "errors"
	QuitNever         QuitPolicy = "never"
	QuitOnecheck      QuitPolicy = "onecheck"
	QuitShowtests     QuitPolicy = "showtests"
)

// Exit codes, per §6's external-interface contract.
const (
	ExitOK                  = 0
	ExitBadCLI              = 1
	ExitBadConfigSyntax     = 2
	ExitDaemonizeFailure    = 3
	ExitPIDFileFailure      = 4
	ExitConfigMissing       = 5
	ExitConfigUnreadable    = 6
	ExitOutOfMemory         = 8
	ExitInternal            = 10
	ExitNoDeviceMonitorable = 16
	ExitNoDevicesToMonitor  = 17
	ExitAbnormalSignal      = 254
)

// Options configures one Daemon run; cmd/smartmond builds this from the
// parsed CLI flags.
type Options struct {
	ConfigPath           string // "-" for stdin
	CheckIntervalSeconds int    // global "-i" cadence; 0 = derive from per-device minimum
	Quit                 QuitPolicy
	Debug                bool
	UseSudo              bool
	SmartctlPath         string
	PIDFilePath          string
	StatePrefix          string      // "-s" prefix, "" = current directory
	AttrlogPrefix        string      // "-A" prefix, "" = attribute log disabled
	NotifierPath         string      // "-w" default notifier, overridden per device by "-M exec"
	RunAsUser            string      // "-u user[:group]", "" = don't drop privileges, "-" = same as ""
	DriveDB              *drivedb.DB // "-B" table, nil = no drive-database presets applied
	Notify               Liveness
}

// Liveness is the startup-supervision contract of §5: a "still working"
// ping after each device and a one-time "ready" transition after the
// first complete pass. No systemd-notify (or equivalent) library is
// available anywhere in the example pack this daemon was grounded on, so
// both methods are implemented as plain log lines rather than a
// fabricated sd_notify dependency.
type Liveness interface {
	Ping()
	Ready()
}

// logLiveness is the default Liveness, logging instead of notifying an
// external supervisor.
type logLiveness struct{ log logging.Logger }

func (l logLiveness) Ping()  { l.log.Debug("liveness ping") }
func (l logLiveness) Ready() { l.log.Info("startup complete, ready for steady-state checks") }
