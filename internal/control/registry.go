package control

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/health/ata"
	"github.com/stratastor/smartmond/internal/health/nvme"
	"github.com/stratastor/smartmond/internal/health/scsi"
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/internal/warning"
	"github.com/stratastor/smartmond/pkg/config"
	"github.com/stratastor/smartmond/pkg/drivedb"

	rterrors "github.com/stratastor/smartmond/internal/errors"
)

// Default self-test capability sets a freshly opened device of a given
// transport may be asked to run. These sets are not narrowed per device:
// the NotCap* flags a checker records in TransientDeviceState are not
// consulted when the scheduler picks a due test.
var (
	ataCapable  = []selftest.TestType{selftest.TestLong, selftest.TestShort, selftest.TestConveyance, selftest.TestOffline, selftest.TestSelectiveNext, selftest.TestSelectiveCont, selftest.TestSelectiveRedo}
	scsiCapable = []selftest.TestType{selftest.TestLong, selftest.TestShort, selftest.TestConveyance}
	nvmeCapable = []selftest.TestType{selftest.TestLong, selftest.TestShort}
)

// deviceRuntime is everything the tick loop needs for one registered
// device, rebuilt wholesale on every (re)load.
type deviceRuntime struct {
	cfg      *config.DeviceConfig
	identity probe.DeviceIdentity
	handle   probe.Handle
	checker  health.Checker
	capable  []selftest.TestType

	state *statestore.Manager
	warn  *warning.Engine

	firstPass bool
	wakeup    time.Time

	standby standbyState
}

func checkerFor(transport config.Transport) health.Checker {
	switch transport {
	case config.TransportATA:
		return ata.New()
	case config.TransportSCSI:
		return scsi.New()
	case config.TransportNVMe:
		return nvme.New()
	default:
		return nil
	}
}

func capableFor(transport config.Transport) []selftest.TestType {
	switch transport {
	case config.TransportATA:
		return ataCapable
	case config.TransportSCSI:
		return scsiCapable
	case config.TransportNVMe:
		return nvmeCapable
	default:
		return nil
	}
}

// applyDriveDBPreset looks identity up in db and, on a match, runs its
// preset directive tokens through the same per-device grammar a config
// line would use, filling in attribute flags a drive database entry
// knows about that the config file itself never mentioned.
func applyDriveDBPreset(db *drivedb.DB, identity probe.DeviceIdentity, cfg *config.DeviceConfig, log logging.Logger) {
	e, ok := db.Lookup(identity.Model, identity.Firmware)
	if !ok {
		return
	}
	if err := config.ApplyDirectives(cfg, e.Presets, 0); err != nil {
		log.Warn("drive database preset rejected", "device", cfg.Name, "error", err)
		return
	}
	if e.Warning != "" {
		log.Info("drive database preset applied", "device", cfg.Name, "note", e.Warning)
	}
}

// registerOne opens, identifies, and wires one configured device: the
// DeviceProbe-to-StateStore-to-WarningEngine assembly of §4.2.
func registerOne(ctx context.Context, cfg *config.DeviceConfig, opts Options, log logging.Logger, offsetFactor int) (*deviceRuntime, error) {
	h, err := probe.Open(ctx, cfg.Name, cfg.Transport, opts.UseSudo, opts.SmartctlPath, log)
	if err != nil {
		return nil, err
	}

	identity := h.Identity()
	checker := checkerFor(identity.Transport)
	if checker == nil {
		h.Close()
		return nil, rterrors.New(rterrors.ProbeUnsupportedTransport, "no HealthChecker for resolved transport").WithMetadata("path", cfg.Name)
	}

	if opts.DriveDB != nil {
		applyDriveDBPreset(opts.DriveDB, identity, cfg, log)
	}

	if err := h.ApplyOnOpenSettings(cfg); err != nil {
		log.Warn("on-open settings partially applied", "device", cfg.Name, "error", err)
	}

	cfg.OffsetFactor = offsetFactor
	cfg.StateFilePath = opts.StatePrefix + identity.FilenameStem() + "." + string(identity.Transport) + ".state"
	if opts.AttrlogPrefix != "" {
		cfg.AttrLogFilePath = opts.AttrlogPrefix + identity.FilenameStem() + "." + string(identity.Transport) + ".csv"
	}

	mgr := statestore.NewManager(log, cfg.StateFilePath)
	if err := mgr.Load(); err != nil {
		log.Warn("state load failed, starting fresh", "device", cfg.Name, "error", err)
	}

	if cfg.Executable == "" {
		cfg.Executable = opts.NotifierPath
	}

	warn := warning.New(cfg, mgr.Get(), log, warning.DeviceInfo{
		DeviceString: cfg.Name,
		DeviceType:   string(identity.Transport),
		Device:       cfg.Name,
		DeviceInfo:   fmt.Sprintf("%s %s %s", identity.Model, identity.Serial, identity.Firmware),
	})
	warn.SetRunAsUser(opts.RunAsUser)

	log.Info("registered device", "device", cfg.Name, "transport", identity.Transport, "model", identity.Model, "serial", identity.Serial)

	if cfg.EmailTest {
		warn.Emit(health.Event{Kind: health.KindTest, Level: health.Crit, Message: "Test email from smartmond"})
	}

	return &deviceRuntime{
		cfg: cfg, identity: identity, handle: h, checker: checker,
		capable:   capableFor(identity.Transport),
		state:     mgr, warn: warn, firstPass: true,
		standby: standbyEnabledNoTests,
	}, nil
}

// registerAll parses the config and opens every device. It never
// mutates the Daemon's existing device list -- the caller decides
// whether to swap in the result or keep the previous generation, per
// §4.7 step 1's atomic-reload contract.
func (d *Daemon) registerAll(ctx context.Context) ([]*deviceRuntime, error) {
	f, err := d.openConfig()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result, err := config.Parse(f, d.scanner)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var runtimes []*deviceRuntime
	for i, cfg := range result.Devices {
		rt, err := registerOne(ctx, cfg, d.opts, d.log, i)
		if err != nil {
			if cfg.Scanned {
				d.log.Info("scanned device probe failed, skipping", "device", cfg.Name, "error", err)
				continue
			}
			return nil, err
		}

		key := rt.identity.Key()
		if seen[key] {
			rt.handle.Close()
			if cfg.Scanned {
				d.log.Info("scanned device duplicates an already-registered identity, skipping", "device", cfg.Name)
				continue
			}
			return nil, rterrors.New(rterrors.ProbeDuplicateDevice, "duplicate device identity").WithMetadata("device", cfg.Name)
		}
		seen[key] = true
		runtimes = append(runtimes, rt)
	}
	return runtimes, nil
}

func (d *Daemon) openConfig() (io.ReadCloser, error) {
	if d.opts.ConfigPath == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(d.opts.ConfigPath)
	if os.IsNotExist(err) {
		return nil, rterrors.Wrap(err, rterrors.ConfigMissing).WithMetadata("path", d.opts.ConfigPath)
	}
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ConfigUnreadable).WithMetadata("path", d.opts.ConfigPath)
	}
	return f, nil
}
