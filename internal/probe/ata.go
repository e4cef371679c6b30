package probe

import (
	"context"
	"time"

	smart "github.com/anatol/smart.go"

	"github.com/stratastor/smartmond/internal/command"
	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// AtaHandle wraps anatol/smart.go's native-ioctl SATA device, the
// chosen backend for ATA telemetry per DESIGN.md's open-question
// decision. Self-test start/abort falls back to the smartctl CLI since
// the native handle is read-only.
type AtaHandle struct {
	path         string
	dev          *smart.SataDevice
	ident        *smart.AtaIdentifyDevice
	smartctlPath string
	exec         *command.Executor
}

func openAta(path string, useSudo bool, smartctlPath string, log logging.Logger) (*AtaHandle, error) {
	dev, err := smart.OpenSata(path)
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeOpenFailed).WithMetadata("path", path)
	}
	ident, err := dev.Identify()
	if err != nil {
		dev.Close()
		return nil, rterrors.Wrap(err, rterrors.ProbeOpenFailed).WithMetadata("path", path).WithMetadata("operation", "identify")
	}
	if smartctlPath == "" {
		smartctlPath = "smartctl"
	}
	executor := command.NewExecutor(log, useSudo)
	executor.Timeout = 30 * time.Second
	return &AtaHandle{path: path, dev: dev, ident: ident, smartctlPath: smartctlPath, exec: executor}, nil
}

func (h *AtaHandle) Identity() DeviceIdentity {
	_, capacity, _, _, _ := h.ident.Capacity()
	return DeviceIdentity{
		Path:          h.path,
		Transport:     config.TransportATA,
		Model:         h.ident.ModelNumber(),
		Serial:        h.ident.SerialNumber(),
		Firmware:      h.ident.FirmwareRevision(),
		WWN:           formatWWN(h.ident.WWN()),
		CapacityBytes: capacity,
	}
}

// ApplyOnOpenSettings receives the §3 on-open ATA knobs. anatol/smart.go
// exposes no setter surface for these (it is a read-focused library), so
// this applies none of them and logs nothing; it always returns nil and
// never mutates the DeviceConfig.
func (h *AtaHandle) ApplyOnOpenSettings(cfg *config.DeviceConfig) error {
	return nil
}

func (h *AtaHandle) Close() error { return h.dev.Close() }

// ReadSnapshot reads the current attribute table, error-log summary, and
// self-test log, translating them into the shape HealthChecker expects.
func (h *AtaHandle) ReadSnapshot() (*AtaSnapshot, error) {
	page, err := h.dev.ReadSMARTData()
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "read_smart_data")
	}

	var thresholds map[uint8]uint8
	if tp, err := h.dev.ReadSMARTThresholds(); err == nil {
		thresholds = tp.Thresholds
	}

	snap := &AtaSnapshot{Temperature: -1}
	for id, a := range page.Attrs {
		snap.Attributes = append(snap.Attributes, statestore.AtaAttributeSnapshot{
			ID:        id,
			Value:     a.Current,
			Worst:     a.Worst,
			Raw:       a.ValueRaw,
			Threshold: thresholds[id],
		})
	}

	if errLog, err := h.dev.ReadSMARTErrorLogSummary(); err == nil {
		snap.ErrorLogCount = int32(errLog.ErrorCount)
	}

	if stLog, err := h.dev.ReadSMARTSelfTestLog(); err == nil {
		var failed uint8
		var lastHour uint64
		for _, e := range stLog.Entry {
			status := e.Status >> 4
			if status != 0 && status != 0xf {
				failed++
				if uint64(e.LifeTimestamp) > lastHour {
					lastHour = uint64(e.LifeTimestamp)
				}
			}
		}
		snap.SelfTestFailedCount = failed
		snap.SelfTestLastFailureHour = lastHour
	}

	generic, err := h.dev.ReadGenericAttributes()
	if err == nil {
		snap.Temperature = int(generic.Temperature)
	}

	return snap, nil
}

// StartSelfTest shells out to smartctl: anatol/smart.go's vendored
// snapshot exposes no ATA SMART EXECUTE OFFLINE IMMEDIATE command, only
// read paths.
func (h *AtaHandle) StartSelfTest(ctx context.Context, t selftest.TestType) error {
	mode, err := ataTestMode(t)
	if err != nil {
		return err
	}
	if _, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--test="+mode, h.path); err != nil {
		return rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "start_self_test")
	}
	return nil
}

func (h *AtaHandle) AbortSelfTest(ctx context.Context) error {
	if _, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--abort", h.path); err != nil {
		return rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "abort_self_test")
	}
	return nil
}

// ataTestMode maps a selftest.TestType to the smartctl --test= argument.
func ataTestMode(t selftest.TestType) (string, error) {
	switch t {
	case selftest.TestShort:
		return "short", nil
	case selftest.TestLong:
		return "long", nil
	case selftest.TestConveyance:
		return "conveyance", nil
	case selftest.TestOffline:
		return "offline", nil
	case selftest.TestSelectiveNext:
		return "select,next", nil
	case selftest.TestSelectiveCont:
		return "select,cont", nil
	case selftest.TestSelectiveRedo:
		return "select,redo", nil
	default:
		return "", rterrors.New(rterrors.ProbeCapabilityUnsupported, "unknown ATA self-test type "+string(t))
	}
}

func formatWWN(w uint64) string {
	if w == 0 {
		return ""
	}
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[w&0xf]
		w >>= 4
	}
	return string(b)
}
