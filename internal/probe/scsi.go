package probe

import (
	"context"
	"time"

	smart "github.com/anatol/smart.go"

	"github.com/stratastor/smartmond/internal/command"
	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/pkg/config"
)

// ScsiHandle wraps anatol/smart.go's native SG_IO SCSI device. Self-test
// start/abort falls back to the smartctl CLI, mirroring AtaHandle.
type ScsiHandle struct {
	path         string
	dev          *smart.ScsiDevice
	inquiry      *smart.ScsiInquiry
	smartctlPath string
	exec         *command.Executor
}

func openScsi(path string, useSudo bool, smartctlPath string, log logging.Logger) (*ScsiHandle, error) {
	dev, err := smart.OpenScsi(path)
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeOpenFailed).WithMetadata("path", path)
	}
	inq, err := dev.Inquiry()
	if err != nil {
		dev.Close()
		return nil, rterrors.Wrap(err, rterrors.ProbeOpenFailed).WithMetadata("path", path).WithMetadata("operation", "inquiry")
	}
	if smartctlPath == "" {
		smartctlPath = "smartctl"
	}
	executor := command.NewExecutor(log, useSudo)
	executor.Timeout = 30 * time.Second
	return &ScsiHandle{path: path, dev: dev, inquiry: inq, smartctlPath: smartctlPath, exec: executor}, nil
}

func (h *ScsiHandle) Identity() DeviceIdentity {
	capacity, _ := h.dev.Capacity()
	serial, _ := h.dev.SerialNumber()
	return DeviceIdentity{
		Path:          h.path,
		Transport:     config.TransportSCSI,
		Model:         string(trimScsiField(h.inquiry.ProductIdent[:])),
		Serial:        serial,
		Firmware:      string(trimScsiField(h.inquiry.ProductRev[:])),
		CapacityBytes: capacity,
	}
}

// ApplyOnOpenSettings is a no-op for SCSI: §3's on-open knobs (AAM, APM,
// lookahead, write-cache, DSN, standby timer, SCT-ERC) are ATA-only per
// §4.5's transport split.
func (h *ScsiHandle) ApplyOnOpenSettings(cfg *config.DeviceConfig) error { return nil }

func (h *ScsiHandle) Close() error { return h.dev.Close() }

// ReadSnapshot reads the generic attributes anatol/smart.go exposes for
// SCSI and fills in only Temperature. The IE mode page and the
// error-counter and self-test log pages are not read: the native SCSI
// handle covers only the experimental GenericAttributes surface
// (temperature/read/write/power-on/power-cycle), so the counter maps,
// NonMediumErrors, the self-test fields and IEAsc/IEAscq stay zero.
func (h *ScsiHandle) ReadSnapshot() (*ScsiSnapshot, error) {
	generic, err := h.dev.ReadGenericAttributes()
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path)
	}
	return &ScsiSnapshot{
		Temperature: int(generic.Temperature),
	}, nil
}

// StartSelfTest accepts only the test types SCSI self-test scheduling
// supports (short/long/conveyance); Checker never offers it anything
// else (the selective/offline branch is refused before this is called).
func (h *ScsiHandle) StartSelfTest(ctx context.Context, t selftest.TestType) error {
	var mode string
	switch t {
	case selftest.TestShort:
		mode = "short"
	case selftest.TestLong:
		mode = "long"
	case selftest.TestConveyance:
		mode = "conveyance"
	default:
		return rterrors.New(rterrors.ProbeCapabilityUnsupported, "SCSI only supports short/long/conveyance self-tests")
	}
	if _, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--test="+mode, h.path); err != nil {
		return rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "start_self_test")
	}
	return nil
}

func (h *ScsiHandle) AbortSelfTest(ctx context.Context) error {
	if _, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--abort", h.path); err != nil {
		return rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "abort_self_test")
	}
	return nil
}

func trimScsiField(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == ' ' || b[n-1] == 0) {
		n--
	}
	return b[:n]
}
