package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stratastor/smartmond/internal/command"
	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/pkg/config"
)

// NvmeHandle wraps the smartctl --json CLI. The anatol/smart.go snapshot
// vendored into the pack has no nvme_linux.go, only nvme_darwin.go and
// nvme_other.go (build-tagged !linux && !darwin) -- so NVMe telemetry on
// Linux goes through smartctl instead, per DESIGN.md's open-question
// decision.
type NvmeHandle struct {
	path         string
	smartctlPath string
	exec         *command.Executor
	namespaceID  uint32
	cached       smartctlJSON
}

// smartctlJSON is the narrow slice of smartctl --json output NVMe
// telemetry needs, grounded on pkg/disk/parsers/smartctl.go's
// SmartctlJSON struct.
type smartctlJSON struct {
	ModelName       string `json:"model_name"`
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version"`
	NVMeNamespaceID uint32 `json:"nvme_namespace_id,omitempty"`
	UserCapacity    struct {
		Bytes uint64 `json:"bytes"`
	} `json:"user_capacity"`
	NVMeSmartHealthInformationLog *struct {
		CriticalWarning  int    `json:"critical_warning"`
		Temperature      int    `json:"temperature"`
		AvailableSpare   int    `json:"available_spare"`
		PercentageUsed   int    `json:"percentage_used"`
		MediaErrors      uint64 `json:"media_errors"`
		NumErrLogEntries uint64 `json:"num_err_log_entries"`
	} `json:"nvme_smart_health_information_log,omitempty"`
	NVMeSelfTestLog *struct {
		CurrentSelfTestOperation struct {
			Value int `json:"value"`
		} `json:"current_self_test_operation"`
		CurrentSelfTestCompletionPercent int `json:"current_self_test_completion_percent"`
	} `json:"nvme_self_test_log,omitempty"`
}

func openNvme(ctx context.Context, path string, useSudo bool, smartctlPath string, log logging.Logger) (*NvmeHandle, error) {
	if smartctlPath == "" {
		smartctlPath = "smartctl"
	}
	executor := command.NewExecutor(log, useSudo)
	executor.Timeout = 30 * time.Second
	out, err := executor.ExecuteWithCombinedOutput(ctx, smartctlPath, "--json", "--all", path)
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeOpenFailed).WithMetadata("path", path)
	}

	var parsed smartctlJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeOpenFailed).WithMetadata("path", path).WithMetadata("operation", "parse_json")
	}
	if parsed.NVMeSmartHealthInformationLog == nil {
		return nil, rterrors.New(rterrors.ProbeUnsupportedTransport, "device has no NVMe health log").WithMetadata("path", path)
	}

	return &NvmeHandle{
		path:         path,
		smartctlPath: smartctlPath,
		exec:         executor,
		namespaceID:  parsed.NVMeNamespaceID,
		cached:       parsed,
	}, nil
}

func (h *NvmeHandle) Identity() DeviceIdentity {
	return DeviceIdentity{
		Path:          h.path,
		Transport:     config.TransportNVMe,
		Model:         h.cached.ModelName,
		Serial:        h.cached.SerialNumber,
		Firmware:      h.cached.FirmwareVersion,
		CapacityBytes: h.cached.UserCapacity.Bytes,
		NamespaceID:   h.namespaceID,
	}
}

// ApplyOnOpenSettings is a no-op: §3's on-open knobs are ATA-only.
func (h *NvmeHandle) ApplyOnOpenSettings(cfg *config.DeviceConfig) error { return nil }

func (h *NvmeHandle) Close() error { return nil }

// ReadSnapshot re-invokes smartctl --json --all and translates the
// health log into an NvmeSnapshot.
func (h *NvmeHandle) ReadSnapshot(ctx context.Context) (*NvmeSnapshot, error) {
	out, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--json", "--all", h.path)
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path)
	}
	var parsed smartctlJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "parse_json")
	}
	h.cached = parsed

	health := parsed.NVMeSmartHealthInformationLog
	if health == nil {
		return nil, rterrors.New(rterrors.ProbeReadFailed, "NVMe health log missing from smartctl output").WithMetadata("path", h.path)
	}

	snap := &NvmeSnapshot{
		Temperature:     health.Temperature,
		CriticalWarning: uint8(health.CriticalWarning),
		AvailableSpare:  uint8(health.AvailableSpare),
		PercentageUsed:  uint8(health.PercentageUsed),
		MediaErrors:     health.MediaErrors,
		ErrLogEntries:   health.NumErrLogEntries,
	}
	if st := parsed.NVMeSelfTestLog; st != nil {
		snap.SelfTestInProgress = st.CurrentSelfTestOperation.Value != 0
		snap.SelfTestCompletion = st.CurrentSelfTestCompletionPercent
	}
	return snap, nil
}

func (h *NvmeHandle) StartSelfTest(ctx context.Context, t selftest.TestType) error {
	var mode string
	switch t {
	case selftest.TestShort:
		mode = "short"
	case selftest.TestLong:
		mode = "long"
	default:
		return rterrors.New(rterrors.ProbeCapabilityUnsupported, "NVMe only supports short/long self-tests")
	}
	_, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--json", "--test="+mode, h.path)
	if err != nil {
		return rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "start_self_test")
	}
	return nil
}

func (h *NvmeHandle) AbortSelfTest(ctx context.Context) error {
	_, err := h.exec.ExecuteWithCombinedOutput(ctx, h.smartctlPath, "--json", "--abort", h.path)
	if err != nil {
		return rterrors.Wrap(err, rterrors.ProbeReadFailed).WithMetadata("path", h.path).WithMetadata("operation", "abort_self_test")
	}
	return nil
}
