package probe

import (
	"context"

	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/pkg/config"
)

// Handle is the common surface every transport-specific device handle
// implements; transport-specific reads live on the concrete types
// (AtaHandle.ReadSnapshot, ScsiHandle.ReadSnapshot, NvmeHandle.ReadSnapshot)
// since their shapes differ, per §9's tagged-variant guidance.
type Handle interface {
	Identity() DeviceIdentity
	ApplyOnOpenSettings(cfg *config.DeviceConfig) error
	Close() error
}

// SelfTestCapable is implemented by handles that can start/abort a
// vendor self-test.
type SelfTestCapable interface {
	StartSelfTest(ctx context.Context, t selftest.TestType) error
	AbortSelfTest(ctx context.Context) error
}

// Open dispatches to the transport-specific opener. TransportAuto tries
// NVMe, then ATA, then SCSI, mirroring anatol/smart.go's own probe order.
func Open(ctx context.Context, path string, transport config.Transport, useSudo bool, smartctlPath string, log logging.Logger) (Handle, error) {
	switch transport {
	case config.TransportATA:
		return openAta(path, useSudo, smartctlPath, log)
	case config.TransportSCSI:
		return openScsi(path, useSudo, smartctlPath, log)
	case config.TransportNVMe:
		return openNvme(ctx, path, useSudo, smartctlPath, log)
	default:
		return openAuto(ctx, path, useSudo, smartctlPath, log)
	}
}

func openAuto(ctx context.Context, path string, useSudo bool, smartctlPath string, log logging.Logger) (Handle, error) {
	if h, err := openNvme(ctx, path, useSudo, smartctlPath, log); err == nil {
		return h, nil
	}
	if h, err := openAta(path, useSudo, smartctlPath, log); err == nil {
		return h, nil
	}
	return openScsi(path, useSudo, smartctlPath, log)
}
