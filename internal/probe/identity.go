// Package probe opens devices, identifies them, and reads the transport-
// specific telemetry snapshot HealthChecker needs, per §4.2.
package probe

import (
	"fmt"
	"strings"

	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// DeviceIdentity is the immutable identity DeviceProbe produces for a
// device: enough to name its state/attrlog files and detect duplicates.
type DeviceIdentity struct {
	Path          string
	Transport     config.Transport
	Model         string
	Serial        string
	Firmware      string
	WWN           string
	CapacityBytes uint64
	NamespaceID   uint32 // NVMe only; 0 means "no namespace" / not applicable
}

// Key is the identity string duplicate detection compares, unique per
// namespace for NVMe.
func (d DeviceIdentity) Key() string {
	if d.Transport == config.TransportNVMe && d.NamespaceID != 0 {
		return fmt.Sprintf("%s-%s-n%d", d.Model, d.Serial, d.NamespaceID)
	}
	return fmt.Sprintf("%s-%s", d.Model, d.Serial)
}

// KeyWithoutNamespace is the "without-namespace-id" variant §3 calls out
// for NVMe duplicate detection -- two config lines naming different
// namespaces of the same controller are still the same physical device.
func (d DeviceIdentity) KeyWithoutNamespace() string {
	return fmt.Sprintf("%s-%s", d.Model, d.Serial)
}

// FilenameStem renders "<MODEL>-<SERIAL>[-n<NSID>]" with unsafe
// characters substituted, per §6's file-naming rule.
func (d DeviceIdentity) FilenameStem() string {
	stem := statestore.SafeFilenamePart(nonEmpty(d.Model)) + "-" + statestore.SafeFilenamePart(nonEmpty(d.Serial))
	if d.Transport == config.TransportNVMe && d.NamespaceID != 0 {
		stem += fmt.Sprintf("-n%d", d.NamespaceID)
	}
	return stem
}

func nonEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
