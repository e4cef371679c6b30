package probe

import (
	"github.com/stratastor/smartmond/pkg/config"
)

// Registry tracks identities seen so far this config generation, so
// DeviceProbe can reject duplicates (§4.2, §3's id_is_unique invariant).
// Only the full Key is compared, so two config lines naming different
// namespaces of the same NVMe controller are treated as distinct, while
// an outright repeat of the same model+serial (and, for NVMe, namespace)
// is rejected.
type Registry struct {
	seen map[string]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]bool)}
}

// Register records identity and reports whether it was already present.
func (r *Registry) Register(identity DeviceIdentity) (duplicate bool) {
	key := identity.Key()
	if r.seen[key] {
		return true
	}
	r.seen[key] = true
	return false
}

// Count returns how many distinct identities have been registered.
func (r *Registry) Count() int { return len(r.seen) }

var _ config.Scanner = (*Scanner)(nil)
