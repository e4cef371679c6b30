package health

import (
	"context"

	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/internal/selftest"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// Checker is the per-transport HealthChecker contract of §4.5: side
// effects only, reported through sink and state mutation, no return
// value but an error for handle-level I/O failure the caller must log
// and otherwise ignore (the device keeps running next tick).
type Checker interface {
	Check(ctx context.Context, cfg *config.DeviceConfig, state *statestore.DeviceState, handle probe.Handle, firstPass, selftestsAllowed bool, due selftest.TestType, sink Sink) error
}
