package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stratastor/smartmond/internal/command"
	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/logging"
)

// Scanner implements config.Scanner by invoking smartctl --json --scan-open,
// the auto-detection DEVICESCAN expands to, grounded on
// pkg/disk/tools/smartctl.go's ScanOpen.
type Scanner struct {
	exec *command.Executor
	path string
}

// NewScanner builds a Scanner that shells out to smartctlPath.
func NewScanner(log logging.Logger, useSudo bool, smartctlPath string) *Scanner {
	if smartctlPath == "" {
		smartctlPath = "smartctl"
	}
	executor := command.NewExecutor(log, useSudo)
	executor.Timeout = 30 * time.Second
	return &Scanner{exec: executor, path: smartctlPath}
}

type scanJSON struct {
	Devices []struct {
		Name string `json:"name"`
	} `json:"devices"`
}

// ScanDevices returns every device path smartctl's scan reports, for
// DEVICESCAN expansion per §4.1.
func (s *Scanner) ScanDevices() ([]string, error) {
	out, err := s.exec.ExecuteWithCombinedOutput(context.Background(), s.path, "--json", "--scan-open")
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeScanFailed)
	}
	return parseScanJSON(out)
}

func parseScanJSON(out []byte) ([]string, error) {
	var parsed scanJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, rterrors.Wrap(err, rterrors.ProbeScanFailed).WithMetadata("operation", "parse_json")
	}

	names := make([]string, 0, len(parsed.Devices))
	for _, d := range parsed.Devices {
		names = append(names, d.Name)
	}
	return names, nil
}
