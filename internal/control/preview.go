package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stratastor/smartmond/internal/selftest"
)

// previewHorizon is how far ahead ShowTests replays each device's
// schedule pattern, wide enough to show a full week of staggering.
const previewHorizon = 7 * 24 * time.Hour

// ShowTests implements the "-q showtests" diagnostic of §2.3: register
// every device as usual (so capability and offset staggering are real),
// then replay each one's self-test pattern over the coming week without
// touching any checkpoint or starting anything. It never enters the
// normal tick loop.
func (d *Daemon) ShowTests(ctx context.Context) (string, error) {
	if err := d.register(ctx, true); err != nil {
		return "", err
	}
	defer func() {
		for _, rt := range d.devices {
			rt.handle.Close()
		}
	}()

	now := time.Now()
	var b strings.Builder
	for _, rt := range d.devices {
		fmt.Fprintf(&b, "Device: %s\n", rt.cfg.Name)
		if rt.cfg.SelfTestPattern == nil {
			b.WriteString("  no self-test schedule configured\n")
			continue
		}
		schedule := selftest.Preview(now, previewHorizon, rt.cfg.SelfTestPattern, rt.capable, rt.cfg.OffsetFactor, rt.cfg.OffsetN, rt.cfg.OffsetL)
		for _, st := range schedule {
			fmt.Fprintf(&b, "  %s  %s\n", st.Hour.Local().Format("2006-01-02 15:04"), st.Type)
		}
	}
	return b.String(), nil
}
