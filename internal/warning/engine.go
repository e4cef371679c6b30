// Package warning implements the frequency-policy-gated notifier
// dispatch of §4.6: given a health Event and a device's send history, it
// decides whether to log, log-and-notify, or stay silent, then invokes
// the configured external executable with the SMARTD_* environment
// contract smartd.cpp's own notifier scripts expect.
package warning

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/stratastor/smartmond/internal/health"
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/statestore"
	"github.com/stratastor/smartmond/pkg/config"
)

// maxOutputCapture bounds how much of a notifier's combined output is
// kept for the Crit log line.
const maxOutputCapture = 1024

// maxOutputDrain bounds total bytes read off the notifier's pipe before
// it is closed out from under the child, per §4.6.
const maxOutputDrain = 1 << 20

// Engine implements health.Sink: every Checker in internal/health/{ata,scsi,nvme}
// emits Events into an Engine scoped to one device's tick.
type Engine struct {
	cfg    *config.DeviceConfig
	state  *statestore.DeviceState
	log    logging.Logger
	dev    DeviceInfo
	now    func() time.Time
	runner notifierRunner
}

// DeviceInfo is the subset of identity information the SMARTD_DEVICE*
// environment variables expose to the notifier.
type DeviceInfo struct {
	DeviceString string
	DeviceType   string
	Device       string
	DeviceInfo   string
}

// notifierRunner abstracts the external-executable invocation so tests
// can substitute a fake without spawning a process.
type notifierRunner interface {
	Run(ctx context.Context, executable string, env []string) (exitCode int, output []byte, err error)
}

// New returns an Engine for one device's tick, dispatching through the
// real os/exec-backed runner.
func New(cfg *config.DeviceConfig, state *statestore.DeviceState, log logging.Logger, dev DeviceInfo) *Engine {
	return &Engine{cfg: cfg, state: state, log: log, dev: dev, now: time.Now, runner: &execRunner{}}
}

// SetRunAsUser wires the "-u user[:group]" daemon flag into the real
// runner, so the notifier drops privileges before exec the same way
// smartd.cpp's own -u does. A no-op against a substituted test runner.
func (e *Engine) SetRunAsUser(spec string) {
	if er, ok := e.runner.(*execRunner); ok {
		er.runAsUser = spec
	}
}

var _ health.Sink = (*Engine)(nil)

// Emit implements health.Sink. It logs every event (Info at Info, Crit
// at Crit), and for Crit events not suppressed by frequency policy,
// dispatches the external notifier.
func (e *Engine) Emit(ev health.Event) {
	if ev.Clear {
		e.log.Info(ev.Message, "kind", ev.Kind.FailType())
		e.resetMailInfo(ev.Kind)
		return
	}

	switch ev.Level {
	case health.Crit:
		e.log.Crit(ev.Message, "kind", ev.Kind.FailType())
	default:
		e.log.Info(ev.Message, "kind", ev.Kind.FailType())
	}

	if ev.Level != health.Crit {
		return
	}

	if !e.shouldSend(ev.Kind) {
		return
	}

	e.dispatch(ev)
}

func (e *Engine) resetMailInfo(kind health.Kind) {
	if e.state.Persistent.Mail == nil {
		return
	}
	delete(e.state.Persistent.Mail, int(kind))
}

// shouldSend implements the four EmailFreq policies of §4.6, plus the
// kind==0 exemption: test mail is never rate-limited.
func (e *Engine) shouldSend(kind health.Kind) bool {
	if e.cfg.Executable == "" {
		return false
	}
	if kind == health.KindTest {
		return true
	}

	if e.state.Persistent.Mail == nil {
		e.state.Persistent.Mail = make(map[int]statestore.MailInfo)
	}
	info, seen := e.state.Persistent.Mail[int(kind)]
	if !seen {
		return true
	}

	now := e.now()
	switch e.cfg.EmailFreq {
	case config.FreqAlways:
		return true
	case config.FreqDaily:
		return now.Sub(time.Unix(info.LastSentEpoch, 0)) >= 24*time.Hour
	case config.FreqDiminishing:
		k := info.Count
		if k > 5 {
			k = 5
		}
		wait := time.Duration(1<<uint(k)) * 24 * time.Hour
		return now.Sub(time.Unix(info.FirstSentEpoch, 0)) >= wait
	default: // FreqOnce
		return false
	}
}

// dispatch invokes the configured external executable and updates the
// kind's send history, win or lose -- a failed spawn still counts as an
// attempt so Once-policy kinds don't retry forever on a broken notifier.
func (e *Engine) dispatch(ev health.Event) {
	if e.state.Persistent.Mail == nil {
		e.state.Persistent.Mail = make(map[int]statestore.MailInfo)
	}
	info := e.state.Persistent.Mail[int(ev.Kind)]
	now := e.now()
	if info.Count == 0 {
		info.FirstSentEpoch = now.Unix()
	}
	info.LastSentEpoch = now.Unix()
	info.Count++
	e.state.Persistent.Mail[int(ev.Kind)] = info
	e.state.Transient.MustWriteDirty = true

	env := e.buildEnv(ev, info)
	e.log.Info("invoking notifier", "cmd", shellquote.Join(append([]string{e.cfg.Executable}, e.cfg.Addresses...)...))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exitCode, output, err := e.runner.Run(ctx, e.cfg.Executable, env)
	if len(output) > maxOutputCapture {
		output = output[:maxOutputCapture]
	}
	if err != nil {
		e.log.Crit("notifier invocation failed", "err", err, "output", string(output))
		return
	}
	if exitCode != 0 {
		e.log.Crit(fmt.Sprintf("Warning via %s to %s: failed (32-bit/8-bit exit status: %d/%d)",
			e.cfg.Executable, strings.Join(e.cfg.Addresses, ","), exitCode<<8, exitCode), "output", string(output))
		if os.Geteuid() != 0 {
			e.log.Info("notifier failure may be due to dropped privileges; the daemon is not running as root")
		}
		return
	}
	e.log.Info("notifier completed", "output", string(output))
}

// buildEnv constructs the SMARTD_* environment contract of §4.6 as an
// explicit slice, never via os.Setenv.
func (e *Engine) buildEnv(ev health.Event, info statestore.MailInfo) []string {
	tFirst := time.Unix(info.FirstSentEpoch, 0)
	return []string{
		"SMARTD_MAILER=" + e.cfg.Executable,
		"SMARTD_MESSAGE=" + ev.Message,
		"SMARTD_PREVCNT=" + strconv.Itoa(info.Count-1),
		"SMARTD_TFIRST=" + tFirst.Format(time.ANSIC),
		"SMARTD_TFIRSTEPOCH=" + strconv.FormatInt(info.FirstSentEpoch, 10),
		"SMARTD_FAILTYPE=" + ev.Kind.FailType(),
		"SMARTD_ADDRESS=" + strings.Join(e.cfg.Addresses, ","),
		"SMARTD_DEVICESTRING=" + e.dev.DeviceString,
		"SMARTD_DEVICETYPE=" + e.dev.DeviceType,
		"SMARTD_DEVICE=" + e.dev.Device,
		"SMARTD_DEVICEINFO=" + e.dev.DeviceInfo,
		"SMARTD_NEXTDAYS=" + nextDays(e.cfg.EmailFreq, info.Count),
		"SMARTD_SUBJECT=",
	}
}

func nextDays(freq config.EmailFreq, count int) string {
	switch freq {
	case config.FreqDaily:
		return "1"
	case config.FreqDiminishing:
		k := count
		if k > 5 {
			k = 5
		}
		return strconv.Itoa(1 << uint(k))
	default:
		return ""
	}
}
