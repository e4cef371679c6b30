package config

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	rterrors "github.com/stratastor/smartmond/internal/errors"
)

const (
	maxLogicalLine  = 1023
	maxPhysicalLine = 256
)

// Scanner resolves the DEVICESCAN sentinel to the set of auto-detected
// device names, letting pkg/config stay independent of internal/probe
// (which in turn depends on pkg/config's DeviceConfig type).
type Scanner interface {
	ScanDevices() ([]string, error)
}

// ParseResult is the output of a full config parse.
type ParseResult struct {
	Devices []*DeviceConfig
}

// Parse reads directives from r, the DEFAULT/DEVICESCAN/per-device
// grammar of §4.1, and returns one DeviceConfig per monitored device.
func Parse(r io.Reader, scanner Scanner) (*ParseResult, error) {
	lines, err := joinContinuations(r)
	if err != nil {
		return nil, err
	}

	def := DefaultDeviceConfig()
	var result ParseResult
	seen := make(map[string]bool)

	for _, ln := range lines {
		if ln.text == "" || strings.HasPrefix(strings.TrimSpace(ln.text), "#") {
			continue
		}

		fields := strings.Fields(ln.text)
		if len(fields) == 0 {
			continue
		}

		name := fields[0]
		directives := fields[1:]

		switch name {
		case "DEFAULT":
			nd := DefaultDeviceConfig()
			if err := applyDirectives(nd, directives, ln.no); err != nil {
				return nil, err
			}
			def = nd
			continue
		case "DEVICESCAN":
			if scanner == nil {
				return nil, rterrors.New(rterrors.ConfigDirectiveInvalid, "DEVICESCAN used but no scanner configured").WithMetadata("line", fmt.Sprint(ln.no))
			}
			names, err := scanner.ScanDevices()
			if err != nil {
				return nil, rterrors.Wrap(err, rterrors.ConfigSyntax).WithMetadata("line", fmt.Sprint(ln.no))
			}
			for _, n := range names {
				cfg := cloneDefault(def)
				cfg.Name = n
				cfg.LineNo = ln.no
				cfg.Scanned = true
				if err := applyDirectives(cfg, directives, ln.no); err != nil {
					return nil, err
				}
				finalize(cfg)
				if err := checkDuplicate(seen, cfg, ln.no); err != nil {
					return nil, err
				}
				result.Devices = append(result.Devices, cfg)
			}
			continue
		}

		cfg := cloneDefault(def)
		cfg.Name = name
		cfg.LineNo = ln.no
		if err := applyDirectives(cfg, directives, ln.no); err != nil {
			return nil, err
		}
		finalize(cfg)
		if err := checkDuplicate(seen, cfg, ln.no); err != nil {
			return nil, err
		}
		result.Devices = append(result.Devices, cfg)
	}

	return &result, nil
}

func checkDuplicate(seen map[string]bool, cfg *DeviceConfig, lineNo int) error {
	if seen[cfg.Name] {
		return rterrors.New(rterrors.ConfigDuplicateDevice, "duplicate device in config").
			WithMetadata("device", cfg.Name).WithMetadata("line", fmt.Sprint(lineNo))
	}
	seen[cfg.Name] = true
	return nil
}

func cloneDefault(d *DeviceConfig) *DeviceConfig {
	cp := *d
	return &cp
}

// finalize applies the §4.1 post-conditions: implicit "-a" when no
// monitor was set, and the notifier frequency default when a notifier
// address/executable is configured but no explicit frequency was given.
func finalize(c *DeviceConfig) {
	if !c.hasAnyMonitor() {
		c.ApplyAllMonitors()
	}
	if (len(c.Addresses) > 0 || c.Executable != "") && c.explicitFreq == "" {
		if c.StateFilePath == "" {
			c.EmailFreq = FreqOnce
		} else {
			c.EmailFreq = FreqDaily
		}
	}
}

type rawLine struct {
	no   int
	text string
}

// joinContinuations implements backslash line continuation up to the
// aggregate/per-physical-line length limits of §6.
func joinContinuations(r io.Reader) ([]rawLine, error) {
	scanner := bufio.NewScanner(r)
	var out []rawLine
	var cur strings.Builder
	startLine := 0
	physLine := 0

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, rawLine{no: startLine, text: cur.String()})
			cur.Reset()
		}
	}

	for scanner.Scan() {
		physLine++
		line := scanner.Text()
		if len(line) > maxPhysicalLine {
			return nil, rterrors.New(rterrors.ConfigSyntax, "physical line too long").
				WithMetadata("line", fmt.Sprint(physLine))
		}

		continued := strings.HasSuffix(line, "\\")
		if continued {
			line = strings.TrimSuffix(line, "\\")
		}

		if cur.Len() == 0 {
			startLine = physLine
		}
		cur.WriteString(line)
		if cur.Len() > maxLogicalLine {
			return nil, rterrors.New(rterrors.ConfigSyntax, "logical line too long").
				WithMetadata("line", fmt.Sprint(startLine))
		}

		if !continued {
			flush()
		} else {
			cur.WriteString(" ")
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, rterrors.Wrap(err, rterrors.ConfigUnreadable)
	}
	return out, nil
}

var tempTripletRe = regexp.MustCompile(`^(\d+),(\d+),(\d+)$`)
var pendingIDRe = regexp.MustCompile(`^(\d+)(\+)?$`)

// applyDirectives mutates cfg for each directive token. Unrecognized
// directives or malformed arguments are hard errors carrying the config
// line number, per §4.1.
// ApplyDirectives runs the same per-device directive grammar a config
// line uses against an already-registered device's config, so a drive
// database preset (pkg/drivedb) can fill in attribute flags the way a
// matching config line would have.
func ApplyDirectives(cfg *DeviceConfig, tokens []string, lineNo int) error {
	return applyDirectives(cfg, tokens, lineNo)
}

func applyDirectives(cfg *DeviceConfig, tokens []string, lineNo int) error {
	i := 0
	next := func() (string, error) {
		i++
		if i >= len(tokens) {
			return "", rterrors.New(rterrors.ConfigDirectiveInvalid, "missing argument").
				WithMetadata("line", fmt.Sprint(lineNo))
		}
		return tokens[i], nil
	}

	for ; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "-a":
			cfg.ApplyAllMonitors()
		case tok == "-H":
			cfg.SMARTCheck = true
		case tok == "-f":
			cfg.TrackUsageFailed = true
		case tok == "-p":
			cfg.TrackPrefail = true
		case tok == "-u":
			cfg.TrackUsage = true
		case tok == "-t":
			cfg.TrackPrefail = true
			cfg.TrackUsage = true
		case tok == "-l" || strings.HasPrefix(tok, "-l"):
			arg := tok[2:]
			if arg == "" {
				a, err := next()
				if err != nil {
					return err
				}
				arg = a
			}
			if err := applyLogDirective(cfg, arg, lineNo); err != nil {
				return err
			}
		case tok == "-W":
			arg, err := next()
			if err != nil {
				return err
			}
			m := tempTripletRe.FindStringSubmatch(arg)
			if m == nil {
				return rterrors.New(rterrors.ConfigDirectiveInvalid, "bad -W argument, want D,I,C").
					WithMetadata("line", fmt.Sprint(lineNo))
			}
			d, _ := strconv.Atoi(m[1])
			info, _ := strconv.Atoi(m[2])
			crit, _ := strconv.Atoi(m[3])
			cfg.TempDeltaThreshold = uint8(d)
			cfg.TempInfoThreshold = uint8(info)
			cfg.TempCritThreshold = uint8(crit)
		case tok == "-C" || tok == "-U":
			arg, err := next()
			if err != nil {
				return err
			}
			m := pendingIDRe.FindStringSubmatch(arg)
			if m == nil {
				return rterrors.New(rterrors.ConfigDirectiveInvalid, "bad pending-sector argument").
					WithMetadata("line", fmt.Sprint(lineNo))
			}
			id, _ := strconv.Atoi(m[1])
			idx := 0
			if tok == "-U" {
				idx = 1
			}
			cfg.PendingSectors[idx] = PendingSectorPolicy{AttributeID: id, IncreaseOnly: m[2] == "+"}
		case tok == "-i" || tok == "-I" || tok == "-r" || tok == "-R":
			arg, err := next()
			if err != nil {
				return err
			}
			if err := applyAttrFlag(cfg, tok, arg, lineNo); err != nil {
				return err
			}
		case tok == "-m":
			arg, err := next()
			if err != nil {
				return err
			}
			cfg.Addresses = append(cfg.Addresses, strings.Split(arg, ",")...)
		case tok == "-M":
			arg, err := next()
			if err != nil {
				return err
			}
			if arg == "exec" {
				path, err := next()
				if err != nil {
					return err
				}
				arg = "exec " + path
			}
			if err := applyMailDirective(cfg, arg, lineNo); err != nil {
				return err
			}
		case tok == "-s":
			arg, err := next()
			if err != nil {
				return err
			}
			if err := applySelfTestPattern(cfg, arg, lineNo); err != nil {
				return err
			}
		case tok == "-i.interval":
			arg, err := next()
			if err != nil {
				return err
			}
			n, err2 := strconv.Atoi(arg)
			if err2 != nil {
				return rterrors.New(rterrors.ConfigDirectiveInvalid, "bad interval").
					WithMetadata("line", fmt.Sprint(lineNo))
			}
			cfg.CheckIntervalSeconds = n
		case tok == "-d":
			arg, err := next()
			if err != nil {
				return err
			}
			transport, err2 := parseTransportArg(arg)
			if err2 != nil {
				return rterrors.New(rterrors.ConfigDirectiveInvalid, "unknown -d transport "+arg).
					WithMetadata("line", fmt.Sprint(lineNo))
			}
			cfg.Transport = transport
		case tok == "-n":
			arg, err := next()
			if err != nil {
				return err
			}
			if err := applyPowerModeGate(cfg, arg, lineNo); err != nil {
				return err
			}
		default:
			return rterrors.New(rterrors.ConfigDirectiveUnknown, "unknown directive "+tok).
				WithMetadata("line", fmt.Sprint(lineNo))
		}
	}
	return nil
}

// parseTransportArg maps a "-d" argument to a declared Transport. Only
// the transports probe.Open actually dispatches on are accepted; "sat"
// and "ata" both mean direct ATA register access, "auto" resets to the
// default detection order.
func parseTransportArg(arg string) (Transport, error) {
	base := strings.SplitN(arg, ",", 2)[0]
	switch base {
	case "ata", "sat":
		return TransportATA, nil
	case "scsi":
		return TransportSCSI, nil
	case "nvme":
		return TransportNVMe, nil
	case "auto", "":
		return TransportAuto, nil
	default:
		return "", rterrors.New(rterrors.ConfigDirectiveInvalid, "unknown -d transport "+arg)
	}
}

var powerModeNames = map[string]bool{
	"never": true, "sleep": true, "standby": true, "idle": true,
}

// applyPowerModeGate parses "-n MODE[,N][,q]".
func applyPowerModeGate(cfg *DeviceConfig, arg string, lineNo int) error {
	parts := strings.Split(arg, ",")
	mode := parts[0]
	if !powerModeNames[mode] {
		return rterrors.New(rterrors.ConfigDirectiveInvalid, "unknown -n power mode "+mode).
			WithMetadata("line", fmt.Sprint(lineNo))
	}
	gate := PowerModeGate{Mode: mode}
	for _, p := range parts[1:] {
		if p == "q" {
			gate.Quiet = true
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return rterrors.New(rterrors.ConfigDirectiveInvalid, "bad -n skip limit "+p).
				WithMetadata("line", fmt.Sprint(lineNo))
		}
		gate.SkipLimit = n
	}
	cfg.PowerGate = gate
	return nil
}

func applyLogDirective(cfg *DeviceConfig, arg string, lineNo int) error {
	parts := strings.Split(arg, ",")
	kind := parts[0]
	ns := len(parts) > 1 && parts[1] == "ns"
	switch kind {
	case "error":
		cfg.TrackErrorLog = true
	case "xerror":
		cfg.TrackXErrorLog = true
	case "selftest":
		cfg.TrackSelfTestLog = true
	case "offlinets":
		cfg.TrackOfflineStatus = true
		cfg.DisableStandbyOffline = ns
	case "selfteststs":
		cfg.TrackSelfTestStatus = true
		cfg.DisableStandbySelfTest = ns
	default:
		return rterrors.New(rterrors.ConfigDirectiveInvalid, "unknown -l log type "+kind).
			WithMetadata("line", fmt.Sprint(lineNo))
	}
	return nil
}

var attrIDRe = regexp.MustCompile(`^(\d+)(!)?$`)

// applyAttrFlag handles the four per-attribute directives. -r/-R accept a
// trailing "!" (smartd.cpp:5024-5035) that additionally marks the
// attribute's raw-value change as critical.
func applyAttrFlag(cfg *DeviceConfig, tok, arg string, lineNo int) error {
	m := attrIDRe.FindStringSubmatch(arg)
	if m == nil {
		return rterrors.New(rterrors.ConfigDirectiveInvalid, "bad attribute id for "+tok).
			WithMetadata("line", fmt.Sprint(lineNo))
	}
	id, _ := strconv.Atoi(m[1])
	if id < 0 || id > 255 {
		return rterrors.New(rterrors.ConfigDirectiveInvalid, "attribute id out of range").
			WithMetadata("line", fmt.Sprint(lineNo))
	}
	asCritical := m[2] == "!"
	switch tok {
	case "-i":
		cfg.AttrFlags[id].IgnoreFailedUsage = true
	case "-I":
		cfg.AttrFlags[id].Ignore = true
	case "-r":
		cfg.AttrFlags[id].PrintRaw = true
		if asCritical {
			cfg.AttrFlags[id].AsCritical = true
		}
	case "-R":
		cfg.AttrFlags[id].PrintRaw = true
		cfg.AttrFlags[id].TrackRaw = true
		if asCritical {
			cfg.AttrFlags[id].RawAsCritical = true
		}
	}
	return nil
}

func applyMailDirective(cfg *DeviceConfig, arg string, lineNo int) error {
	switch {
	case arg == "test":
		cfg.EmailTest = true
	case arg == "once":
		cfg.explicitFreq = FreqOnce
		cfg.EmailFreq = FreqOnce
	case arg == "always":
		cfg.explicitFreq = FreqAlways
		cfg.EmailFreq = FreqAlways
	case arg == "daily":
		cfg.explicitFreq = FreqDaily
		cfg.EmailFreq = FreqDaily
	case arg == "diminishing":
		cfg.explicitFreq = FreqDiminishing
		cfg.EmailFreq = FreqDiminishing
	case strings.HasPrefix(arg, "exec"):
		path := strings.TrimPrefix(arg, "exec")
		path = strings.TrimPrefix(path, " ")
		if path == "" {
			return rterrors.New(rterrors.ConfigDirectiveInvalid, "-M exec missing path").
				WithMetadata("line", fmt.Sprint(lineNo))
		}
		cfg.Executable = path
	default:
		cfg.Addresses = append(cfg.Addresses, arg)
	}
	return nil
}

func applySelfTestPattern(cfg *DeviceConfig, arg string, lineNo int) error {
	pat, n, l, err := CompileSelfTestPattern(arg)
	if err != nil {
		return rterrors.Wrap(err, rterrors.ConfigDirectiveInvalid).
			WithMetadata("line", fmt.Sprint(lineNo)).WithMetadata("pattern", arg)
	}
	cfg.SelfTestPattern = pat
	cfg.SelfTestRaw = arg
	cfg.OffsetN = n
	cfg.OffsetL = l
	return nil
}
