// Command smartmond is the storage-health monitoring daemon: it parses
// the config grammar of pkg/config, registers every device through
// internal/control, and runs the tick loop until a terminating signal
// or -q onecheck/showtests short-circuits it.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"

	"github.com/stratastor/smartmond/internal/control"
	"github.com/stratastor/smartmond/internal/logging"
	"github.com/stratastor/smartmond/internal/probe"
	"github.com/stratastor/smartmond/pkg/config"
	"github.com/stratastor/smartmond/pkg/drivedb"
	"github.com/stratastor/smartmond/pkg/lifecycle"
)

// version is set at build time via -ldflags; "dev" is the fallback for
// unreleased builds.
var version = "dev"

type cliFlags struct {
	configPath    string
	interval      int
	quit          string
	debug         bool
	noFork        bool
	pidFile       string
	facility      string
	traceLevel    string
	statePrefix   string
	attrlogPrefix string
	driveDBPath   string
	notifierPath  string
	runAsUser     string
	showVersion   bool
	showDirHelp   bool
	showUsage     bool
}

var quitPolicies = map[string]control.QuitPolicy{
	"nodev":         control.QuitNodev,
	"nodev0":        control.QuitNodev0,
	"nodevstartup":  control.QuitNodevStartup,
	"nodev0startup": control.QuitNodev0Startup,
	"errors":        control.QuitErrors,
	"errors,nodev0": control.QuitErrors,
	"never":         control.QuitNever,
	"onecheck":      control.QuitOnecheck,
	"showtests":     control.QuitShowtests,
}

func main() {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "smartmond",
		Short:         "Storage-health monitoring daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(run(flags))
			return nil
		},
	}

	root.Flags().StringVarP(&flags.configPath, "config", "c", "/etc/smartmond.conf", "config path or - for stdin")
	root.Flags().IntVarP(&flags.interval, "interval", "i", 0, "global check interval seconds, N >= 10")
	root.Flags().StringVarP(&flags.quit, "quit", "q", "", "exit policy")
	root.Flags().BoolVarP(&flags.debug, "debug", "d", false, "debug mode: no daemonize, log to stdout")
	root.Flags().BoolVarP(&flags.noFork, "no-fork", "n", false, "don't fork")
	root.Flags().StringVarP(&flags.pidFile, "pidfile", "p", "", "PID file path")
	root.Flags().StringVarP(&flags.facility, "facility", "l", "daemon", "syslog facility")
	root.Flags().StringVarP(&flags.traceLevel, "trace", "r", "", "driver I/O trace level (ioctl,ataioctl,scsiioctl,nvmeioctl[,N])")
	root.Flags().StringVarP(&flags.statePrefix, "state-prefix", "s", "", "state-file prefix, - disables")
	root.Flags().StringVarP(&flags.attrlogPrefix, "attrlog-prefix", "A", "", "attribute-log prefix, - disables")
	root.Flags().StringVarP(&flags.driveDBPath, "drivedb", "B", "", "replace/augment drive database: [+]<file>")
	root.Flags().StringVarP(&flags.notifierPath, "notifier", "w", "", "default notifier script")
	root.Flags().StringVarP(&flags.runAsUser, "run-as", "u", "", "run notifier as user[:group], - disables")
	root.Flags().BoolVarP(&flags.showVersion, "version", "V", false, "print version and exit")
	root.Flags().BoolVarP(&flags.showDirHelp, "directive-help", "D", false, "print directive help and exit")
	root.Flags().BoolVarP(&flags.showUsage, "usage", "?", false, "usage, same as -h")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(control.ExitBadCLI)
	}
}

func run(flags *cliFlags) int {
	if flags.showUsage {
		fmt.Println("usage: smartmond [-c file|-] [-i N] [-q policy] [-d] [-n] [-p pidfile] " +
			"[-l facility] [-r level] [-s prefix] [-A prefix] [-B [+]file] [-w path] " +
			"[-u user[:group]|-] [-D] [-V]")
		return control.ExitOK
	}
	if flags.showVersion {
		fmt.Printf("smartmond version %s\n", version)
		return control.ExitOK
	}
	if flags.showDirHelp {
		fmt.Print(config.Help())
		return control.ExitOK
	}

	quitPolicy, debug, err := resolveQuitPolicy(flags.quit, flags.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return control.ExitBadCLI
	}
	if flags.interval != 0 && flags.interval < 10 {
		fmt.Fprintln(os.Stderr, "-i requires N >= 10")
		return control.ExitBadCLI
	}

	log, err := newLogger(debug, flags.facility)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		return control.ExitBadCLI
	}

	if flags.pidFile == "" {
		flags.pidFile = "/var/run/smartmond.pid"
	}
	if err := lifecycle.EnsureSingleInstance(flags.pidFile); err != nil {
		log.Error("startup check failed", "error", err)
		return control.ExitPIDFileFailure
	}

	if !debug && !flags.noFork {
		if code, daemonized := daemonize(flags, log); daemonized {
			return code
		}
	}

	db, err := loadDriveDB(flags.driveDBPath)
	if err != nil {
		log.Error("drive database load failed", "error", err)
		return control.ExitBadConfigSyntax
	}

	opts := control.Options{
		ConfigPath:           flags.configPath,
		CheckIntervalSeconds: flags.interval,
		Quit:                 quitPolicy,
		Debug:                debug,
		PIDFilePath:          flags.pidFile,
		StatePrefix:          normalizedPrefix(flags.statePrefix),
		AttrlogPrefix:        normalizedPrefix(flags.attrlogPrefix),
		NotifierPath:         flags.notifierPath,
		RunAsUser:            flags.runAsUser,
		DriveDB:              db,
	}

	scanner := probe.NewScanner(log, opts.UseSudo, opts.SmartctlPath)
	d := control.New(opts, log, scanner)

	ctx := context.Background()

	if quitPolicy == control.QuitShowtests {
		out, err := d.ShowTests(ctx)
		if err != nil {
			log.Error("showtests failed", "error", err)
			return control.ExitNoDeviceMonitorable
		}
		fmt.Print(out)
		return control.ExitOK
	}

	return d.Run(ctx)
}

// resolveQuitPolicy validates -q and applies §6's "onecheck and showtests
// imply debug mode" rule.
func resolveQuitPolicy(raw string, debug bool) (control.QuitPolicy, bool, error) {
	if raw == "" {
		return "", debug, nil
	}
	policy, ok := quitPolicies[raw]
	if !ok {
		return "", debug, fmt.Errorf("invalid -q value %q", raw)
	}
	if policy == control.QuitOnecheck || policy == control.QuitShowtests {
		debug = true
	}
	return policy, debug, nil
}

func newLogger(debug bool, facility string) (logging.Logger, error) {
	if debug {
		return logging.NewDebug("smartmond")
	}
	return logging.NewSyslog(facility, "smartmond")
}

// normalizedPrefix treats "-" the same as an empty prefix, matching the
// "-s -"/"-A -" "disable" spelling in §6.
func normalizedPrefix(p string) string {
	if p == "-" {
		return ""
	}
	return p
}

// loadDriveDB resolves the "-B [+]<file>" flag into a compiled database,
// falling back to the built-in table when the flag is absent.
func loadDriveDB(raw string) (*drivedb.DB, error) {
	if raw == "" {
		return drivedb.Default(), nil
	}
	augment := strings.HasPrefix(raw, "+")
	path := strings.TrimPrefix(raw, "+")
	return drivedb.Load(path, augment)
}

// daemonize forks into the background via go-daemon, the same
// Context.Reborn() pattern the teacher's serve command uses, returning
// (exitCode, true) in the parent process (which should exit immediately)
// or (0, false) in the child, which continues running.
func daemonize(flags *cliFlags, log logging.Logger) (int, bool) {
	dctx := &daemon.Context{
		PidFileName: flags.pidFile,
		PidFilePerm: 0644,
		WorkDir:     "/",
		Umask:       027,
	}

	child, err := dctx.Reborn()
	if err != nil {
		log.Error("daemonize failed", "error", err)
		if strings.Contains(err.Error(), "pid") {
			return control.ExitPIDFileFailure, true
		}
		return control.ExitDaemonizeFailure, true
	}
	if child != nil {
		return control.ExitOK, true
	}
	defer dctx.Release()
	return 0, false
}
