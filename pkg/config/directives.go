package config

import "strings"

// Directive describes one per-device config token for the "-D" help
// listing. It mirrors applyDirectives' switch by hand rather than
// driving it, since turning that switch into a registry-dispatched table
// is a larger refactor than this listing needs -- see DESIGN.md.
type Directive struct {
	Token string
	Arg   string
	Help  string
}

// Directives is the full per-device directive table, in the order
// smartd.cpp's own "-D" output lists them.
var Directives = []Directive{
	{"-a", "", "enable all monitoring flags (equivalent to -H -f -t -l error -l xerror -l selftest -l offlinets -l selfteststs, plus info/critical temperature limits of 50/60 where none are set; no pending-sector attributes)"},
	{"-H", "", "monitor SMART overall-health self-assessment"},
	{"-f", "", "report failure of any usage attribute"},
	{"-p", "", "track prefailure attributes; threshold failures reported under -f use the Prefailure message"},
	{"-u", "", "track usage attributes (a separate flag from -f)"},
	{"-t", "", "equivalent to -p -u"},
	{"-l", "TYPE", "monitor one of: error, xerror, selftest, offlinets, selfteststs log growth"},
	{"-W", "D,I,C", "monitor temperature: report a D-degree change, and warn at/above I (info) or C (critical)"},
	{"-C", "ID[+]", "monitor current pending sector count for attribute ID; '+' means increase-only"},
	{"-U", "ID[+]", "monitor offline uncorrectable sector count for attribute ID; '+' means increase-only"},
	{"-i", "ID", "ignore failure of usage attribute ID (no usage-failure mail)"},
	{"-I", "ID", "ignore attribute ID entirely for tracking purposes"},
	{"-r", "ID[!]", "also report attribute ID's raw value on change; '!' treats the change as critical"},
	{"-R", "ID[!]", "track and report attribute ID's raw value on change; '!' treats the change as critical"},
	{"-m", "ADDR[,ADDR...]", "notifier addresses/recipients for this device"},
	{"-M", "exec PATH | test | once | always | daily | diminishing", "notifier executable or send-frequency policy"},
	{"-s", "REGEX[:NNN[-LLL]]", "scheduled self-test pattern, optional staggering offset"},
	{"-d", "auto|ata|sat|scsi|nvme", "declare this device's transport instead of auto-detecting"},
	{"-n", "never|sleep|standby|idle[,N][,q]", "skip checks while the device is at or below this power state"},
}

// Help renders the full directive table as smartd.cpp's "-D" option does:
// one line per directive, token and argument form first.
func Help() string {
	var b strings.Builder
	for _, d := range Directives {
		b.WriteString(d.Token)
		if d.Arg != "" {
			b.WriteString(" ")
			b.WriteString(d.Arg)
		}
		b.WriteString("\n    ")
		b.WriteString(d.Help)
		b.WriteString("\n")
	}
	return b.String()
}
