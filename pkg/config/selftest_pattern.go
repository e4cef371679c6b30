package config

import (
	"regexp"
	"strconv"
	"strings"

	rterrors "github.com/stratastor/smartmond/internal/errors"
)

var offsetSuffixRe = regexp.MustCompile(`:(\d+)(?:-(\d+))?$`)

// CompileSelfTestPattern compiles the regex half of a -s directive's
// argument (matched against canonical T/MM/DD/d/HH strings, per §4.4)
// and extracts the trailing :NNN[-LLL] offset suffix, if present, per
// §9's guidance to pre-parse the suffix once at config load rather than
// on every tick.
func CompileSelfTestPattern(raw string) (pat *regexp.Regexp, offsetN, offsetL int, err error) {
	body := raw
	if m := offsetSuffixRe.FindStringSubmatch(raw); m != nil {
		body = strings.TrimSuffix(raw, m[0])
		offsetN, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			offsetL, _ = strconv.Atoi(m[2])
		}
	}

	pat, err = regexp.Compile("^" + body + "$")
	if err != nil {
		return nil, 0, 0, rterrors.Wrap(err, rterrors.SelfTestPatternInvalid).WithMetadata("pattern", raw)
	}
	return pat, offsetN, offsetL, nil
}
