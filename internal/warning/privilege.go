package warning

import (
	"os/user"
	"strconv"
	"strings"
	"syscall"
)

// resolveCredential parses the "-u user[:group]" daemon flag into a
// syscall.Credential for cmd.SysProcAttr. "" and "-" both mean "don't
// drop privileges" (nil, nil).
func resolveCredential(spec string) (*syscall.Credential, error) {
	if spec == "" || spec == "-" {
		return nil, nil
	}

	userName, groupName, hasGroup := strings.Cut(spec, ":")

	u, err := user.Lookup(userName)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, err
	}

	if hasGroup {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return nil, err
		}
		gid, err = strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return nil, err
		}
	}

	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}
