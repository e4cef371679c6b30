package warning

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"syscall"
)

// execRunner is the real notifierRunner, invoking the configured
// executable with an explicit environment and a bounded combined-output
// read, per §4.6's "bounded notifier pipe" requirement: the first
// maxOutputCapture bytes are kept, everything up to maxOutputDrain is
// drained and discarded, and the pipe is then closed out from under a
// child that keeps writing past that.
type execRunner struct {
	runAsUser string // "-u user[:group]", "" or "-" = don't drop privileges
}

func (r execRunner) Run(ctx context.Context, executable string, env []string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, executable)
	cmd.Env = env

	cred, err := resolveCredential(r.runAsUser)
	if err != nil {
		return -1, nil, err
	}
	if cred != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, nil, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return -1, nil, err
	}

	var captured bytes.Buffer
	drained, _ := io.CopyN(&captured, stdout, maxOutputDrain)
	if drained == maxOutputDrain {
		stdout.Close()
	}

	err = cmd.Wait()
	output := captured.Bytes()
	if len(output) > maxOutputCapture {
		output = output[:maxOutputCapture]
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), output, nil
		}
		return -1, output, err
	}
	return 0, output, nil
}
