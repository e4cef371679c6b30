// Package command runs external programs (smartctl, a notifier script)
// with the validation and timeout discipline the daemon requires of any
// subprocess it spawns.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/logging"
)

// dangerousChars blocks shell metacharacters from ever reaching exec,
// since arguments here are never passed through a shell.
const dangerousChars = "&|><$`\\[];{}"

const defaultTimeout = 30 * time.Second

// Executor runs commands with a configured timeout, optionally under a
// different user via sudo. The NewCommandExecutor(useSudo)/.Timeout/
// ExecuteWithCombinedOutput contract is used throughout the daemon even
// though it does not appear as a concrete implementation anywhere in the
// retrieval pack (see DESIGN.md) -- only the call-site shape does.
type Executor struct {
	Timeout time.Duration
	useSudo bool
	log     logging.Logger
}

// NewExecutor returns an Executor with the default timeout.
func NewExecutor(log logging.Logger, useSudo bool) *Executor {
	return &Executor{Timeout: defaultTimeout, useSudo: useSudo, log: log}
}

// ExecuteWithCombinedOutput runs name with args, honoring ctx and e.Timeout,
// and returns the combined stdout+stderr.
func (e *Executor) ExecuteWithCombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.useSudo {
		args = append([]string{name}, args...)
		name = "/usr/bin/sudo"
	}
	return ExecCommand(ctx, e.log, e.Timeout, name, args...)
}

// ExecCommand executes a system command with security validation and a
// bounded timeout, logging the invocation and any failure.
func ExecCommand(ctx context.Context, log logging.Logger, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if err := validateCommand(name, args); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmdString := name + " " + strings.Join(args, " ")
	log.Debug("executing command", "cmd", cmdString)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = []string{}

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Error("command exited non-zero", "cmd", cmdString, "exit_code", exitErr.ExitCode())
			return output, rterrors.Wrap(err, rterrors.CommandExecution).
				WithMetadata("command", cmdString).
				WithMetadata("exit_code", fmt.Sprintf("%d", exitErr.ExitCode())).
				WithMetadata("output", string(output))
		}
		log.Error("command execution failed", "cmd", cmdString, "err", err)
		return output, rterrors.Wrap(err, rterrors.CommandExecution).
			WithMetadata("command", cmdString)
	}

	return output, nil
}

func validateCommand(name string, args []string) error {
	if name == "" {
		return rterrors.New(rterrors.CommandInvalidInput, "empty command")
	}
	if !strings.HasPrefix(name, "/") && strings.ContainsAny(name, "/\\") {
		return rterrors.New(rterrors.CommandInvalidInput, "relative paths are not allowed for commands")
	}
	if strings.ContainsAny(name, dangerousChars) {
		return rterrors.New(rterrors.CommandInvalidInput, "command contains invalid characters")
	}
	for _, arg := range args {
		if strings.ContainsAny(arg, dangerousChars) {
			return rterrors.New(rterrors.CommandInvalidInput, "argument contains invalid characters")
		}
		if strings.Contains(arg, "..") {
			return rterrors.New(rterrors.CommandInvalidInput, "path traversal not allowed")
		}
	}
	if len(args) > 64 {
		return rterrors.New(rterrors.CommandInvalidInput, "too many arguments")
	}
	return nil
}
