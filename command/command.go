// Package command runs the external science applications.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Runner executes a command and returns its combined stdout and stderr.
// An empty dir runs the command in the worker's current directory.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// Error is returned when a command could not run to a zero exit code.
type Error struct {
	Command  string
	ExitCode int
	Signaled bool
	Output   string
}

func (err *Error) Error() string {
	var message string
	switch {
	case err.Signaled:
		message = fmt.Sprintf("Application terminated by signal [%s]", err.Command)
	case err.ExitCode < 0:
		message = fmt.Sprintf("Application failed to execute [%s]", err.Command)
	default:
		message = fmt.Sprintf("Application [%s] returned error code [%d]", err.Command, err.ExitCode)
	}
	if len(err.Output) > 0 {
		message += " Stdout/Stderr is: " + err.Output
	}
	return message
}

// Line renders a command the way it is logged
func Line(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Logger *zap.Logger
	// Env, when set, replaces the inherited environment
	Env []string
}

// Run implements Runner
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	line := Line(name, args...)
	if r.Logger != nil {
		r.Logger.Info("Running command", zap.String("cmd", line), zap.String("dir", dir))
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	out := strings.TrimRight(output.String(), "\n")
	if err == nil {
		return out, nil
	}

	cmdErr := &Error{Command: line, ExitCode: -1, Output: out}
	if exitErr, ok := err.(*exec.ExitError); ok {
		cmdErr.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			cmdErr.Signaled = true
		}
	} else if cmdErr.Output == "" {
		cmdErr.Output = err.Error()
	}
	return out, errors.WithStack(cmdErr)
}

// IsError reports whether err came from a failed command
func IsError(err error) bool {
	var cmdErr *Error
	return errors.As(err, &cmdErr)
}
