// Package command runs the external tools the pipeline delegates to
// (rcodesign, xcrun, hdiutil, ditto) behind an injectable seam.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner locates and runs external tools.
type Runner interface {
	// LookPath resolves a tool name to an executable path.
	LookPath(name string) (string, error)
	// Run executes the tool and returns its combined stdout and stderr.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

func (Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (Exec) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() != nil {
		return string(out), ctx.Err()
	}
	return string(out), err
}

// Require checks that a tool is available, returning an actionable error
// built from hint when it is not.
func Require(r Runner, name, hint string) error {
	if _, err := r.LookPath(name); err != nil {
		if hint == "" {
			return fmt.Errorf("%s not found in PATH", filepath.Base(name))
		}
		return fmt.Errorf("%s not found — %s", filepath.Base(name), hint)
	}
	return nil
}

// ExitCode extracts the exit status of a failed command, or -1.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	var fakeErr *ExitError
	if errors.As(err, &fakeErr) {
		return fakeErr.Code
	}
	return -1
}

// ExitError is a non-zero exit reported by a FakeRunner handler.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// Line renders a command line for logging.
func Line(name string, args ...string) string {
	return strings.TrimSpace(filepath.Base(name) + " " + strings.Join(args, " "))
}
