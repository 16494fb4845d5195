package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/renkit/renotize/pkg/config"
	macContext "github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/pipe"
	"github.com/sirupsen/logrus"
)

type mockPipe struct {
	name string
	err  error
	ran  *int
}

func (m mockPipe) String() string { return m.name }
func (m mockPipe) Run(ctx *macContext.Context) error {
	if m.ran != nil {
		*m.ran++
	}
	return m.err
}

type mockStage struct {
	mockPipe
}

func (m mockStage) Name() string                          { return m.name }
func (m mockStage) Output(ctx *macContext.Context) string { return "" }

func newContext() *macContext.Context {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return macContext.NewContext(context.Background(), config.Default(), logger)
}

func TestRunSuccess(t *testing.T) {
	ran := 0
	pipes := []Piper{
		mockPipe{name: "step1", ran: &ran},
		mockPipe{name: "step2", ran: &ran},
	}

	if err := Run(newContext(), pipes); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ran != 2 {
		t.Errorf("ran %d pipes, want 2", ran)
	}
}

func TestRunError(t *testing.T) {
	ran := 0
	pipes := []Piper{
		mockPipe{name: "step1"},
		mockPipe{name: "validating things", err: errors.New("something failed")},
		mockPipe{name: "step3", ran: &ran},
	}

	err := Run(newContext(), pipes)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "input error: validating things: something failed"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
	if failure.ExitCode(err) != 2 {
		t.Errorf("exit code = %d, want 2", failure.ExitCode(err))
	}
	if ran != 0 {
		t.Error("pipes after a failure must not run")
	}
}

func TestRunStageError(t *testing.T) {
	pipes := []Piper{
		mockStage{mockPipe{name: "sign-app", err: failure.New(failure.Signing, "rcodesign exited 1")}},
	}

	err := Run(newContext(), pipes)
	if want := "sign-app: signing error: rcodesign exited 1"; err == nil || err.Error() != want {
		t.Errorf("error = %v, want %q", err, want)
	}
	if failure.ExitCode(err) != 3 {
		t.Errorf("exit code = %d, want 3", failure.ExitCode(err))
	}
}

func TestRunSkip(t *testing.T) {
	ran := 0
	pipes := []Piper{
		mockPipe{name: "step1"},
		mockPipe{name: "step2", err: pipe.Skip("not needed")},
		mockPipe{name: "step3", ran: &ran},
	}

	if err := Run(newContext(), pipes); err != nil {
		t.Fatalf("Run() error = %v, want nil (skip should not fail)", err)
	}
	if ran != 1 {
		t.Error("pipe after a skip did not run")
	}
}

func TestRunValidation(t *testing.T) {
	// Empty inputs fail the first check before anything touches disk.
	err := RunValidation(newContext())
	if err == nil {
		t.Fatal("expected error with empty inputs")
	}
	if !failure.Is(err, failure.Input) {
		t.Errorf("error kind = %v, want input error", failure.KindOf(err))
	}
}
