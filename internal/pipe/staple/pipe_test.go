package staple

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/config"
	macCtx "github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notarize"
	"github.com/renkit/renotize/pkg/notarize/notarizetest"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/sirupsen/logrus"
)

func newContext(cfg *config.Config, r command.Runner) *macCtx.Context {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	c := macCtx.NewContext(context.Background(), cfg, logger)
	c.Runner = r
	return c
}

func isSkip(err error) bool {
	var s skipError
	return errors.As(err, &s) && s.IsSkip()
}

func TestCheckPipe(t *testing.T) {
	negative := -1

	tests := []struct {
		name     string
		staple   config.StapleConfig
		inputs   macCtx.Inputs
		missing  string
		wantErr  bool
		wantSkip bool
		errMsg   string
	}{
		{
			name: "defaults",
		},
		{
			name:     "no staple",
			inputs:   macCtx.Inputs{NoStaple: true},
			missing:  "xcrun",
			wantErr:  true,
			wantSkip: true,
			errMsg:   "--no-staple",
		},
		{
			name:     "no wait",
			inputs:   macCtx.Inputs{NoWait: true},
			wantErr:  true,
			wantSkip: true,
			errMsg:   "not waiting for a verdict",
		},
		{
			name:    "invalid delay",
			staple:  config.StapleConfig{Delay: "10"},
			wantErr: true,
			errMsg:  "staple.delay: invalid duration",
		},
		{
			name:    "negative retries",
			staple:  config.StapleConfig{Retries: &negative},
			wantErr: true,
			errMsg:  "staple.retries must not be negative",
		},
		{
			name:    "xcrun not installed",
			missing: "xcrun",
			wantErr: true,
			errMsg:  "xcode-select --install",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := command.NewFakeRunner()
			if tt.missing != "" {
				r.Missing(tt.missing)
			}
			cfg := config.Default()
			cfg.Staple = tt.staple
			cfg.ApplyDefaults()
			c := newContext(cfg, r)
			c.Inputs = tt.inputs

			err := CheckPipe{}.Run(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckPipe.Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			if isSkip(err) != tt.wantSkip {
				t.Errorf("skip = %v, want %v", isSkip(err), tt.wantSkip)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func writeDMG(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Demo.dmg")
	if err := os.WriteFile(path, []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

var accepted = notarize.Status{State: notarize.Accepted, SubmissionID: "2efe2717-52ef-43a5-96dc-0797e4ca1041"}

func TestPipe(t *testing.T) {
	r := command.NewFakeRunner()
	s := notarizetest.InstallStapler(r)
	c := newContext(config.Default(), r)
	dmg := writeDMG(t)
	c.Artifacts.DMGPath = dmg
	c.Verdicts[sign.DiskImage] = accepted

	p := Pipe{Kind: sign.DiskImage}
	if p.Name() != "staple-dmg" {
		t.Errorf("Name() = %q", p.Name())
	}
	if err := p.Run(c); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if s.Stapled(dmg) != 1 {
		t.Errorf("Stapled() = %d, want 1", s.Stapled(dmg))
	}
	if r.CallCount("spctl") != 0 {
		t.Error("assessment ran although disabled")
	}
}

func TestPipeNotAccepted(t *testing.T) {
	r := command.NewFakeRunner()
	s := notarizetest.InstallStapler(r)
	c := newContext(config.Default(), r)
	dmg := writeDMG(t)
	c.Artifacts.DMGPath = dmg

	err := Pipe{Kind: sign.DiskImage}.Run(c)
	if !failure.Is(err, failure.Precondition) {
		t.Fatalf("Run() error = %v, want precondition error", err)
	}
	if s.Stapled(dmg) != 0 {
		t.Error("stapled without an accepted verdict")
	}
}

func TestPipeAssess(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		err     error
		wantErr string
	}{
		{name: "accepted", output: "Demo.dmg: accepted\nsource=Notarized Developer ID\n"},
		{name: "rejected", output: "Demo.dmg: rejected\n", err: &command.ExitError{Code: 3}, wantErr: "Gatekeeper rejected Demo.dmg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := command.NewFakeRunner()
			notarizetest.InstallStapler(r)
			r.Handle("spctl", func(args []string) (string, error) { return tt.output, tt.err })

			cfg := config.Default()
			cfg.Staple.Assess = true
			c := newContext(cfg, r)
			c.Artifacts.DMGPath = writeDMG(t)
			c.Verdicts[sign.DiskImage] = accepted

			err := Pipe{Kind: sign.DiskImage}.Run(c)
			if r.CallCount("spctl") != 1 {
				t.Errorf("spctl ran %d times, want 1", r.CallCount("spctl"))
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Run() error = %v", err)
				}
				return
			}
			if !failure.Is(err, failure.Staple) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Run() error = %v, want staple error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPipeSkipped(t *testing.T) {
	r := command.NewFakeRunner()
	c := newContext(config.Default(), r)
	c.Inputs.NoStaple = true

	if err := (Pipe{Kind: sign.App}).Run(c); !isSkip(err) {
		t.Fatalf("Run() error = %v, want skip", err)
	}
	if len(r.Calls()) != 0 {
		t.Error("skipped stage invoked a tool")
	}
}

func TestRestore(t *testing.T) {
	c := newContext(config.Default(), command.NewFakeRunner())
	dmg := writeDMG(t)
	p := Pipe{Kind: sign.DiskImage}

	if err := p.Restore(c, &checkpoint.Stage{Output: dmg + ".missing"}); err == nil {
		t.Error("Restore() accepted a missing artifact")
	}
	if err := p.Restore(c, &checkpoint.Stage{Output: dmg}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if c.Artifacts.DMGPath != dmg {
		t.Errorf("DMGPath = %q, want %q", c.Artifacts.DMGPath, dmg)
	}
}
