package sign

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/renkit/renotize/pkg/bundle/bundletest"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/config"
	macCtx "github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/credential/credentialtest"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/renkit/renotize/pkg/sign/signtest"
	"github.com/sirupsen/logrus"
)

func newContext(cfg *config.Config, r command.Runner) *macCtx.Context {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	c := macCtx.NewContext(context.Background(), cfg, logger)
	c.Runner = r
	return c
}

func TestCheckPipe(t *testing.T) {
	dir := t.TempDir()
	files := credentialtest.WriteIdentity(t, dir, credentialtest.CertOptions{})
	expired := credentialtest.WriteIdentity(t, t.TempDir(), credentialtest.CertOptions{
		NotBefore: time.Now().Add(-48 * time.Hour),
		NotAfter:  time.Now().Add(-24 * time.Hour),
	})

	tests := []struct {
		name    string
		sign    config.SignConfig
		missing string
		wantErr bool
		kind    failure.Kind
		errMsg  string
	}{
		{
			name: "key and certificate",
			sign: config.SignConfig{KeyFile: files.KeyFile, CertFile: files.CertFile},
		},
		{
			name:    "missing key file",
			sign:    config.SignConfig{CertFile: files.CertFile},
			wantErr: true,
			kind:    failure.Input,
			errMsg:  "sign.key_file (-k) is required",
		},
		{
			name:    "missing certificate",
			sign:    config.SignConfig{KeyFile: files.KeyFile},
			wantErr: true,
			kind:    failure.Input,
			errMsg:  "sign.cert_file (-c) is required",
		},
		{
			name:    "unresolved password",
			sign:    config.SignConfig{KeyFile: files.KeyFile, CertFile: files.CertFile, KeyPassword: "env(RENOTIZE_TEST_UNSET_PASSWORD)"},
			wantErr: true,
			errMsg:  "RENOTIZE_TEST_UNSET_PASSWORD is not set",
		},
		{
			name:    "expired certificate",
			sign:    config.SignConfig{KeyFile: expired.KeyFile, CertFile: expired.CertFile},
			wantErr: true,
			kind:    failure.Input,
			errMsg:  "expired",
		},
		{
			name:    "missing entitlements",
			sign:    config.SignConfig{KeyFile: files.KeyFile, CertFile: files.CertFile, Entitlements: filepath.Join(dir, "app.entitlements")},
			wantErr: true,
			errMsg:  "sign.entitlements",
		},
		{
			name:    "rcodesign not installed",
			sign:    config.SignConfig{KeyFile: files.KeyFile, CertFile: files.CertFile},
			missing: "rcodesign",
			wantErr: true,
			kind:    failure.Precondition,
			errMsg:  "cargo install apple-codesign",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := command.NewFakeRunner()
			if tt.missing != "" {
				r.Missing(tt.missing)
			}
			cfg := config.Default()
			cfg.Sign = tt.sign
			c := newContext(cfg, r)

			err := CheckPipe{}.Run(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckPipe.Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if c.Identity == nil {
					t.Error("identity was not loaded")
				}
				return
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.errMsg)
			}
			if tt.kind != failure.Unknown && !failure.Is(err, tt.kind) {
				t.Errorf("kind = %v, want %v", failure.KindOf(err), tt.kind)
			}
		})
	}
}

func TestCheckPipeKeepsLoadedIdentity(t *testing.T) {
	c := newContext(config.Default(), command.NewFakeRunner())
	id := credentialtest.LoadIdentity(t, t.TempDir())
	c.Identity = id

	if err := (CheckPipe{}).Run(c); err != nil {
		t.Fatalf("CheckPipe.Run() error = %v", err)
	}
	if c.Identity != id {
		t.Error("preloaded identity was replaced")
	}
}

func TestPipe(t *testing.T) {
	dir := t.TempDir()
	app := bundletest.WriteApp(t, dir, "Demo.app", bundletest.Info{ID: "com.example.demo", Executable: "Demo", Name: "Demo"})

	r := command.NewFakeRunner()
	rc := signtest.Install(r)
	c := newContext(config.Default(), r)
	c.Identity = credentialtest.LoadIdentity(t, dir)
	c.Artifacts.AppPath = app

	p := Pipe{Kind: sign.App}
	if p.Name() != "sign-app" {
		t.Errorf("Name() = %q", p.Name())
	}
	if err := p.Run(c); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rc.Signatures(app) != 1 {
		t.Errorf("Signatures() = %d, want 1", rc.Signatures(app))
	}
	if p.Output(c) != app {
		t.Errorf("Output() = %q, want %q", p.Output(c), app)
	}
}

func TestPipeNoArtifact(t *testing.T) {
	c := newContext(config.Default(), command.NewFakeRunner())

	err := Pipe{Kind: sign.DiskImage}.Run(c)
	if !failure.Is(err, failure.Precondition) {
		t.Fatalf("Run() error = %v, want precondition error", err)
	}
	if !strings.Contains(err.Error(), "no dmg found to sign") {
		t.Errorf("error = %v", err)
	}
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	c := newContext(config.Default(), command.NewFakeRunner())
	p := Pipe{Kind: sign.App}

	if err := p.Restore(c, &checkpoint.Stage{Output: filepath.Join(dir, "Gone.app")}); err == nil {
		t.Error("Restore() accepted a missing artifact")
	}
	if err := p.Restore(c, &checkpoint.Stage{Output: dir}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if c.Artifacts.AppPath != dir {
		t.Errorf("AppPath = %q, want %q", c.Artifacts.AppPath, dir)
	}
}
