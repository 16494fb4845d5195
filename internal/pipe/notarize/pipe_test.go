package notarize

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/renkit/renotize/pkg/checkpoint"
	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/config"
	macCtx "github.com/renkit/renotize/pkg/context"
	"github.com/renkit/renotize/pkg/credential/credentialtest"
	"github.com/renkit/renotize/pkg/failure"
	"github.com/renkit/renotize/pkg/notarize"
	"github.com/renkit/renotize/pkg/notary"
	"github.com/renkit/renotize/pkg/notary/notarytest"
	"github.com/renkit/renotize/pkg/sign"
	"github.com/sirupsen/logrus"
)

func newContext(cfg *config.Config) *macCtx.Context {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	c := macCtx.NewContext(context.Background(), cfg, logger)
	r := command.NewFakeRunner()
	r.Missing("ditto")
	c.Runner = r
	c.Clock = fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return c
}

func TestCheckPipe(t *testing.T) {
	dir := t.TempDir()
	key := credentialtest.WriteAPIKey(t, dir)
	jsonKey := filepath.Join(dir, "api-key.json")
	p8 := credentialtest.WriteKey(t, filepath.Join(dir, "AuthKey_"+credentialtest.KeyID+".p8"), credentialtest.NewKey(t))
	negative := -1

	tests := []struct {
		name     string
		notarize config.NotarizeConfig
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "JSON key file",
			notarize: config.NotarizeConfig{APIKeyFile: jsonKey},
		},
		{
			name:     "p8 key with IDs",
			notarize: config.NotarizeConfig{APIKeyFile: p8, IssuerID: key.IssuerID, KeyID: key.KeyID},
		},
		{
			name:    "missing key file",
			wantErr: true,
			errMsg:  "notarize.api_key_file (-k) is required",
		},
		{
			name:     "p8 key without issuer",
			notarize: config.NotarizeConfig{APIKeyFile: p8, KeyID: key.KeyID},
			wantErr:  true,
			errMsg:   "notarize.issuer_id is required",
		},
		{
			name:     "p8 key with unresolved key ID",
			notarize: config.NotarizeConfig{APIKeyFile: p8, IssuerID: key.IssuerID, KeyID: "env(RENOTIZE_TEST_UNSET_KEY_ID)"},
			wantErr:  true,
			errMsg:   "RENOTIZE_TEST_UNSET_KEY_ID is not set",
		},
		{
			name:     "invalid poll interval",
			notarize: config.NotarizeConfig{APIKeyFile: jsonKey, PollInterval: "soon"},
			wantErr:  true,
			errMsg:   "notarize.poll_interval: invalid duration",
		},
		{
			name:     "zero max wait",
			notarize: config.NotarizeConfig{APIKeyFile: jsonKey, MaxWait: "0s"},
			wantErr:  true,
			errMsg:   "notarize.max_wait must be positive",
		},
		{
			name:     "negative query retries",
			notarize: config.NotarizeConfig{APIKeyFile: jsonKey, QueryRetries: &negative},
			wantErr:  true,
			errMsg:   "notarize.query_retries must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Notarize = tt.notarize
			cfg.ApplyDefaults()
			c := newContext(cfg)

			err := CheckPipe{}.Run(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckPipe.Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if c.APIKey == nil || c.APIKey.KeyID != key.KeyID {
					t.Errorf("APIKey = %+v", c.APIKey)
				}
				return
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

// setup returns a context with an artifact of kind ready for notarization
// against a fake service.
func setup(t *testing.T, kind sign.Kind) (*macCtx.Context, *notarytest.Server) {
	t.Helper()
	dir := t.TempDir()
	srv := notarytest.NewServer(t, credentialtest.WriteAPIKey(t, dir))

	c := newContext(config.Default())
	c.Notary = srv.NewClient(t)
	c.State = checkpoint.New(filepath.Join(dir, "Demo.zip"), "com.example.demo", dir, []string{"notarize-" + kind.String()}, c.Now())

	if kind == sign.DiskImage {
		path := filepath.Join(dir, "Demo.dmg")
		writeFile(t, path)
		c.Artifacts.DMGPath = path
	} else {
		app := filepath.Join(dir, "Demo.app")
		writeFile(t, filepath.Join(app, "Contents", "Info.plist"))
		c.Artifacts.AppPath = app
	}
	return c, srv
}

func TestPipeAccepted(t *testing.T) {
	c, srv := setup(t, sign.DiskImage)
	p := Pipe{Kind: sign.DiskImage}

	if err := p.Run(c); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	records := srv.Records()
	if len(records) != 1 || records[0].Name != "Demo.dmg" {
		t.Fatalf("records = %+v", records)
	}
	rec := c.State.Stage(p.Name())
	if rec.SubmissionID != records[0].ID || rec.SubmittedAt == nil {
		t.Errorf("record = %+v, want submission %s", rec, records[0].ID)
	}
	if v := c.Verdicts[sign.DiskImage]; v.State != notarize.Accepted || v.SubmissionID != records[0].ID {
		t.Errorf("verdict = %+v", v)
	}
}

func TestPipeAppIsZipped(t *testing.T) {
	c, srv := setup(t, sign.App)

	if err := (Pipe{Kind: sign.App}).Run(c); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if records := srv.Records(); len(records) != 1 || records[0].Name != "Demo.zip" {
		t.Fatalf("records = %+v", records)
	}
}

func TestPipeNoWait(t *testing.T) {
	c, srv := setup(t, sign.DiskImage)
	c.Inputs.NoWait = true

	if err := (Pipe{Kind: sign.DiskImage}).Run(c); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	records := srv.Records()
	if len(records) != 1 || records[0].Queries != 0 {
		t.Errorf("records = %+v, want one unqueried submission", records)
	}
	if v := c.Verdicts[sign.DiskImage]; v.State != notarize.InProgress {
		t.Errorf("verdict = %+v, want in progress", v)
	}
}

func TestPipeResumesRecordedSubmission(t *testing.T) {
	c, srv := setup(t, sign.DiskImage)
	id := srv.Add("Demo.dmg")
	c.State.Stage("notarize-dmg").Submitted(id, c.Now().Add(-time.Minute))

	if err := (Pipe{Kind: sign.DiskImage}).Run(c); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	records := srv.Records()
	if len(records) != 1 || records[0].Queries != 1 {
		t.Errorf("records = %+v, want the recorded submission queried once", records)
	}
	if v := c.Verdicts[sign.DiskImage]; v.SubmissionID != id {
		t.Errorf("verdict = %+v, want submission %s", v, id)
	}
}

func TestPipeRejected(t *testing.T) {
	c, srv := setup(t, sign.DiskImage)
	srv.SetVerdict(func(notarytest.Record, int) string { return notary.StatusInvalid })

	c.State.Stage("sign-dmg").Complete(c.Artifacts.DMGPath, "digest", c.Now())

	err := Pipe{Kind: sign.DiskImage}.Run(c)
	if !failure.Is(err, failure.Rejected) {
		t.Fatalf("Run() error = %v, want rejected", err)
	}
	if !strings.Contains(err.Error(), "developer log: https://logs.example.com/") {
		t.Errorf("error = %v, want developer log URL", err)
	}
	if rec := c.State.Stage("notarize-dmg"); rec.SubmissionID != "" || rec.SubmittedAt != nil {
		t.Errorf("record = %+v, want submission cleared", rec)
	}
	if rec := c.State.Stage("sign-dmg"); rec.Status != checkpoint.StatusPending {
		t.Errorf("sign-dmg = %+v, want pending so a rerun signs again", rec)
	}
}

func TestPipeNoArtifact(t *testing.T) {
	c := newContext(config.Default())

	err := Pipe{Kind: sign.App}.Run(c)
	if !failure.Is(err, failure.Precondition) {
		t.Fatalf("Run() error = %v, want precondition error", err)
	}
}

func TestRestore(t *testing.T) {
	c, _ := setup(t, sign.DiskImage)
	p := Pipe{Kind: sign.DiskImage}
	path := c.Artifacts.DMGPath
	c.Artifacts.DMGPath = ""

	if err := p.Restore(c, &checkpoint.Stage{Output: path}); err == nil {
		t.Error("Restore() accepted a record without a submission")
	}

	id := "2efe2717-52ef-43a5-96dc-0797e4ca1041"
	if err := p.Restore(c, &checkpoint.Stage{Output: path, SubmissionID: id}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if c.Artifacts.DMGPath != path {
		t.Errorf("DMGPath = %q, want %q", c.Artifacts.DMGPath, path)
	}
	if v := c.Verdicts[sign.DiskImage]; v.State != notarize.Accepted || v.SubmissionID != id {
		t.Errorf("verdict = %+v", v)
	}
}
