package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"input", New(Input, "bad zip"), 2},
		{"signing", New(Signing, "verify failed"), 3},
		{"submission", New(Submission, "401"), 4},
		{"poll", New(Poll, "404"), 5},
		{"timeout", New(Timeout, "too slow"), 6},
		{"rejected", New(Rejected, "invalid"), 7},
		{"staple", New(Staple, "no ticket"), 8},
		{"packaging", New(Packaging, "exists"), 9},
		{"precondition", New(Precondition, "not accepted"), 10},
		{"cancelled", New(Cancelled, "interrupted"), 130},
		{"context canceled", fmt.Errorf("upload: %w", context.Canceled), 130},
		{"wrapped kind", fmt.Errorf("outer: %w", New(Timeout, "x")), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(Signing, "identifier mismatch")
	err := Wrap(Input, inner)
	if KindOf(err) != Signing {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), Signing)
	}
	if Wrap(Input, nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapfKeepsKindAndAddsContext(t *testing.T) {
	err := Wrapf(Input, New(Staple, "no ticket"), "stapling %s", "App.app")
	if KindOf(err) != Staple {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), Staple)
	}
	want := "staple error: stapling App.app: no ticket"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWithStage(t *testing.T) {
	err := WithStage(New(Packaging, "output exists"), "pack-dmg")
	want := "pack-dmg: packaging error: output exists"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	// An inner stage wins over an outer one.
	err = WithStage(err, "full-run")
	if !strings.HasPrefix(err.Error(), "pack-dmg:") {
		t.Errorf("Error() = %q, want stage pack-dmg kept", err.Error())
	}

	plain := WithStage(errors.New("boom"), "sign-app")
	if KindOf(plain) != Unknown {
		t.Errorf("KindOf() = %v, want Unknown", KindOf(plain))
	}
}

func TestSubmissionHint(t *testing.T) {
	id := "2efe2717-52ef-43a5-96dc-0797e4ca1041"
	err := WithSubmission(New(Timeout, "no verdict after 1h0m0s"), id)
	if !strings.Contains(err.Error(), "remains valid") || !strings.Contains(err.Error(), "renotize status -u "+id) {
		t.Errorf("Error() = %q, want resume hint", err.Error())
	}

	// Rejections do not advertise the resume hint.
	rejected := WithSubmission(New(Rejected, "Invalid"), id)
	if strings.Contains(rejected.Error(), "remains valid") {
		t.Errorf("Error() = %q, want no resume hint", rejected.Error())
	}
}

func TestKindString(t *testing.T) {
	if got := Timeout.String(); got != "timeout" {
		t.Errorf("String() = %q, want %q", got, "timeout")
	}
	if got := Kind(99).String(); got != "kind(99)" {
		t.Errorf("String() = %q, want %q", got, "kind(99)")
	}
}
