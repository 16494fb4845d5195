// Package notarizetest fakes xcrun stapler on a command.FakeRunner.
package notarizetest

import (
	"fmt"
	"sync"

	"github.com/renkit/renotize/pkg/command"
)

// Stapler records stapled paths. Fail, when set, decides whether stapling
// a path fails with a non-retryable error.
type Stapler struct {
	mu      sync.Mutex
	stapled map[string]int
	fail    func(path string) bool
}

// InstallStapler registers `xcrun stapler` handlers on r.
func InstallStapler(r *command.FakeRunner) *Stapler {
	s := &Stapler{stapled: map[string]int{}}
	r.Handle("xcrun stapler", s.handle)
	return s
}

// FailWhen makes stapling fail for paths matching f; nil restores success.
func (s *Stapler) FailWhen(f func(path string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = f
}

// Stapled returns how often path was stapled.
func (s *Stapler) Stapled(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stapled[path]
}

func (s *Stapler) handle(args []string) (string, error) {
	if len(args) < 3 {
		return "", fmt.Errorf("usage: stapler staple|validate PATH")
	}
	action, path := args[1], args[len(args)-1]

	s.mu.Lock()
	defer s.mu.Unlock()
	switch action {
	case "staple":
		if s.fail != nil && s.fail(path) {
			return "The staple and validate action failed! Error 73.\n", &command.ExitError{Code: 73}
		}
		s.stapled[path]++
		return fmt.Sprintf("Processing: %s\nThe staple and validate action worked!\n", path), nil
	case "validate":
		if s.stapled[path] == 0 {
			return fmt.Sprintf("%s does not have a ticket stapled to it.\n", path), &command.ExitError{Code: 65}
		}
		return fmt.Sprintf("Processing: %s\nThe validate action worked!\n", path), nil
	}
	return "", fmt.Errorf("unknown stapler action %q", action)
}
