package command

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
)

// Handler answers a faked invocation.
type Handler func(args []string) (string, error)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

// FakeRunner is a Runner for tests. Handlers are keyed by the tool's base
// name, optionally followed by its first argument ("hdiutil create"); the
// more specific key wins.
type FakeRunner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	missing  map[string]bool
	calls    []Call
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		handlers: map[string]Handler{},
		missing:  map[string]bool{},
	}
}

// Handle registers h for key.
func (f *FakeRunner) Handle(key string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = h
}

// Missing makes LookPath fail for the named tool.
func (f *FakeRunner) Missing(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := filepath.Base(name)
	if f.missing[base] {
		return "", &exec.Error{Name: base, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + base, nil
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	base := filepath.Base(name)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: base, Args: append([]string(nil), args...)})
	var h Handler
	if len(args) > 0 {
		h = f.handlers[base+" "+args[0]]
	}
	if h == nil {
		h = f.handlers[base]
	}
	missing := f.missing[base]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if missing {
		return "", &exec.Error{Name: base, Err: exec.ErrNotFound}
	}
	if h == nil {
		return "", fmt.Errorf("unexpected command: %s", Line(base, args...))
	}
	return h(args)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many invocations matched key.
func (f *FakeRunner) CallCount(key string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Name == key || (len(c.Args) > 0 && c.Name+" "+c.Args[0] == key) {
			n++
		}
	}
	return n
}
