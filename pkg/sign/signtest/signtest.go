// Package signtest fakes rcodesign on a command.FakeRunner.
package signtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/renkit/renotize/pkg/bundle"
	"github.com/renkit/renotize/pkg/command"
)

// Rcodesign tracks which paths the fake has signed.
type Rcodesign struct {
	mu     sync.Mutex
	signed map[string]int
	// Identifier, when set, is reported instead of the bundle identifier.
	Identifier string
}

// Install registers the fake's handlers on r.
func Install(r *command.FakeRunner) *Rcodesign {
	f := &Rcodesign{signed: map[string]int{}}
	r.Handle("rcodesign sign", f.sign)
	r.Handle("rcodesign verify", f.verify)
	r.Handle("rcodesign print-signature-info", f.info)
	return f
}

// Signatures returns how many times path was signed.
func (f *Rcodesign) Signatures(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signed[path]
}

func (f *Rcodesign) sign(args []string) (string, error) {
	path := args[len(args)-1]
	f.mu.Lock()
	f.signed[path]++
	f.mu.Unlock()
	return fmt.Sprintf("signing %s in place\n", path), nil
}

func (f *Rcodesign) verify(args []string) (string, error) {
	path := args[len(args)-1]
	if f.Signatures(path) == 0 {
		return "no signature data found\n", &command.ExitError{Code: 1}
	}
	return "signature verification OK\n", nil
}

func (f *Rcodesign) info(args []string) (string, error) {
	path := args[len(args)-1]
	id := f.Identifier
	if id == "" {
		if strings.HasSuffix(path, ".app") {
			b, err := bundle.Read(path)
			if err != nil {
				return "", err
			}
			id = b.ID
		} else {
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}
	return fmt.Sprintf(`- path: Contents/MacOS/main
  entity:
    mach_o:
      signature:
        code_directory:
          version: '0x20500'
          flags: CodeSignatureFlags(RUNTIME)
          identifier: %s
          team_name: ABCDE12345
`, id), nil
}
