package bundle

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/renkit/renotize/pkg/failure"
)

// Unpack extracts the single .app in zipPath into outputDir and checks
// that its identifier matches expectedID. When anything fails after
// extraction began, the extracted top-level entries are removed again.
func Unpack(ctx context.Context, zipPath, outputDir, expectedID string) (*Bundle, error) {
	if err := ValidID(expectedID); err != nil {
		return nil, failure.Wrap(failure.Input, err)
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "input archive")
	}
	if !info.Mode().IsRegular() {
		return nil, failure.New(failure.Input, "input archive %s is not a regular file", zipPath)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to open %s", zipPath)
	}
	defer func() { _ = r.Close() }()

	appName, topLevel, err := findApp(r.File)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to create output directory")
	}

	// Replace the bundle an earlier run extracted, but never touch other
	// entries that were already present.
	if err := os.RemoveAll(filepath.Join(outputDir, appName)); err != nil {
		return nil, failure.Wrapf(failure.Input, err, "failed to clear %s", appName)
	}
	var created []string
	for _, name := range topLevel {
		if _, err := os.Lstat(filepath.Join(outputDir, name)); os.IsNotExist(err) {
			created = append(created, name)
		}
	}
	cleanup := func() {
		for _, name := range created {
			_ = os.RemoveAll(filepath.Join(outputDir, name))
		}
	}

	if err := extract(ctx, r.File, outputDir); err != nil {
		cleanup()
		return nil, err
	}

	b, err := Open(filepath.Join(outputDir, appName))
	if err != nil {
		cleanup()
		return nil, err
	}
	if b.ID != expectedID {
		cleanup()
		return nil, failure.New(failure.Input, "bundle identifier %q does not match expected %q", b.ID, expectedID)
	}
	return b, nil
}

func ignored(name string) bool {
	first := strings.SplitN(name, "/", 2)[0]
	return first == "__MACOSX" || first == ".DS_Store"
}

// findApp returns the single top-level .app in the archive together with
// every top-level name the extraction will create.
func findApp(files []*zip.File) (string, []string, error) {
	top := map[string]bool{}
	var apps []string
	for _, f := range files {
		if ignored(f.Name) {
			continue
		}
		name := strings.TrimPrefix(f.Name, "./")
		if name == "" {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return "", nil, failure.New(failure.Input, "malformed archive: entry %q escapes the output directory", f.Name)
		}
		first := strings.SplitN(name, "/", 2)[0]
		if !top[first] {
			top[first] = true
			isDir := strings.Contains(name, "/") || f.FileInfo().IsDir()
			if strings.HasSuffix(first, ".app") && isDir {
				apps = append(apps, first)
			}
		}
	}

	names := make([]string, 0, len(top))
	for name := range top {
		names = append(names, name)
	}
	sort.Strings(names)

	switch len(apps) {
	case 0:
		return "", nil, failure.New(failure.Input, "archive contains no top-level .app bundle")
	case 1:
		return apps[0], names, nil
	default:
		sort.Strings(apps)
		return "", nil, failure.New(failure.Input, "archive contains %d top-level .app bundles (%s), expected exactly one",
			len(apps), strings.Join(apps, ", "))
	}
}

func extract(ctx context.Context, files []*zip.File, outputDir string) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return failure.Cancel(err)
		}
		if ignored(f.Name) {
			continue
		}
		if err := extractFile(f, outputDir); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, outputDir string) error {
	name := strings.TrimPrefix(f.Name, "./")
	if name == "" {
		return nil
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return failure.New(failure.Input, "malformed archive: entry %q escapes the output directory", f.Name)
	}
	if err := checkNoSymlinks(outputDir, name); err != nil {
		return err
	}
	target := filepath.Join(outputDir, filepath.FromSlash(name))
	mode := f.Mode()

	switch {
	case mode.IsDir():
		return mkdir(target, mode.Perm())
	case mode&os.ModeSymlink != 0:
		return extractSymlink(f, name, target)
	default:
		if err := mkdir(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return extractRegular(f, target, mode.Perm())
	}
}

func mkdir(dir string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0755
	}
	if err := os.MkdirAll(dir, perm|0700); err != nil {
		return failure.Wrapf(failure.Input, err, "failed to create %s", dir)
	}
	return nil
}

func extractRegular(f *zip.File, target string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	src, err := f.Open()
	if err != nil {
		return failure.Wrapf(failure.Input, err, "malformed archive entry %s", f.Name)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return failure.Wrapf(failure.Input, err, "failed to create %s", target)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return failure.Wrapf(failure.Input, err, "malformed archive entry %s", f.Name)
	}
	if err := dst.Close(); err != nil {
		return failure.Wrapf(failure.Input, err, "failed to write %s", target)
	}
	// OpenFile honours the umask; restore the archived mode.
	if err := os.Chmod(target, perm); err != nil {
		return failure.Wrapf(failure.Input, err, "failed to set mode on %s", target)
	}
	return nil
}

func extractSymlink(f *zip.File, name, target string) error {
	src, err := f.Open()
	if err != nil {
		return failure.Wrapf(failure.Input, err, "malformed archive entry %s", f.Name)
	}
	defer func() { _ = src.Close() }()
	link, err := io.ReadAll(io.LimitReader(src, 4096))
	if err != nil {
		return failure.Wrapf(failure.Input, err, "malformed archive entry %s", f.Name)
	}

	dest := string(link)
	resolved := path.Join(path.Dir(name), dest)
	if path.IsAbs(dest) || !filepath.IsLocal(filepath.FromSlash(resolved)) {
		return failure.New(failure.Input, "malformed archive: symlink %q points outside the bundle", f.Name)
	}

	if err := mkdir(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Symlink(dest, target); err != nil {
		return failure.Wrapf(failure.Input, err, "failed to create symlink %s", target)
	}
	return nil
}

// checkNoSymlinks rejects an entry when any existing component of its path
// below outputDir is a symlink. Links extracted earlier are never written
// through, so chained links cannot redirect later entries out of outputDir.
func checkNoSymlinks(outputDir, name string) error {
	cur := outputDir
	for _, part := range strings.Split(path.Clean(name), "/") {
		if part == "" || part == "." {
			continue
		}
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return failure.Wrapf(failure.Input, err, "failed to inspect %s", cur)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return failure.New(failure.Input, "malformed archive: entry %q is written through symlink %s", name, filepath.Base(cur))
		}
	}
	return nil
}

// String helps log what was unpacked.
func (b *Bundle) String() string {
	if b.Version != "" {
		return fmt.Sprintf("%s (%s %s)", filepath.Base(b.Path), b.ID, b.Version)
	}
	return fmt.Sprintf("%s (%s)", filepath.Base(b.Path), b.ID)
}
