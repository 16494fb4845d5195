// Package bundletest builds application bundles and zip archives for tests.
package bundletest

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"howett.net/plist"
)

// Info holds the Info.plist keys a test bundle gets.
type Info struct {
	ID          string
	Executable  string
	Name        string
	DisplayName string
	Version     string
}

// WriteApp creates dir/<name> as a minimal bundle and returns its path.
// An empty info.Executable skips the executable.
func WriteApp(t testing.TB, dir, name string, info Info) string {
	t.Helper()
	app := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Join(app, "Contents", "MacOS"), 0755); err != nil {
		t.Fatal(err)
	}

	keys := map[string]string{"CFBundlePackageType": "APPL"}
	set := func(k, v string) {
		if v != "" {
			keys[k] = v
		}
	}
	set("CFBundleIdentifier", info.ID)
	set("CFBundleExecutable", info.Executable)
	set("CFBundleName", info.Name)
	set("CFBundleDisplayName", info.DisplayName)
	set("CFBundleShortVersionString", info.Version)

	data, err := plist.MarshalIndent(keys, plist.XMLFormat, "\t")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(app, "Contents", "Info.plist"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if info.Executable != "" {
		exe := filepath.Join(app, "Contents", "MacOS", info.Executable)
		if err := os.WriteFile(exe, []byte("#!/bin/sh\necho hello\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return app
}

// Entry is a raw zip entry. Entries ending in "/" are directories; a
// non-empty Link makes a symlink.
type Entry struct {
	Name string
	Body string
	Mode os.FileMode
	Link string
}

// WriteZip writes entries into a new archive at path.
func WriteZip(t testing.TB, path string, entries []Entry) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	w := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		switch {
		case strings.HasSuffix(e.Name, "/"):
			hdr.SetMode(os.ModeDir | 0755)
		case e.Link != "":
			hdr.SetMode(os.ModeSymlink | 0777)
		case e.Mode != 0:
			hdr.SetMode(e.Mode)
		default:
			hdr.SetMode(0644)
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		body := e.Body
		if e.Link != "" {
			body = e.Link
		}
		if _, err := io.WriteString(fw, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// ZipDir archives the tree at src with src's base name as the top-level
// entry, like ditto --keepParent.
func ZipDir(t testing.TB, src, path string) string {
	t.Helper()
	parent := filepath.Dir(src)
	var entries []Entry
	err := filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case info.IsDir():
			entries = append(entries, Entry{Name: rel + "/"})
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Name: rel, Link: link})
		default:
			body, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Name: rel, Body: string(body), Mode: info.Mode().Perm()})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return WriteZip(t, path, entries)
}

// AppZip builds a valid bundle for id and zips it into dir/<name>.zip.
func AppZip(t testing.TB, dir, name, id string) string {
	t.Helper()
	staging := t.TempDir()
	app := WriteApp(t, staging, name+".app", Info{ID: id, Executable: name, Name: name, Version: "1.0.0"})
	return ZipDir(t, app, filepath.Join(dir, name+".zip"))
}
