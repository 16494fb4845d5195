package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/renkit/renotize/pkg/command"
)

// CreateZip creates a ZIP archive of the given .app using ditto.
// ditto preserves macOS resource forks and extended attributes; when it is
// not installed the archive is written in-process instead, keeping the
// bundle directory as the top-level entry.
func CreateZip(ctx context.Context, r command.Runner, ditto, appPath, outputPath string) error {
	if ditto == "" {
		ditto = "ditto"
	}
	if _, err := r.LookPath(ditto); err != nil {
		return WriteZip(ctx, appPath, outputPath)
	}

	out, err := r.Run(ctx, ditto, "-c", "-k", "--sequesterRsrc", "--keepParent", appPath, outputPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to create ZIP archive: %s: %w", out, err)
	}

	return nil
}

// WriteZip archives the tree at src into outputPath with src's base name as
// the top-level entry. File modes and symlinks are preserved.
func WriteZip(ctx context.Context, src, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create ZIP archive: %w", err)
	}
	w := zip.NewWriter(f)

	parent := filepath.Dir(src)
	walkErr := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		return addEntry(w, path, filepath.ToSlash(rel), info)
	})

	closeErr := w.Close()
	if fileErr := f.Close(); closeErr == nil {
		closeErr = fileErr
	}
	if walkErr != nil {
		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to create ZIP archive: %w", walkErr)
	}
	if closeErr != nil {
		_ = os.Remove(outputPath)
		return fmt.Errorf("failed to finish ZIP archive: %w", closeErr)
	}
	return nil
}

func addEntry(w *zip.Writer, path, name string, info os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
		_, err := w.CreateHeader(hdr)
		return err
	}
	hdr.Method = zip.Deflate

	if info.Mode()&os.ModeSymlink != 0 {
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}
		hdr.Method = zip.Store
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return err
		}
		_, err = io.WriteString(fw, link)
		return err
	}

	fw, err := w.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	_, err = io.Copy(fw, src)
	return err
}
