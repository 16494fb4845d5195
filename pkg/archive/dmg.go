package archive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/renkit/renotize/pkg/command"
	"github.com/renkit/renotize/pkg/failure"
)

// DMGPackager creates disk images containing a single .app using hdiutil.
type DMGPackager struct {
	Runner  command.Runner
	Hdiutil string
}

func (p DMGPackager) runner() command.Runner {
	if p.Runner == nil {
		return command.Exec{}
	}
	return p.Runner
}

func (p DMGPackager) tool() string {
	if p.Hdiutil == "" {
		return "hdiutil"
	}
	return p.Hdiutil
}

// BuildCreateArgs returns the hdiutil arguments for a compressed image.
func BuildCreateArgs(appPath, outputPath, volumeName string, overwrite bool) []string {
	args := []string{"create",
		"-volname", volumeName,
		"-srcfolder", appPath,
		"-format", "UDZO",
	}
	if overwrite {
		args = append(args, "-ov")
	}
	return append(args, outputPath)
}

// Pack creates a DMG at outputPath containing appPath. volumeName is the
// name shown when the image is mounted. The image must exist, be non-empty
// and pass `hdiutil verify` afterwards. Returns the tool output.
func (p DMGPackager) Pack(ctx context.Context, appPath, outputPath, volumeName string, overwrite bool) (string, error) {
	if volumeName == "" {
		return "", failure.New(failure.Packaging, "volume name is required")
	}
	if info, err := os.Stat(appPath); err != nil || !info.IsDir() {
		return "", failure.New(failure.Packaging, "%s is not an application bundle", appPath)
	}
	if _, err := os.Stat(outputPath); err == nil && !overwrite {
		return "", failure.New(failure.Packaging, "%s already exists — pass --overwrite to replace it", outputPath)
	}
	if err := command.Require(p.runner(), p.tool(), "this tool is required for DMG packaging on macOS"); err != nil {
		return "", failure.Wrap(failure.Packaging, err)
	}

	out, err := p.runner().Run(ctx, p.tool(), BuildCreateArgs(appPath, outputPath, volumeName, overwrite)...)
	if err != nil {
		if ctx.Err() != nil {
			return out, failure.Cancel(ctx.Err())
		}
		return out, failure.New(failure.Packaging, "failed to create DMG image: %s: %v", strings.TrimSpace(out), err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return out, failure.New(failure.Packaging, "hdiutil reported success but %s was not created", outputPath)
	}
	if info.Size() == 0 {
		return out, failure.New(failure.Packaging, "%s is empty", outputPath)
	}

	verifyOut, err := p.runner().Run(ctx, p.tool(), "verify", outputPath)
	out += verifyOut
	if err != nil {
		if ctx.Err() != nil {
			return out, failure.Cancel(ctx.Err())
		}
		return out, failure.New(failure.Packaging, "DMG verification failed for %s: %s: %v", outputPath, strings.TrimSpace(verifyOut), err)
	}

	return out, nil
}

// DMGName returns the file name for an app's disk image.
func DMGName(volumeName string) string {
	return fmt.Sprintf("%s.dmg", strings.ReplaceAll(volumeName, "/", "-"))
}
