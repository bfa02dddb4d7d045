package backend

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// chrootCommon holds the parts of the chroot backend that don't depend on
// the Chroot syscall itself, so they can be exercised on any build target.
type chrootCommon struct{}

func (chrootCommon) Name() string { return "chroot" }

// extractTar extracts a (possibly gzip-compressed) tar archive at imagePath
// into rootDir, creating it if necessary.
func extractTar(ctx context.Context, imagePath, rootDir string) error {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrImportFailed, rootDir, err)
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrImportFailed, imagePath, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(imagePath, ".gz") || strings.HasSuffix(imagePath, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: gzip %s: %v", ErrImportFailed, imagePath, err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: tar read: %v", ErrImportFailed, err)
		}
		target := filepath.Join(rootDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(rootDir)+string(os.PathSeparator)) && target != filepath.Clean(rootDir) {
			// Guard against path traversal in the archive.
			slog.Warn("chroot: skipping tar entry outside root", "name", hdr.Name)
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", ErrImportFailed, target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", ErrImportFailed, filepath.Dir(target), err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("%w: create %s: %v", ErrImportFailed, target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("%w: write %s: %v", ErrImportFailed, target, err)
			}
			out.Close()
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				slog.Warn("chroot: symlink failed", "target", target, "error", err)
			}
		default:
			// Devices, fifos etc. are skipped: chroot isolation has no use for them.
		}
	}
}
