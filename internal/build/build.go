package build

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/v1/mutate"

	"github.com/nate-c/lockbox/internal/backend"
)

// excludedNames are never copied into a scratch root, regardless of where
// they appear in a COPY source tree.
var excludedNames = map[string]bool{
	".git":        true,
	"venv":        true,
	"__pycache__": true,
}

// State accumulates the effects of executed Commands across a build.
type State struct {
	WorkDir    string
	Entrypoint *string
}

// Build drives one image build: a scratch root provisioned from a base
// image, transformed in place by a sequence of Commands, then archived into
// a tagged image plus metadata sidecar.
type Build struct {
	ctx         context.Context
	be          backend.Backend
	log         *slog.Logger
	installRoot string
	contextDir  string
	tag         string

	id          string
	scratchRoot string
	state       State
}

// New constructs a Build. contextDir is resolved relative to COPY sources;
// installRoot is where the finished tar/json sidecar and intermediate
// scratch roots live.
func New(ctx context.Context, be backend.Backend, log *slog.Logger, installRoot, contextDir, tag string) (*Build, error) {
	id, err := randomID()
	if err != nil {
		return nil, fmt.Errorf("build: generate scratch id: %w", err)
	}
	return &Build{
		ctx:         ctx,
		be:          be,
		log:         log,
		installRoot: installRoot,
		contextDir:  contextDir,
		tag:         tag,
		id:          id,
		scratchRoot: filepath.Join(installRoot, "builds", id),
		state:       State{WorkDir: "/"},
	}, nil
}

// Run parses instr in order and executes each as a Command. Any failure
// destroys the scratch root and returns without writing partial artifacts.
// On success it archives the scratch root as the tagged image tar and
// writes the metadata sidecar.
func (b *Build) Run(instr []Instruction) (err error) {
	defer func() {
		if err != nil {
			if destroyErr := b.be.Destroy(b.ctx, b.id); destroyErr != nil {
				b.log.ErrorContext(b.ctx, "build: cleanup after failure", "error", destroyErr)
			}
		}
	}()

	for _, line := range instr {
		cmd, cerr := NewCommand(line)
		if cerr != nil {
			return cerr
		}
		b.log.InfoContext(b.ctx, "build: executing", "step", cmd.String())
		if xerr := cmd.Execute(b); xerr != nil {
			return xerr
		}
	}

	tarPath := Paths(b.installRoot, b.tag).Tar
	if err := exportTar(b.scratchRoot, tarPath); err != nil {
		return fmt.Errorf("build: export %s: %w", b.tag, err)
	}
	if err := writeMetadata(b.installRoot, b.tag, &Metadata{
		EntrypointCommand: b.state.Entrypoint,
		WorkingDirectory:  b.state.WorkDir,
	}); err != nil {
		return fmt.Errorf("build: write metadata %s: %w", b.tag, err)
	}

	if err := b.be.Destroy(b.ctx, b.id); err != nil {
		b.log.ErrorContext(b.ctx, "build: discard scratch root", "error", err)
	}
	return nil
}

// importBase materializes tag as the build's scratch root, pulling it from
// the local image store if present, otherwise attempting to resolve it as a
// remote OCI reference via crane.
func (b *Build) importBase(tag string) error {
	localTar := Paths(b.installRoot, tag).Tar
	if Exists(b.installRoot, tag) {
		return b.be.Import(b.ctx, b.id, b.scratchRoot, localTar)
	}

	remoteTar, err := pullRemoteBase(b.ctx, b.installRoot, tag)
	if err != nil {
		return fmt.Errorf("build: base image %q not found locally or remotely: %w", tag, err)
	}
	return b.be.Import(b.ctx, b.id, b.scratchRoot, remoteTar)
}

// pullRemoteBase pulls an OCI image reference and flattens its layers into a
// plain rootfs tarball the backend's Import/extractTar already knows how to
// unpack, caching the result under <installRoot>/builds/cache.
func pullRemoteBase(ctx context.Context, installRoot, ref string) (string, error) {
	img, err := crane.Pull(ref, crane.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("crane pull %s: %w", ref, err)
	}

	cacheDir := filepath.Join(installRoot, "builds", "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", cacheDir, err)
	}
	dest := filepath.Join(cacheDir, safeCacheName(ref)+".tar")

	rootfs := mutate.Extract(img)
	defer rootfs.Close()

	tmp, err := os.CreateTemp(cacheDir, "*.tar.tmp")
	if err != nil {
		return "", fmt.Errorf("tempfile: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, rootfs); err != nil {
		tmp.Close()
		return "", fmt.Errorf("extract rootfs %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

func safeCacheName(ref string) string {
	r := strings.NewReplacer("/", "_", ":", "_", "@", "_")
	return r.Replace(ref)
}

// runInScratch executes shellCmd inside the scratch root, aborting the
// build on a nonzero exit.
func (b *Build) runInScratch(shellCmd string) error {
	code, err := b.be.Exec(b.ctx, b.id, shellCmd, backend.ExecOpts{
		WorkDir: b.state.WorkDir,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("build: exec %q: %w", shellCmd, err)
	}
	if code != 0 {
		return fmt.Errorf("build: exec %q exited %d", shellCmd, code)
	}
	return nil
}

// appendProfileExport records an ENV assignment as an export line in the
// scratch root's profile.d, so it's in effect for every later EXEC and for
// the eventual container entrypoint.
func (b *Build) appendProfileExport(key, value string) error {
	dir := filepath.Join(b.scratchRoot, "etc", "profile.d")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("build: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "lockbox_env.sh"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("build: open profile.d: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "export %s=%q\n", key, value)
	return err
}

// copyOne copies src (resolved against contextDir) into dstDir. A directory
// source whose argument ends in "/" has its contents copied directly into
// dstDir; otherwise the source is copied in as a single child named for its
// own base name, mirroring how lockbox's COPY directive is documented.
func copyOne(contextDir, src, dstDir string) error {
	trimmed := strings.TrimSuffix(src, "/")
	srcPath := filepath.Join(contextDir, trimmed)

	info, err := os.Lstat(srcPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dstDir, err)
	}

	if !info.IsDir() {
		return copyFile(srcPath, filepath.Join(dstDir, filepath.Base(srcPath)), info.Mode())
	}

	target := dstDir
	if !strings.HasSuffix(src, "/") {
		target = filepath.Join(dstDir, filepath.Base(srcPath))
	}
	return copyTree(srcPath, target)
}

func copyTree(srcRoot, dstRoot string) error {
	return filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && excludedNames[d.Name()] {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dstRoot, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(dstPath, info.Mode())
		}
		if excludedNames[d.Name()] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, dstPath, info.Mode())
	})
}

func copyFile(srcPath, dstPath string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dstPath), err)
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcPath, dstPath, err)
	}
	return nil
}

// exportTar walks rootDir and writes it as a gzip-compressed tarball, the
// inverse of the chroot backend's own extractTar.
func exportTar(rootDir, destTar string) error {
	if err := os.MkdirAll(filepath.Dir(destTar), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(destTar), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destTar), "*.tar.tmp")
	if err != nil {
		return fmt.Errorf("tempfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootDir {
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		tw.Close()
		gz.Close()
		tmp.Close()
		return fmt.Errorf("walk %s: %w", rootDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		gz.Close()
		tmp.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destTar)
}

func randomID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
