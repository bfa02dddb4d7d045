//go:build linux

package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Chroot is the host-native isolation backend: Import extracts the image
// tarball into rootDir, Exec runs commands with the child process's root
// reassigned to rootDir via SysProcAttr.Chroot (rather than calling
// syscall.Chroot in-process, which would chroot the supervisor itself).
// rootDir is recorded per id at Import time so later calls only need id,
// matching the interface every other backend shares.
type Chroot struct {
	chrootCommon

	mu    sync.Mutex
	roots map[string]string
	pgid  map[string]int
}

// NewChroot constructs the host-native chroot backend.
func NewChroot() *Chroot {
	return &Chroot{pgid: map[string]int{}, roots: map[string]string{}}
}

// Import extracts the image tarball into rootDir and records it under id.
func (c *Chroot) Import(ctx context.Context, id, rootDir, imagePath string) error {
	if err := extractTar(ctx, imagePath, rootDir); err != nil {
		return err
	}
	c.mu.Lock()
	c.roots[id] = rootDir
	c.mu.Unlock()
	return nil
}

func (c *Chroot) rootFor(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rootDir, ok := c.roots[id]
	if !ok {
		return "", fmt.Errorf("backend: no chroot registered for %q", id)
	}
	return rootDir, nil
}

// Exec runs shellCmd chrooted into the root directory registered for id by
// Import. The workDir in opts is relative to the chroot, not the host.
func (c *Chroot) Exec(ctx context.Context, id, shellCmd string, opts ExecOpts) (int, error) {
	rootDir, err := c.rootFor(id)
	if err != nil {
		return -1, err
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", shellCmd)
	cmd.Dir = "/"
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}
	cmd.Env = opts.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Chroot:  rootDir,
		Setpgid: true,
	}

	var ptyFile *os.File
	if opts.TTY {
		ptyFile, err = pty.Start(cmd)
		if err != nil {
			return -1, fmt.Errorf("backend: chroot pty start: %w", err)
		}
		defer ptyFile.Close()
		if opts.Stdin != nil {
			go func() { _, _ = io.Copy(ptyFile, opts.Stdin) }()
		}
		if opts.Stdout != nil {
			go func() { _, _ = io.Copy(opts.Stdout, ptyFile) }()
		}
	} else {
		cmd.Stdin = opts.Stdin
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
		if err := cmd.Start(); err != nil {
			return -1, fmt.Errorf("backend: chroot exec start: %w", err)
		}
	}

	if cmd.Process != nil {
		c.mu.Lock()
		c.pgid[id] = cmd.Process.Pid
		c.mu.Unlock()
	}

	waitErr := cmd.Wait()

	c.mu.Lock()
	delete(c.pgid, id)
	c.mu.Unlock()

	if waitErr == nil {
		return 0, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("backend: chroot exec wait: %w", waitErr)
}

// Terminate kills the process group running under id, best-effort.
func (c *Chroot) Terminate(ctx context.Context, id string) error {
	c.mu.Lock()
	pid, ok := c.pgid[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("backend: chroot terminate: %w", err)
	}
	return nil
}

// Destroy removes the root filesystem tree. Unmounting any bind mounts is
// the supervisor's responsibility (it tracks them in the container record);
// Destroy tolerates mounts still being present by best-effort lazy-unmounting
// them before the RemoveAll.
func (c *Chroot) Destroy(ctx context.Context, id string) error {
	rootDir, err := c.rootFor(id)
	if err != nil {
		return nil
	}
	if rootDir == "" || rootDir == "/" {
		return fmt.Errorf("backend: refusing to destroy %q", rootDir)
	}
	_ = exec.CommandContext(ctx, "umount", "-Rl", rootDir).Run()
	if err := os.RemoveAll(rootDir); err != nil {
		return fmt.Errorf("backend: destroy %s: %w", rootDir, err)
	}
	c.mu.Lock()
	delete(c.roots, id)
	c.mu.Unlock()
	return nil
}

// RootDir returns the filesystem path registered for id by Import, for
// callers (the supervisor's bind-mount step) that need the real path rather
// than the logical id.
func (c *Chroot) RootDir(id string) (string, error) {
	return c.rootFor(id)
}

// MountVolumes bind-mounts each volume into the root registered for id,
// satisfying backend.Mounter.
func (c *Chroot) MountVolumes(ctx context.Context, id string, volumes []VolumeSpec) ([]string, error) {
	rootDir, err := c.rootFor(id)
	if err != nil {
		return nil, err
	}
	var mounted []string
	for _, v := range volumes {
		target, err := c.BindMount(ctx, rootDir, v.HostPath, v.ContainerPath, false)
		if err != nil {
			return mounted, err
		}
		mounted = append(mounted, target)
	}
	return mounted, nil
}

// MountProcFS mounts /proc into the root registered for id, satisfying
// backend.Mounter.
func (c *Chroot) MountProcFS(ctx context.Context, id string) error {
	rootDir, err := c.rootFor(id)
	if err != nil {
		return err
	}
	return c.mountProc(ctx, rootDir)
}

// mountProc mounts /proc into rootDir/proc, part of the supervisor's bind
// mount step on the host-native backend.
func (c *Chroot) mountProc(ctx context.Context, rootDir string) error {
	target := rootDir + "/proc"
	if err := os.MkdirAll(target, 0o555); err != nil {
		return fmt.Errorf("backend: mkdir %s: %w", target, err)
	}
	cmd := exec.CommandContext(ctx, "mount", "-t", "proc", "proc", target)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("backend: mount proc: %w: %s", err, out)
	}
	return nil
}

// BindMount bind-mounts hostPath onto rootDir/containerPath.
func (c *Chroot) BindMount(ctx context.Context, rootDir, hostPath, containerPath string, readOnly bool) (string, error) {
	target := rootDir + containerPath
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("backend: mkdir %s: %w", target, err)
	}
	args := []string{"--bind", hostPath, target}
	cmd := exec.CommandContext(ctx, "mount", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("backend: bind mount %s -> %s: %w: %s", hostPath, target, err, out)
	}
	if readOnly {
		remount := exec.CommandContext(ctx, "mount", "-o", "remount,ro,bind", target)
		if out, err := remount.CombinedOutput(); err != nil {
			return "", fmt.Errorf("backend: remount ro %s: %w: %s", target, err, out)
		}
	}
	return target, nil
}
