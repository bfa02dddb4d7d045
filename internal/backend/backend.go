// Package backend implements the isolation backend contract shared by the
// host-native chroot variant and the Windows-subsystem-instance variant
//. Callers depend on the Backend interface only;
// platform branching stays inside each variant.
package backend

import (
	"context"
	"errors"
	"io"
	"runtime"
)

// ErrImportFailed wraps any failure to materialize an image's root filesystem.
var ErrImportFailed = errors.New("backend: import failed")

// ExecOpts carries the optional inputs to Exec.
type ExecOpts struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	WorkDir string
	Env     []string
	TTY     bool
}

// Backend is the uniform contract both isolation variants implement.
type Backend interface {
	// Import materializes the image's root filesystem at rootDir under
	// handle id. Not idempotent over prior failed attempts; callers must
	// Destroy first.
	Import(ctx context.Context, id, rootDir, imagePath string) error
	// Exec runs shellCmd inside the instance, blocking until completion,
	// and returns its exit code.
	Exec(ctx context.Context, id, shellCmd string, opts ExecOpts) (exitCode int, err error)
	// Terminate stops all processes under id. Best-effort, idempotent.
	Terminate(ctx context.Context, id string) error
	// Destroy frees the backing filesystem. Tolerates partial state.
	Destroy(ctx context.Context, id string) error
	// Name identifies the backend for logging/diagnostics.
	Name() string
}

// VolumeSpec is one host:container bind mount to apply during container
// startup.
type VolumeSpec struct {
	HostPath      string
	ContainerPath string
}

// Mounter is implemented by backends that can bind host paths into a
// running instance. Both variants implement it, by different mechanisms
// (a host bind mount for the chroot backend, an in-instance mount for the
// subsystem backend); the supervisor only depends on this interface.
type Mounter interface {
	// MountVolumes binds each volume into the instance registered under id
	// and returns the resulting in-instance mount points, to be persisted
	// onto the container record for later unwinding.
	MountVolumes(ctx context.Context, id string, volumes []VolumeSpec) ([]string, error)
	// MountProcFS mounts a process filesystem into the instance, a no-op
	// where the platform doesn't have the concept.
	MountProcFS(ctx context.Context, id string) error
}

// StartTimeout returns the per-backend bound, in seconds, for a container's
// status to transition to running: 60 for the subsystem backend, which takes
// longer to boot an instance, and 10 otherwise. No command in cmd/lockbox
// polls with it; `run` returns once the supervisor has been spawned, without
// waiting for the running status.
func StartTimeout(b Backend) (seconds int) {
	if b.Name() == "wsl" {
		return 60
	}
	return 10
}

// Default selects the isolation backend appropriate for the host platform.
// This is the one place a runtime.GOOS branch is allowed to live at a
// call-site layer; every other caller only ever sees the Backend interface.
func Default() Backend {
	if runtime.GOOS == "windows" {
		return NewWSL()
	}
	return NewChroot()
}
