//go:build !linux

package backend

import (
	"context"
	"fmt"
)

// Chroot is a stub on non-Linux hosts: the host-native backend requires the
// SysProcAttr.Chroot facility this package relies on, which is Linux-only.
type Chroot struct {
	chrootCommon
}

// NewChroot constructs a Chroot backend that always reports itself unusable
// outside Linux hosts.
func NewChroot() *Chroot { return &Chroot{} }

func (c *Chroot) Import(ctx context.Context, id, rootDir, imagePath string) error {
	return fmt.Errorf("backend: chroot backend requires a linux host")
}

func (c *Chroot) Exec(ctx context.Context, id, shellCmd string, opts ExecOpts) (int, error) {
	return -1, fmt.Errorf("backend: chroot backend requires a linux host")
}

func (c *Chroot) Terminate(ctx context.Context, id string) error {
	return fmt.Errorf("backend: chroot backend requires a linux host")
}

func (c *Chroot) Destroy(ctx context.Context, id string) error {
	return fmt.Errorf("backend: chroot backend requires a linux host")
}

func (c *Chroot) MountVolumes(ctx context.Context, id string, volumes []VolumeSpec) ([]string, error) {
	return nil, fmt.Errorf("backend: chroot backend requires a linux host")
}

func (c *Chroot) MountProcFS(ctx context.Context, id string) error {
	return fmt.Errorf("backend: chroot backend requires a linux host")
}
