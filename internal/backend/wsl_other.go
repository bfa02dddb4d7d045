//go:build !windows

package backend

import (
	"context"
	"fmt"
)

// WSL is a stub outside Windows: the subsystem backend is inherently
// Windows-only (it shells out to wsl.exe).
type WSL struct {
	wslCommon
}

// NewWSL constructs a WSL backend that always reports itself unusable
// outside Windows hosts.
func NewWSL() *WSL { return &WSL{} }

func (w *WSL) Import(ctx context.Context, id, rootDir, imagePath string) error {
	return fmt.Errorf("backend: wsl backend requires a windows host")
}

func (w *WSL) Exec(ctx context.Context, id, shellCmd string, opts ExecOpts) (int, error) {
	return -1, fmt.Errorf("backend: wsl backend requires a windows host")
}

func (w *WSL) Terminate(ctx context.Context, id string) error {
	return fmt.Errorf("backend: wsl backend requires a windows host")
}

func (w *WSL) Destroy(ctx context.Context, id string) error {
	return fmt.Errorf("backend: wsl backend requires a windows host")
}

func (w *WSL) MountVolumes(ctx context.Context, id string, volumes []VolumeSpec) ([]string, error) {
	return nil, fmt.Errorf("backend: wsl backend requires a windows host")
}

func (w *WSL) MountProcFS(ctx context.Context, id string) error {
	return fmt.Errorf("backend: wsl backend requires a windows host")
}
