//go:build !linux

package hostsvc

import (
	"context"
	"fmt"
)

// Systemd is a stub outside Linux hosts.
type Systemd struct{}

// NewSystemd constructs a Systemd adapter that always reports itself
// unusable outside Linux hosts.
func NewSystemd() *Systemd { return &Systemd{} }

func (s *Systemd) Register(ctx context.Context, id, supervisorBinary string) (string, error) {
	return "", fmt.Errorf("hostsvc: systemd adapter requires a linux host")
}

func (s *Systemd) Deregister(ctx context.Context, id, name string) error {
	return fmt.Errorf("hostsvc: systemd adapter requires a linux host")
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	return fmt.Errorf("hostsvc: systemd adapter requires a linux host")
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return fmt.Errorf("hostsvc: systemd adapter requires a linux host")
}
