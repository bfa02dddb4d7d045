//go:build !windows

package hostsvc

import (
	"context"
	"fmt"
)

// SCM is a stub outside Windows hosts.
type SCM struct{}

// NewSCM constructs an SCM adapter that always reports itself unusable
// outside Windows hosts.
func NewSCM() *SCM { return &SCM{} }

func (s *SCM) Register(ctx context.Context, id, supervisorBinary string) (string, error) {
	return "", fmt.Errorf("hostsvc: scm adapter requires a windows host")
}

func (s *SCM) Deregister(ctx context.Context, id, name string) error {
	return fmt.Errorf("hostsvc: scm adapter requires a windows host")
}

func (s *SCM) Start(ctx context.Context, name string) error {
	return fmt.Errorf("hostsvc: scm adapter requires a windows host")
}

func (s *SCM) Stop(ctx context.Context, name string) error {
	return fmt.Errorf("hostsvc: scm adapter requires a windows host")
}
