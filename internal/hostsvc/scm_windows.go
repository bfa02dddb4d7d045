//go:build windows

package hostsvc

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// SCM registers a container's supervisor with the Windows Service Control
// Manager by shelling out to sc.exe, the same style the WSL backend uses
// for wsl.exe.
type SCM struct{}

// NewSCM constructs the Windows host service adapter.
func NewSCM() *SCM { return &SCM{} }

// Register creates and starts a service that runs the supervisor binary in
// daemon mode for id.
func (s *SCM) Register(ctx context.Context, id, supervisorBinary string) (string, error) {
	name := serviceName(id)
	binPath := fmt.Sprintf("%s internal-daemon %s", supervisorBinary, id)

	if err := runSC(ctx, "create", name, "binPath=", binPath, "start=", "auto"); err != nil {
		return "", err
	}
	if err := runSC(ctx, "start", name); err != nil {
		return "", err
	}
	return name, nil
}

// Deregister stops and deletes the service.
func (s *SCM) Deregister(ctx context.Context, id, name string) error {
	if name == "" {
		name = serviceName(id)
	}
	if err := runSC(ctx, "stop", name); err != nil {
		return err
	}
	return runSC(ctx, "delete", name)
}

func (s *SCM) Start(ctx context.Context, name string) error {
	return runSC(ctx, "start", name)
}

func (s *SCM) Stop(ctx context.Context, name string) error {
	return runSC(ctx, "stop", name)
}

func runSC(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "sc.exe", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("sc.exe %s failed: %w\n%s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
