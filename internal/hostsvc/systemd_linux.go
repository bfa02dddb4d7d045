//go:build linux

package hostsvc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const unitDir = "/etc/systemd/system"

// Systemd registers a container's supervisor as a systemd unit.
type Systemd struct{}

// NewSystemd constructs the Linux host service adapter.
func NewSystemd() *Systemd { return &Systemd{} }

func (s *Systemd) unitPath(name string) string {
	return unitDir + "/" + name + ".service"
}

// Register writes the unit file and brings it up via systemctl, following
// a reload-then-enable-then-start sequence.
func (s *Systemd) Register(ctx context.Context, id, supervisorBinary string) (string, error) {
	name := serviceName(id)
	content := renderUnit(id, supervisorBinary)
	if err := os.WriteFile(s.unitPath(name), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("hostsvc: write unit file: %w", err)
	}

	if err := runSystemctl(ctx, "daemon-reload"); err != nil {
		return "", err
	}
	if err := runSystemctl(ctx, "enable", name); err != nil {
		return "", err
	}
	if err := runSystemctl(ctx, "start", name); err != nil {
		return "", err
	}
	return name, nil
}

// Deregister stops and disables the unit, then removes its file.
func (s *Systemd) Deregister(ctx context.Context, id, name string) error {
	if name == "" {
		name = serviceName(id)
	}
	if err := runSystemctl(ctx, "stop", name); err != nil {
		return err
	}
	if err := runSystemctl(ctx, "disable", name); err != nil {
		return err
	}
	if err := os.Remove(s.unitPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("hostsvc: remove unit file: %w", err)
	}
	return runSystemctl(ctx, "daemon-reload")
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	return runSystemctl(ctx, "start", name)
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return runSystemctl(ctx, "stop", name)
}

func runSystemctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s failed: %w\n%s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
