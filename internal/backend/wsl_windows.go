//go:build windows

package backend

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// WSL is the Windows isolation backend: Import registers the image as a
// distro instance via `wsl --import`, Exec dispatches commands into that
// instance, and bind mounts are set up with `mount --bind` run from inside
// the instance. Non-interactive
// Exec calls go straight through wsl.exe; interactive (TTY) calls reuse one
// authenticated SSH channel into the instance's sshd instead of paying the
// wsl.exe startup cost per keystroke round-trip.
type WSL struct {
	wslCommon

	instancesDir string

	mu      sync.Mutex
	clients map[string]*ssh.Client
}

// NewWSL constructs the Windows subsystem-backed isolation backend.
func NewWSL() *WSL {
	instancesDir := filepath.Join(os.Getenv("LOCALAPPDATA"), "lockbox", "instances")
	return &WSL{instancesDir: instancesDir, clients: map[string]*ssh.Client{}}
}

// Import registers imagePath as a WSL distro instance named for id.
func (w *WSL) Import(ctx context.Context, id, rootDir, imagePath string) error {
	name := instanceName(id)
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrImportFailed, rootDir, err)
	}
	cmd := exec.CommandContext(ctx, "wsl.exe", "--import", name, rootDir, imagePath, "--version", "2")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: wsl --import: %v: %s", ErrImportFailed, err, out)
	}
	return nil
}

// Exec runs shellCmd inside the instance. Non-TTY calls shell out to
// wsl.exe directly; TTY calls open (and cache) an SSH session against the
// instance's sshd, matching the pty semantics the chroot backend gets from
// creack/pty for free.
func (w *WSL) Exec(ctx context.Context, id, shellCmd string, opts ExecOpts) (int, error) {
	name := instanceName(id)
	if opts.TTY {
		return w.execSSH(ctx, id, shellCmd, opts)
	}
	args := []string{"-d", name}
	if opts.WorkDir != "" {
		shellCmd = fmt.Sprintf("cd %q && %s", opts.WorkDir, shellCmd)
	}
	args = append(args, "--", "sh", "-c", shellCmd)
	cmd := exec.CommandContext(ctx, "wsl.exe", args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("backend: wsl exec: %w", err)
	}
	return 0, nil
}

func (w *WSL) execSSH(ctx context.Context, id, shellCmd string, opts ExecOpts) (int, error) {
	client, err := w.sshClient(ctx, id)
	if err != nil {
		return -1, err
	}
	session, err := client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("backend: wsl ssh session: %w", err)
	}
	defer session.Close()

	if err := session.RequestPty("xterm", 80, 40, ssh.TerminalModes{}); err != nil {
		return -1, fmt.Errorf("backend: wsl ssh pty: %w", err)
	}
	session.Stdin = opts.Stdin
	session.Stdout = opts.Stdout
	session.Stderr = opts.Stderr

	cmd := shellCmd
	if opts.WorkDir != "" {
		cmd = fmt.Sprintf("cd %q && %s", opts.WorkDir, shellCmd)
	}
	if err := session.Run(cmd); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return exitErr.ExitStatus(), nil
		}
		return -1, fmt.Errorf("backend: wsl ssh run: %w", err)
	}
	return 0, nil
}

func (w *WSL) sshClient(ctx context.Context, id string) (*ssh.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.clients[id]; ok {
		return c, nil
	}

	signer, err := loadOrCreateHostKey(filepath.Join(w.instancesDir, id, "host_ed25519_key"))
	if err != nil {
		return nil, fmt.Errorf("backend: wsl host key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // subsystem instances are loopback-only, never reused across hosts
		Timeout:         5 * time.Second,
	}
	addr := net.JoinHostPort("127.0.0.1", instanceSSHPort(id))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("backend: wsl ssh dial %s: %w", addr, err)
	}
	w.clients[id] = client
	return client, nil
}

func instanceSSHPort(id string) string {
	// Each instance is assigned a loopback port derived from its id so
	// concurrent instances don't collide on 22.
	h := 0
	for _, c := range id {
		h = h*31 + int(c)
	}
	if h < 0 {
		h = -h
	}
	return fmt.Sprintf("%d", 20000+(h%10000))
}

// Terminate stops the distro instance, best-effort, idempotent.
func (w *WSL) Terminate(ctx context.Context, id string) error {
	w.mu.Lock()
	if c, ok := w.clients[id]; ok {
		c.Close()
		delete(w.clients, id)
	}
	w.mu.Unlock()

	cmd := exec.CommandContext(ctx, "wsl.exe", "--terminate", instanceName(id))
	_ = cmd.Run() // idempotent: terminating an already-stopped instance is not an error
	return nil
}

// Destroy unregisters the distro instance and removes its backing files.
func (w *WSL) Destroy(ctx context.Context, id string) error {
	_ = w.Terminate(ctx, id)
	cmd := exec.CommandContext(ctx, "wsl.exe", "--unregister", instanceName(id))
	_ = cmd.Run()
	return os.RemoveAll(filepath.Join(w.instancesDir, id))
}

// MountVolumes bind-mounts each volume from inside the instance, since the
// subsystem backend has no host-side view of the instance's filesystem.
// Satisfies backend.Mounter.
func (w *WSL) MountVolumes(ctx context.Context, id string, volumes []VolumeSpec) ([]string, error) {
	name := instanceName(id)
	var mounted []string
	for _, v := range volumes {
		shellCmd := fmt.Sprintf("mkdir -p %q && mount --bind %q %q", v.ContainerPath, v.HostPath, v.ContainerPath)
		cmd := exec.CommandContext(ctx, "wsl.exe", "-d", name, "--", "sh", "-c", shellCmd)
		if out, err := cmd.CombinedOutput(); err != nil {
			return mounted, fmt.Errorf("backend: wsl bind mount %s -> %s: %w: %s", v.HostPath, v.ContainerPath, err, out)
		}
		mounted = append(mounted, v.ContainerPath)
	}
	return mounted, nil
}

// MountProcFS is a no-op: WSL2 instances already have /proc mounted by the
// kernel they boot. Satisfies backend.Mounter.
func (w *WSL) MountProcFS(ctx context.Context, id string) error {
	return nil
}

func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if data, err := os.ReadFile(path); err == nil {
		return ssh.ParsePrivateKey(data)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, err
	}
	_ = pub
	return ssh.ParsePrivateKey(pem.EncodeToMemory(block))
}
