package fabric

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/nate-c/lockbox/internal/backend"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func startEcho(t *testing.T, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFabricForwardsBytesRoundTrip(t *testing.T) {
	hostPort := freePort(t)
	containerPort := freePort(t)
	startEcho(t, containerPort)

	f := New(discardLogger(), "127.0.0.1", []Mapping{{HostPort: hostPort, ContainerPort: containerPort}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(hostPort), 2*time.Second)
	if err != nil {
		t.Fatalf("dial forwarded port: %v", err)
	}
	defer conn.Close()

	want := []byte("hello lockbox")
	if _, err := conn.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(want))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFabricStartFailsOnPortConflict(t *testing.T) {
	hostPort := freePort(t)
	blocker, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(hostPort))
	if err != nil {
		t.Fatal(err)
	}
	defer blocker.Close()

	f := New(discardLogger(), "127.0.0.1", []Mapping{{HostPort: hostPort, ContainerPort: freePort(t)}})
	if err := f.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail when the host port is already bound")
	}
}

type fakeIPBackend struct {
	hostnameOut string
	hostnameErr error
	ifaceOut    string
}

func (f *fakeIPBackend) Name() string { return "fake" }
func (f *fakeIPBackend) Import(ctx context.Context, id, rootDir, imagePath string) error {
	return nil
}
func (f *fakeIPBackend) Exec(ctx context.Context, id, shellCmd string, opts backend.ExecOpts) (int, error) {
	switch shellCmd {
	case "hostname -I":
		if f.hostnameErr != nil {
			return 1, f.hostnameErr
		}
		if opts.Stdout != nil {
			opts.Stdout.Write([]byte(f.hostnameOut))
		}
		return 0, nil
	default:
		if opts.Stdout != nil {
			opts.Stdout.Write([]byte(f.ifaceOut))
		}
		return 0, nil
	}
}
func (f *fakeIPBackend) Terminate(ctx context.Context, id string) error { return nil }
func (f *fakeIPBackend) Destroy(ctx context.Context, id string) error   { return nil }

func TestResolveIPPrefersHostname(t *testing.T) {
	be := &fakeIPBackend{hostnameOut: "172.17.0.5 fe80::1\n"}
	got := ResolveIP(context.Background(), be, "c1", discardLogger())
	if got != "172.17.0.5" {
		t.Errorf("got %q, want 172.17.0.5", got)
	}
}

func TestResolveIPFallsBackToInterfaceListing(t *testing.T) {
	be := &fakeIPBackend{
		hostnameErr: io.ErrUnexpectedEOF,
		ifaceOut:    "eth0: inet 127.0.0.1 netmask ...\neth1: inet 172.20.0.9 netmask ...\n",
	}
	got := ResolveIP(context.Background(), be, "c1", discardLogger())
	if got != "172.20.0.9" {
		t.Errorf("got %q, want 172.20.0.9", got)
	}
}

func TestResolveIPFallsBackToLoopback(t *testing.T) {
	be := &fakeIPBackend{hostnameErr: io.ErrUnexpectedEOF, ifaceOut: ""}
	got := ResolveIP(context.Background(), be, "c1", discardLogger())
	if got != "127.0.0.1" {
		t.Errorf("got %q, want 127.0.0.1", got)
	}
}
