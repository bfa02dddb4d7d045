package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
	kongcompletion "github.com/jotaen/kong-completion"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/posener/complete"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/hostsvc"
	"github.com/nate-c/lockbox/internal/state"
	"github.com/nate-c/lockbox/internal/tracing"
)

// Context is threaded into every subcommand's Run method.
type Context struct {
	InstallRoot      string
	SupervisorBinary string
	Store            *state.Store
	Backend          backend.Backend
	Adapter          hostsvc.Adapter
	Log              *slog.Logger
}

// CLI is the full command surface.
type CLI struct {
	InstallRoot string `default:"" placeholder:"<install-root>" help:"root directory for images, containers, and state (default ~/.lockbox)"`
	LogFile     string `default:"" placeholder:"<log-file-path>" help:"location of the CLI's own log file (leave empty for a random tmp/ path)"`
	LogLevel    string `default:"info" placeholder:"<debug|info|warn|error>" help:"logging level"`

	Build          BuildCmd          `cmd:"" help:"build an image from a context directory"`
	Run            RunCmd            `cmd:"" help:"create and start a container"`
	Stop           StopCmd           `cmd:"" help:"signal a container to stop"`
	Restart        RestartCmd        `cmd:"" help:"stop (if live) and relaunch a container's supervisor from its existing record; the root filesystem is not recreated"`
	Rm             RmCmd             `cmd:"" help:"stop (if live) and destroy a container"`
	Inspect        InspectCmd        `cmd:"" help:"print a container's state record"`
	Exec           ExecCmd           `cmd:"" help:"run a command inside a container"`
	Logs           LogsCmd           `cmd:"" help:"tail a container's supervisor log"`
	Ps             PsCmd             `cmd:"" help:"list containers"`
	Images         ImagesCmd         `cmd:"" help:"list image archives"`
	Create         CreateCmd         `cmd:"" help:"orchestrate a multi-service project"`
	Version        VersionCmd        `cmd:"" help:"print build version information"`
	InternalDaemon InternalDaemonCmd `cmd:"" hidden:"" help:"supervisor entry point"`
	MonitorDaemon  MonitorDaemonCmd  `cmd:"" hidden:"" help:"auto-update monitor entry point"`
}

const description = `Manage lightweight chroot/WSL container sandboxes.`

func (c *CLI) initSlog(cctx *kong.Context) *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logFile := c.LogFile
	if logFile == "" {
		f, err := os.CreateTemp("", "lockbox-log")
		if err != nil {
			panic(err)
		}
		logFile = f.Name()
		f.Close()
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		panic(err)
	}
	f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// installRoot resolves ~/.lockbox, cross-platform via go-homedir.
func installRoot(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("lockbox: resolve home directory: %w", err)
	}
	root := filepath.Join(home, ".lockbox")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("lockbox: create install root: %w", err)
	}
	return root, nil
}

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("lockbox"),
		kong.Description(description),
		kong.Configuration(kongyaml.Loader, "/etc/lockbox/config.yml", "~/.config/lockbox/config.yml"),
		kong.UsageOnError(),
	)
	kongcompletion.Register(parser,
		kongcompletion.WithPredictor("path", complete.PredictFiles("*")),
	)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	log := cli.initSlog(kctx)

	root, err := installRoot(cli.InstallRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store, err := state.NewStore(filepath.Join(root, "state"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "lockbox: init state store:", err)
		os.Exit(1)
	}

	selfBinary, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lockbox: resolve own binary path:", err)
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init(context.Background(), "lockbox")
	if err != nil {
		log.Warn("lockbox: tracing init failed, continuing without export", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	err = kctx.Run(&Context{
		InstallRoot:      root,
		SupervisorBinary: selfBinary,
		Store:            store,
		Backend:          backend.Default(),
		Adapter:          hostsvc.Default(),
		Log:              log,
	})
	kctx.FatalIfErrorf(err)
}
