package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Command is one step of the build pipeline. It mirrors the Command
// interface Rocker's build package uses (one concrete type per directive,
// dispatched by a factory), narrowed to lockbox's six BOX_* directives.
type Command interface {
	Execute(b *Build) error
	String() string
}

// NewCommand constructs the Command for one parsed instruction.
func NewCommand(instr Instruction) (Command, error) {
	switch instr.Directive {
	case "BOX_BASE":
		return &cmdBase{tag: strings.TrimSpace(instr.Args)}, nil
	case "BOX_COPY":
		args := splitArgs(instr.Args)
		if len(args) < 2 {
			return nil, fmt.Errorf("build: line %d: BOX_COPY requires at least a source and destination", instr.Line)
		}
		return &cmdCopy{srcs: args[:len(args)-1], dst: args[len(args)-1]}, nil
	case "BOX_EXEC":
		if instr.Args == "" {
			return nil, fmt.Errorf("build: line %d: BOX_EXEC requires a command", instr.Line)
		}
		return &cmdExec{shellCmd: instr.Args}, nil
	case "BOX_ENV":
		key, value, ok := strings.Cut(instr.Args, "=")
		if !ok {
			return nil, fmt.Errorf("build: line %d: BOX_ENV requires KEY=VALUE", instr.Line)
		}
		return &cmdEnv{key: strings.TrimSpace(key), value: strings.TrimSpace(value)}, nil
	case "BOX_DIR":
		if instr.Args == "" {
			return nil, fmt.Errorf("build: line %d: BOX_DIR requires a path", instr.Line)
		}
		return &cmdDir{path: instr.Args}, nil
	case "BOX_START":
		if instr.Args == "" {
			return nil, fmt.Errorf("build: line %d: BOX_START requires a command", instr.Line)
		}
		return &cmdStart{raw: instr.Args}, nil
	default:
		return nil, fmt.Errorf("build: line %d: unknown directive %q", instr.Line, instr.Directive)
	}
}

// --- BOX_BASE ---

type cmdBase struct{ tag string }

func (c *cmdBase) String() string { return "BOX_BASE " + c.tag }

func (c *cmdBase) Execute(b *Build) error {
	return b.importBase(c.tag)
}

// --- BOX_COPY ---

type cmdCopy struct {
	srcs []string
	dst  string
}

func (c *cmdCopy) String() string { return "BOX_COPY " + strings.Join(c.srcs, " ") + " " + c.dst }

func (c *cmdCopy) Execute(b *Build) error {
	dst := c.dst
	if !filepath.IsAbs(dst) {
		dst = filepath.Join(b.state.WorkDir, dst)
	}
	for _, src := range c.srcs {
		if err := copyOne(b.contextDir, src, filepath.Join(b.scratchRoot, dst)); err != nil {
			return fmt.Errorf("build: BOX_COPY %s -> %s: %w", src, c.dst, err)
		}
	}
	return nil
}

// --- BOX_EXEC ---

type cmdExec struct{ shellCmd string }

func (c *cmdExec) String() string { return "BOX_EXEC " + c.shellCmd }

func (c *cmdExec) Execute(b *Build) error {
	return b.runInScratch(c.shellCmd)
}

// --- BOX_ENV ---

type cmdEnv struct{ key, value string }

func (c *cmdEnv) String() string { return fmt.Sprintf("BOX_ENV %s=%s", c.key, c.value) }

func (c *cmdEnv) Execute(b *Build) error {
	return b.appendProfileExport(c.key, c.value)
}

// --- BOX_DIR ---

type cmdDir struct{ path string }

func (c *cmdDir) String() string { return "BOX_DIR " + c.path }

func (c *cmdDir) Execute(b *Build) error {
	abs := c.path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.state.WorkDir, abs)
	}
	if err := os.MkdirAll(filepath.Join(b.scratchRoot, abs), 0o755); err != nil {
		return fmt.Errorf("build: BOX_DIR %s: %w", c.path, err)
	}
	b.state.WorkDir = abs
	return nil
}

// --- BOX_START ---

type cmdStart struct{ raw string }

func (c *cmdStart) String() string { return "BOX_START " + c.raw }

func (c *cmdStart) Execute(b *Build) error {
	cmd := c.raw
	var asList []string
	if err := json.Unmarshal([]byte(c.raw), &asList); err == nil && len(asList) > 0 {
		cmd = strings.Join(asList, " ")
	}
	b.state.Entrypoint = &cmd
	return nil
}
