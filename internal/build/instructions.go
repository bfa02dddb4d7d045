// Package build implements the image build pipeline: parsing the app.lbox /
// lbox instruction stream and driving an isolation backend to transform a
// scratch root filesystem into a tagged image archive plus metadata sidecar.
package build

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Instruction is one parsed line of the instruction file.
type Instruction struct {
	Directive string
	Args      string
	Line      int
}

// instructionFileNames lists the candidate instruction file names, tried
// in this order.
var instructionFileNames = []string{"app.lbox", "lbox"}

// ParseInstructions reads an instruction stream, skipping blank lines and
// '#' comments.
func ParseInstructions(r io.Reader) ([]Instruction, error) {
	scanner := bufio.NewScanner(r)
	var out []Instruction
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, args, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("build: line %d: missing arguments for %q", lineNo, line)
		}
		out = append(out, Instruction{
			Directive: strings.TrimSpace(directive),
			Args:      strings.TrimSpace(args),
			Line:      lineNo,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("build: scan: %w", err)
	}
	return out, nil
}

// ResolveInstructionFile finds the instruction file in contextDir, trying
// each candidate name in order.
func ResolveInstructionFile(contextDir string) (string, error) {
	for _, name := range instructionFileNames {
		path := filepath.Join(contextDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("build: no %s found in %s", strings.Join(instructionFileNames, " or "), contextDir)
}
