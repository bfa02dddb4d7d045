package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Metadata is the sidecar record written alongside an image's tarball.
type Metadata struct {
	EntrypointCommand *string `json:"entrypoint_command"`
	WorkingDirectory  string  `json:"working_directory"`
}

// ImagePaths resolves the on-disk locations for a tagged image under an
// install root.
type ImagePaths struct {
	Tar      string
	Metadata string
}

// Paths returns the tarball and metadata paths for tag. The tarball is
// gzip-compressed, hence the .tar.gz suffix extractTar relies on to decide
// whether to gunzip it.
func Paths(installRoot, tag string) ImagePaths {
	dir := filepath.Join(installRoot, "images")
	return ImagePaths{
		Tar:      filepath.Join(dir, tag+".tar.gz"),
		Metadata: filepath.Join(dir, tag+".json"),
	}
}

// Exists reports whether an image tag has been built.
func Exists(installRoot, tag string) bool {
	p := Paths(installRoot, tag)
	_, err := os.Stat(p.Tar)
	return err == nil
}

// LoadMetadata reads a tag's sidecar record.
func LoadMetadata(installRoot, tag string) (*Metadata, error) {
	p := Paths(installRoot, tag)
	data, err := os.ReadFile(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("build: read metadata %s: %w", tag, err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("build: parse metadata %s: %w", tag, err)
	}
	return &m, nil
}

// writeMetadata writes the sidecar record atomically via temp-file-plus-rename.
func writeMetadata(installRoot, tag string, m *Metadata) error {
	p := Paths(installRoot, tag)
	if err := os.MkdirAll(filepath.Dir(p.Metadata), 0o755); err != nil {
		return fmt.Errorf("build: mkdir images dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("build: marshal metadata %s: %w", tag, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.Metadata), tag+".*.json.tmp")
	if err != nil {
		return fmt.Errorf("build: tempfile metadata %s: %w", tag, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("build: write metadata %s: %w", tag, err)
	}
	tmp.Close()
	return os.Rename(tmp.Name(), p.Metadata)
}

// Info summarizes one built image for listing commands.
type Info struct {
	Tag     string
	Size    int64
	Created time.Time
}

// List enumerates every built image under installRoot's images directory.
func List(installRoot string) ([]Info, error) {
	dir := filepath.Join(installRoot, "images")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("build: readdir %s: %w", dir, err)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		tag := strings.TrimSuffix(e.Name(), ".tar.gz")
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Tag: tag, Size: fi.Size(), Created: fi.ModTime()})
	}
	return out, nil
}

// RemoveArtifacts deletes an image's tarball and sidecar metadata, used by
// `create down --rmi`. Returns true if anything was
// removed.
func RemoveArtifacts(installRoot, tag string) bool {
	p := Paths(installRoot, tag)
	removedAny := false
	if err := os.Remove(p.Tar); err == nil {
		removedAny = true
	}
	if err := os.Remove(p.Metadata); err == nil {
		removedAny = true
	}
	return removedAny
}
