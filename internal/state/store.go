package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goombaio/namegenerator"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a container record does not exist.
var ErrNotFound = errors.New("state: record not found")

// ErrNameInUse is returned when a requested name collides with an existing record.
var ErrNameInUse = errors.New("state: name already in use")

// Store is a flat directory of <id>.json records, keyed by container ID and
// secondarily indexed by name. No locking is assumed: supervisors own their
// own record and the CLI issues only coarse-grained mutations.
type Store struct {
	dir string
}

// NewStore opens (creating if necessary) a state directory at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// NewID generates a 12-hex-char container identifier, truncated from a
// v4 UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// NewRandomName generates a human-friendly container name when the caller
// did not supply one.
func NewRandomName(seed int64) string {
	return namegenerator.NewNameGenerator(seed).Generate()
}

// Create persists a brand new record. It fails if the ID or Name collides.
func (s *Store) Create(r *Record) error {
	if r.ID == "" {
		return fmt.Errorf("state: create: empty id")
	}
	if _, err := os.Stat(s.path(r.ID)); err == nil {
		return fmt.Errorf("state: create %s: %w", r.ID, os.ErrExist)
	}
	if r.Name != "" {
		existing, err := s.FindByName(r.Name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("state: create %s: %w", r.Name, ErrNameInUse)
		}
	}
	return s.write(r)
}

// Save persists a whole-file replacement of an existing record. Best-effort
// atomic via temp-file-plus-rename.
func (s *Store) Save(r *Record) error {
	return s.write(r)
}

func (s *Store) write(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal %s: %w", r.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, r.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: tempfile for %s: %w", r.ID, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("state: write %s: %w", r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: close %s: %w", r.ID, err)
	}
	if err := os.Rename(tmpPath, s.path(r.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: rename %s: %w", r.ID, err)
	}
	return nil
}

// Get loads a record by ID.
func (s *Store) Get(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("state: read %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("state: corrupt record %s: %w", id, err)
	}
	return &r, nil
}

// FindByName returns the unique record with the given name, or ErrNotFound.
func (s *Store) FindByName(name string) (*Record, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Resolve looks up a record by ID first, then by unique name.
func (s *Store) Resolve(ident string) (*Record, error) {
	if r, err := s.Get(ident); err == nil {
		return r, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.FindByName(ident)
}

// List returns every readable record, skipping and logging corrupt entries
// rather than failing the whole listing.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("state: readdir %s: %w", s.dir, err)
	}
	var out []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		r, err := s.Get(id)
		if err != nil {
			slog.Warn("state: skipping unreadable record", "id", id, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ListByProjectPrefix returns records whose name begins with prefix, used by
// the compose orchestrator's orphan-removal and project teardown.
func (s *Store) ListByProjectPrefix(prefix string) ([]*Record, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, r := range all {
		if strings.HasPrefix(r.Name, prefix) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Remove deletes a record file. Tolerates the file already being gone.
func (s *Store) Remove(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: remove %s: %w", id, err)
	}
	return nil
}

// FormatPortMapping renders "host:container" the way Record.Ports are
// described in the compose manifest.
func FormatPortMapping(p PortMapping) string {
	return strconv.Itoa(p.Host) + ":" + strconv.Itoa(p.Container)
}
