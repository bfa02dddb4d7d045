package compose

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nate-c/lockbox/internal/dbmigrations"
)

// MonitorStore persists the auto-update monitor's per-service drift marker
// (last observed Last-Modified/ETag or content hash) so a monitor restart
// doesn't re-prime and silently swallow one legitimate drift event.
type MonitorStore struct {
	db *sql.DB
}

// MonitorDBPath is the well-known location of the monitor's drift database.
func MonitorDBPath(installRoot string) string {
	return filepath.Join(installRoot, "state", "monitor.db")
}

// OpenMonitorStore opens (creating and migrating if necessary) the drift database.
func OpenMonitorStore(installRoot string) (*MonitorStore, error) {
	path := MonitorDBPath(installRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("compose: mkdir state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("compose: open monitor db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("compose: enable WAL: %w", err)
	}
	if err := dbmigrations.Apply(db); err != nil {
		db.Close()
		return nil, err
	}
	return &MonitorStore{db: db}, nil
}

func (s *MonitorStore) Close() error {
	return s.db.Close()
}

// Observe records marker as the latest drift signal for project/service and
// reports whether this observation should trigger an update: the very
// first observation always primes (records but never triggers), and any
// subsequent change in marker triggers exactly once.
func (s *MonitorStore) Observe(project, service, marker string) (triggered bool, err error) {
	var existing string
	err = s.db.QueryRow(
		"SELECT marker FROM service_drift WHERE project = ? AND service = ?",
		project, service,
	).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(
			"INSERT INTO service_drift (project, service, observed_at, marker, primed) VALUES (?, ?, ?, ?, 1)",
			project, service, time.Now(), marker,
		)
		return false, err
	case err != nil:
		return false, fmt.Errorf("compose: query drift state: %w", err)
	case existing == marker:
		return false, nil
	default:
		_, err = s.db.Exec(
			"UPDATE service_drift SET marker = ?, observed_at = ? WHERE project = ? AND service = ?",
			marker, time.Now(), project, service,
		)
		return true, err
	}
}
