package state

import (
	"errors"
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r := &Record{ID: "abc123def456", Name: "web", Image: "myapp:latest", Status: StatusStarting, Created: time.Now()}
	if err := s.Create(r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "web" || got.Image != "myapp:latest" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	s := newTestStore(t)
	r := &Record{ID: "dupe00000000", Name: "a"}
	if err := s.Create(r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(&Record{ID: "dupe00000000", Name: "b"}); err == nil {
		t.Fatalf("expected error creating duplicate id")
	}
}

func TestCreateDuplicateName(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(&Record{ID: "id1", Name: "shared"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create(&Record{ID: "id2", Name: "shared"})
	if !errors.Is(err, ErrNameInUse) {
		t.Fatalf("expected ErrNameInUse, got %v", err)
	}
}

func TestResolveByIDOrName(t *testing.T) {
	s := newTestStore(t)
	r := &Record{ID: "id1", Name: "web"}
	if err := s.Create(r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got, err := s.Resolve("id1"); err != nil || got.ID != "id1" {
		t.Fatalf("Resolve by id: %+v, %v", got, err)
	}
	if got, err := s.Resolve("web"); err != nil || got.ID != "id1" {
		t.Fatalf("Resolve by name: %+v, %v", got, err)
	}
	if _, err := s.Resolve("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSkipsCorruptEntries(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(&Record{ID: "good1", Name: "good"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := writeRaw(s, "bad1", []byte("{not json")); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "good1" {
		t.Fatalf("expected only the good record, got %+v", list)
	}
}

func writeRaw(s *Store, id string, data []byte) error {
	return os.WriteFile(s.path(id), data, 0o644)
}

func TestListByProjectPrefix(t *testing.T) {
	s := newTestStore(t)
	must(t, s.Create(&Record{ID: "id1", Name: "proj_web"}))
	must(t, s.Create(&Record{ID: "id2", Name: "proj_db"}))
	must(t, s.Create(&Record{ID: "id3", Name: "other_svc"}))

	matches, err := s.ListByProjectPrefix("proj_")
	if err != nil {
		t.Fatalf("ListByProjectPrefix: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestRemoveToleratesMissing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Remove("never-existed"); err != nil {
		t.Fatalf("Remove of missing record should not error: %v", err)
	}
}

func TestNewIDFormatAndUniqueness(t *testing.T) {
	a := NewID()
	b := NewID()
	if len(a) != 12 {
		t.Fatalf("NewID length = %d, want 12", len(a))
	}
	for _, r := range a {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			t.Fatalf("NewID %q contains non-hex rune %q", a, r)
		}
	}
	if a == b {
		t.Fatalf("two calls to NewID produced the same id: %q", a)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
