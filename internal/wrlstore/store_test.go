package wrlstore

import "testing"

func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplied(t *testing.T) {
	s := newMemStore(t)

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newMemStore(t)

	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d rows after second migrate, got %d", len(migrations), count)
	}
}

func TestSeedThenList(t *testing.T) {
	s := newMemStore(t)

	if err := s.Seed([]string{"SAPARi COAST MIL.", "SAPARi SPA"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Re-seeding must not error or duplicate rows.
	if err := s.Seed([]string{"SAPARi COAST MIL."}); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	wrls, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(wrls) != 2 {
		t.Fatalf("got %d wrls, want 2", len(wrls))
	}
}

func TestGetMissingWRL(t *testing.T) {
	s := newMemStore(t)

	_, ok, err := s.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unregistered world")
	}
}

func TestSetOverridesUpserts(t *testing.T) {
	s := newMemStore(t)

	if err := s.SetOverrides("Custom WRL", 3, 20); err != nil {
		t.Fatalf("SetOverrides: %v", err)
	}
	w, ok, err := s.Get("Custom WRL")
	if err != nil || !ok {
		t.Fatalf("Get after SetOverrides: ok=%v err=%v", ok, err)
	}
	if w.MaxBureaus != 3 || w.MaxUsers != 20 {
		t.Fatalf("got %+v", w)
	}

	if err := s.SetOverrides("Custom WRL", 5, 40); err != nil {
		t.Fatalf("second SetOverrides: %v", err)
	}
	w, _, _ = s.Get("Custom WRL")
	if w.MaxBureaus != 5 || w.MaxUsers != 40 {
		t.Fatalf("expected overrides updated, got %+v", w)
	}
}

func TestRecentSpawnsNewestFirstWithLimit(t *testing.T) {
	s := newMemStore(t)

	for i := 0; i < 5; i++ {
		if err := s.RecordSpawn("Test WRL", uint16(9000+i)); err != nil {
			t.Fatalf("RecordSpawn: %v", err)
		}
	}

	events, err := s.RecentSpawns(3)
	if err != nil {
		t.Fatalf("RecentSpawns: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Port != 9004 {
		t.Fatalf("expected newest-first ordering, got %+v", events[0])
	}
}
