package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-admin/internal/infra/postgres"
)

func TestMigrationSource_Embedded(t *testing.T) {
	list, err := postgres.ReadMigrations(migrationSource(""))
	if err != nil {
		t.Fatalf("ReadMigrations: %v", err)
	}
	if len(list) < 2 {
		t.Fatalf("expected embedded migrations, got %d", len(list))
	}
	for i, m := range list {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d, want contiguous versions", i, m.Version)
		}
	}
}

func TestMigrationSource_Directory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0001_init.sql": "CREATE TABLE a (id INT);",
		"0002_more.sql": "CREATE TABLE b (id INT);",
		"README.md":     "not a migration",
		"001_short.sql": "skipped: wrong number format",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	list, err := postgres.ReadMigrations(migrationSource(dir))
	if err != nil {
		t.Fatalf("ReadMigrations: %v", err)
	}
	if len(list) != 2 || list[0].Name != "init" || list[1].Name != "more" {
		t.Errorf("got %+v", list)
	}
}
