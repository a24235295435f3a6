package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFiles()
	if err != nil {
		t.Fatalf("LoadFiles failed: %v", err)
	}

	if cfg.HTTPAddr != ":5000" {
		t.Errorf("HTTPAddr = %q, want :5000", cfg.HTTPAddr)
	}
	if cfg.HTTPReadTimeout != 30*time.Second {
		t.Errorf("HTTPReadTimeout = %v, want 30s", cfg.HTTPReadTimeout)
	}
	if cfg.DuplicatePolicy() != domain.DuplicateSkip {
		t.Errorf("DuplicatePolicy = %q, want skip", cfg.DuplicatePolicy())
	}
	if cfg.DeletePolicy() != domain.DeleteCascade {
		t.Errorf("DeletePolicy = %q, want cascade", cfg.DeletePolicy())
	}
	if got := cfg.ArchiveLimits(); got.MaxArchiveBytes != 32<<20 || got.MaxMemberBytes != 16<<20 || got.MaxEntries != 64 {
		t.Errorf("ArchiveLimits = %+v", got)
	}
	if cfg.APIBaseURL != "http://localhost:5000/api" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("IMPORT_DUPLICATE_POLICY", "Reject")
	t.Setenv("UPLOAD_MAX_ENTRIES", "10")

	cfg, err := LoadFiles()
	if err != nil {
		t.Fatalf("LoadFiles failed: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DuplicatePolicy() != domain.DuplicateReject {
		t.Errorf("DuplicatePolicy = %q, want reject", cfg.DuplicatePolicy())
	}
	if cfg.UploadMaxEntries != 10 {
		t.Errorf("UploadMaxEntries = %d, want 10", cfg.UploadMaxEntries)
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AVATAR_DIR=/tmp/avatars-from-dotenv\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("AVATAR_DIR") })

	cfg, err := LoadFiles(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadFiles failed: %v", err)
	}
	if cfg.AvatarDir != "/tmp/avatars-from-dotenv" {
		t.Errorf("AvatarDir = %q, want value from .env", cfg.AvatarDir)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, environment should win over .env", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duplicate policy", env: map[string]string{"IMPORT_DUPLICATE_POLICY": "merge"}},
		{name: "bad delete policy", env: map[string]string{"USER_DELETE_POLICY": "orphan"}},
		{name: "zero limit", env: map[string]string{"UPLOAD_MAX_ENTRIES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFiles(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
