package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-admin/internal/avatar"
	"github.com/dvloznov/finance-admin/internal/config"
	"github.com/dvloznov/finance-admin/internal/store/inmemory"
)

func TestOpenStore_FallsBackToMemory(t *testing.T) {
	repo, err := OpenStore(context.Background(), &config.Config{}, "test")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer repo.Close()

	if _, ok := repo.(*inmemory.Store); !ok {
		t.Errorf("got %T, want *inmemory.Store", repo)
	}
}

func TestOpenStore_BadDatabaseURL(t *testing.T) {
	if _, err := OpenStore(context.Background(), &config.Config{DatabaseURL: "not a url ::"}, "test"); err == nil {
		t.Fatal("expected error for invalid DATABASE_URL")
	}
}

func TestOpenAvatarStore_Disk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "avatars")

	s, err := OpenAvatarStore(context.Background(), &config.Config{AvatarDir: dir})
	if err != nil {
		t.Fatalf("OpenAvatarStore: %v", err)
	}
	defer s.Close()

	name := avatar.Key([]byte("png"))
	if err := s.Save(context.Background(), name, []byte("png")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rc, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc.Close()
}
