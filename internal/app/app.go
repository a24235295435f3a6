// Package app wires configuration into the stores and services shared by the
// binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/finance-admin/internal/avatar"
	"github.com/dvloznov/finance-admin/internal/config"
	"github.com/dvloznov/finance-admin/internal/infra/gcs"
	"github.com/dvloznov/finance-admin/internal/infra/postgres"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/pipeline"
	"github.com/dvloznov/finance-admin/internal/store"
	"github.com/dvloznov/finance-admin/internal/store/inmemory"
	"github.com/dvloznov/finance-admin/migrations"
)

// OpenStore returns the Postgres repository when DATABASE_URL is set, applying
// pending migrations first when AUTO_MIGRATE is on. Without a database URL it
// falls back to the in-memory store, which loses everything on exit.
func OpenStore(ctx context.Context, cfg *config.Config, appliedBy string) (store.Repository, error) {
	log := logger.FromContext(ctx)

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set - using in-memory store, data is not persisted")
		return inmemory.NewStore(), nil
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("OpenStore: %w", err)
	}

	if cfg.AutoMigrate {
		applied, err := postgres.Migrate(ctx, pool, migrations.PostgresFS(), appliedBy)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		log.Info().Int("applied", applied).Msg("Database migrations up to date")
	}

	return postgres.NewRepository(pool), nil
}

// AvatarStore is an avatar.Store that may hold a client to release.
type AvatarStore interface {
	avatar.Store
	Close() error
}

type diskAvatars struct {
	*avatar.DiskStore
}

func (diskAvatars) Close() error { return nil }

// OpenAvatarStore returns the GCS avatar store when GCS_BUCKET is set and the
// directory store under AVATAR_DIR otherwise.
func OpenAvatarStore(ctx context.Context, cfg *config.Config) (AvatarStore, error) {
	log := logger.FromContext(ctx)

	if cfg.GCSBucket != "" {
		s, err := gcs.NewAvatarStore(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("OpenAvatarStore: %w", err)
		}
		log.Info().Str("bucket", cfg.GCSBucket).Msg("Storing avatars in GCS")
		return s, nil
	}

	s, err := avatar.NewDiskStore(cfg.AvatarDir)
	if err != nil {
		return nil, fmt.Errorf("OpenAvatarStore: %w", err)
	}
	log.Info().Str("dir", cfg.AvatarDir).Msg("Storing avatars on disk")
	return diskAvatars{s}, nil
}

// NewImporter builds the import pipeline from configuration. publisher may be
// nil to disable the warehouse mirror.
func NewImporter(cfg *config.Config, repo pipeline.ImportRepository, avatars avatar.Store, publisher pipeline.MirrorPublisher) *pipeline.Importer {
	opts := []pipeline.Option{
		pipeline.WithLimits(cfg.ArchiveLimits()),
		pipeline.WithDuplicatePolicy(cfg.DuplicatePolicy()),
		pipeline.WithAvatarMaxDimension(cfg.AvatarMaxDimension),
	}
	if publisher != nil {
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	return pipeline.NewImporter(repo, avatars, opts...)
}

// Hostname identifies this process in the schema_migrations audit column.
func Hostname(binary string) string {
	host, err := os.Hostname()
	if err != nil {
		return binary
	}
	return binary + "@" + host
}
