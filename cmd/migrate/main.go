package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dvloznov/finance-admin/internal/config"
	"github.com/dvloznov/finance-admin/internal/infra/postgres"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/migrations"
)

var (
	databaseURL   = flag.String("database-url", "", "PostgreSQL URL (or set DATABASE_URL env)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Directory of NNNN_name.sql files (defaults to the embedded set)")
	listOnly      = flag.Bool("list", false, "List the migrations that would be considered and exit")
)

func main() {
	flag.Parse()

	log := logger.New()

	source := migrationSource(*migrationsDir)
	if *listOnly {
		if err := listMigrations(source); err != nil {
			log.Fatal().Err(err).Msg("Failed to read migrations")
		}
		return
	}

	if *databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		*databaseURL = cfg.DatabaseURL
	}
	if *databaseURL == "" {
		log.Fatal().Msg("Error: -database-url flag or DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	pool, err := postgres.Connect(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool, source, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if applied == 0 {
		fmt.Println("No pending migrations. Database is up to date.")
		return
	}
	fmt.Printf("Successfully applied %d migration(s).\n", applied)
}

// migrationSource returns the embedded migrations, or dir when one is given.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.PostgresFS()
	}
	return os.DirFS(dir)
}

func listMigrations(source fs.FS) error {
	list, err := postgres.ReadMigrations(source)
	if err != nil {
		return err
	}
	for _, m := range list {
		fmt.Printf("%04d  %-40s  %s\n", m.Version, m.Name, m.Checksum[:12])
	}
	return nil
}
