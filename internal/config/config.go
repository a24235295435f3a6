// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/dvloznov/finance-admin/internal/archive"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds every setting the binaries read from the environment.
type Config struct {
	HTTPAddr          string        `env:"HTTP_ADDR" env-default:":5000"`
	HTTPReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	HTTPWriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	CORSAllowedOrigin string        `env:"CORS_ALLOWED_ORIGIN" env-default:"*"`

	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" env-default:"true"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"console"`

	UploadMaxArchiveBytes int64 `env:"UPLOAD_MAX_ARCHIVE_BYTES" env-default:"33554432"`
	UploadMaxMemberBytes  int64 `env:"UPLOAD_MAX_MEMBER_BYTES" env-default:"16777216"`
	UploadMaxEntries      int   `env:"UPLOAD_MAX_ENTRIES" env-default:"64"`

	ImportDuplicatePolicy string `env:"IMPORT_DUPLICATE_POLICY" env-default:"skip"`
	UserDeletePolicy      string `env:"USER_DELETE_POLICY" env-default:"cascade"`

	AvatarDir          string `env:"AVATAR_DIR" env-default:"uploads"`
	GCSBucket          string `env:"GCS_BUCKET"`
	AvatarMaxDimension int    `env:"AVATAR_MAX_DIMENSION" env-default:"512"`

	BigQueryProject string `env:"BIGQUERY_PROJECT"`
	BigQueryDataset string `env:"BIGQUERY_DATASET" env-default:"finance"`

	APIBaseURL string `env:"API_BASE_URL" env-default:"http://localhost:5000/api"`

	NotionToken      string `env:"NOTION_TOKEN"`
	NotionDatabaseID string `env:"NOTION_DATABASE_ID"`
}

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are skipped.
func LoadFiles(dotenv ...string) (*Config, error) {
	for _, path := range dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("Load: reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if !c.DuplicatePolicy().Valid() {
		return fmt.Errorf("IMPORT_DUPLICATE_POLICY must be skip or reject, got %q", c.ImportDuplicatePolicy)
	}
	if !c.DeletePolicy().Valid() {
		return fmt.Errorf("USER_DELETE_POLICY must be cascade or restrict, got %q", c.UserDeletePolicy)
	}
	if c.UploadMaxArchiveBytes <= 0 || c.UploadMaxMemberBytes <= 0 || c.UploadMaxEntries <= 0 {
		return errors.New("upload limits must be positive")
	}
	return nil
}

// DuplicatePolicy returns the configured import duplicate policy.
func (c *Config) DuplicatePolicy() domain.DuplicatePolicy {
	return domain.DuplicatePolicy(strings.ToLower(strings.TrimSpace(c.ImportDuplicatePolicy)))
}

// DeletePolicy returns the configured user delete policy.
func (c *Config) DeletePolicy() domain.DeletePolicy {
	return domain.DeletePolicy(strings.ToLower(strings.TrimSpace(c.UserDeletePolicy)))
}

// ArchiveLimits returns the upload limits for the archive reader.
func (c *Config) ArchiveLimits() archive.Limits {
	return archive.Limits{
		MaxArchiveBytes: c.UploadMaxArchiveBytes,
		MaxMemberBytes:  c.UploadMaxMemberBytes,
		MaxEntries:      c.UploadMaxEntries,
	}
}
