package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/dvloznov/finance-admin/internal/archive"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/google/uuid"
)

// Importer turns an uploaded archive into stored records.
type Importer struct {
	repo      ImportRepository
	avatars   AvatarStore
	publisher MirrorPublisher
	limits    archive.Limits
	policy    domain.DuplicatePolicy
	maxAvatar int
	now       func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLimits sets the archive limits.
func WithLimits(l archive.Limits) Option {
	return func(im *Importer) { im.limits = l }
}

// WithDuplicatePolicy sets how already stored references are treated.
func WithDuplicatePolicy(p domain.DuplicatePolicy) Option {
	return func(im *Importer) { im.policy = p }
}

// WithAvatarMaxDimension bounds stored avatar size.
func WithAvatarMaxDimension(px int) Option {
	return func(im *Importer) { im.maxAvatar = px }
}

// WithPublisher enqueues a mirror job after every import that created rows.
func WithPublisher(p MirrorPublisher) Option {
	return func(im *Importer) { im.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// NewImporter creates an Importer writing through repo. avatars may be nil, in
// which case archive avatars are validated but not stored.
func NewImporter(repo ImportRepository, avatars AvatarStore, opts ...Option) *Importer {
	im := &Importer{
		repo:    repo,
		avatars: avatars,
		policy:  domain.DuplicateSkip,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import runs the full pipeline over the archive in r. source is a free-form
// label recorded on the import (file name, "cli", ...). Either the returned
// result describes committed state or the error explains why nothing was
// committed.
func (im *Importer) Import(ctx context.Context, r io.ReaderAt, size int64, source string) (*domain.UploadResult, error) {
	state := &PipelineState{
		ImportID: uuid.New().String(),
		Source:   source,
		Reader:   r,
		Size:     size,
	}

	log := logger.FromContext(ctx).With().Str("import_id", state.ImportID).Logger()
	ctx = logger.WithContext(ctx, log)
	log.Info().Str("source", source).Int64("bytes", size).Msg("import started")

	p := NewPipeline(
		&ReadArchiveStep{Limits: im.limits},
		&NormalizeUserStep{},
		&NormalizeTransactionsStep{},
		&PrepareAvatarStep{MaxDimension: im.maxAvatar},
		&StoreAvatarStep{Store: im.avatars},
		&PersistStep{Repo: im.repo, Policy: im.policy, Now: im.now},
		&ReportStep{},
		&MirrorStep{Publisher: im.publisher},
	)

	if err := p.Execute(ctx, state); err != nil {
		log.Warn().Err(err).Msg("import rejected")
		return nil, err
	}

	log.Info().
		Str("user_id", state.Result.UserID).
		Int("transactions_created", state.Result.TransactionsCreated).
		Int("duplicates", len(state.Result.DuplicateReferences)).
		Bool("avatar", state.Result.AvatarProcessed).
		Msg("import completed")

	return state.Result, nil
}
