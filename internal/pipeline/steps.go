package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/finance-admin/internal/archive"
	"github.com/dvloznov/finance-admin/internal/avatar"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/dvloznov/finance-admin/internal/store"
)

// PipelineStep represents a single step in the import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	ImportID string
	Source   string
	Reader   io.ReaderAt
	Size     int64

	Archive      *archive.Contents
	User         *domain.User
	Transactions []*domain.Transaction
	Avatar       []byte // normalized PNG, nil when the archive had none
	AvatarKey    string

	Outcome *store.ImportOutcome
	Result  *domain.UploadResult
}

// Step 1: ReadArchiveStep validates the container and extracts the members.
type ReadArchiveStep struct {
	Limits archive.Limits
}

func (s *ReadArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	contents, err := archive.Read(state.Reader, state.Size, s.Limits)
	if err != nil {
		return err
	}
	state.Archive = contents
	return nil
}

// Step 2: NormalizeUserStep parses userData.json.
type NormalizeUserStep struct{}

func (s *NormalizeUserStep) Execute(ctx context.Context, state *PipelineState) error {
	user, err := NormalizeUser(state.Archive.UserData)
	if err != nil {
		return err
	}
	state.User = user
	return nil
}

// Step 3: NormalizeTransactionsStep parses transactions.json and links every
// entry to the archive's user.
type NormalizeTransactionsStep struct{}

func (s *NormalizeTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := NormalizeTransactions(state.Archive.Transactions, state.User.UserID)
	if err != nil {
		return err
	}
	state.Transactions = txs
	return nil
}

// Step 4: PrepareAvatarStep normalizes avatar.png when present.
type PrepareAvatarStep struct {
	MaxDimension int
}

func (s *PrepareAvatarStep) Execute(ctx context.Context, state *PipelineState) error {
	if !state.Archive.HasAvatar() {
		return nil
	}
	data, err := avatar.Normalize(state.Archive.Avatar, s.MaxDimension)
	if err != nil {
		return err
	}
	state.Avatar = data
	state.AvatarKey = avatar.Key(data)
	return nil
}

// Step 5: StoreAvatarStep writes the avatar before the database commit. Names
// are content addressed, so an avatar left behind by a failed import is
// harmless and the next successful import of the same picture reuses it.
type StoreAvatarStep struct {
	Store AvatarStore
}

func (s *StoreAvatarStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Avatar == nil {
		return nil
	}
	if s.Store == nil {
		log := logger.FromContext(ctx)
		log.Warn().Str("user_id", state.User.UserID).Msg("no avatar store configured, avatar ignored")
		state.Avatar, state.AvatarKey = nil, ""
		return nil
	}
	if err := s.Store.Save(ctx, state.AvatarKey, state.Avatar); err != nil {
		return fmt.Errorf("StoreAvatarStep: saving %s: %w", state.AvatarKey, err)
	}
	return nil
}

// Step 6: PersistStep upserts the user and inserts the transactions atomically.
type PersistStep struct {
	Repo   ImportRepository
	Policy domain.DuplicatePolicy
	Now    func() time.Time
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	batch := &store.ImportBatch{
		ImportID:     state.ImportID,
		Source:       state.Source,
		Checksum:     state.Archive.Checksum,
		User:         state.User,
		Transactions: state.Transactions,
		Policy:       s.Policy,
		AvatarKey:    state.AvatarKey,
		At:           s.Now().UTC(),
	}
	outcome, err := s.Repo.ApplyImport(ctx, batch)
	if err != nil {
		return err
	}
	state.Outcome = outcome
	return nil
}

// Step 7: ReportStep builds the upload result.
type ReportStep struct{}

func (s *ReportStep) Execute(ctx context.Context, state *PipelineState) error {
	r := &domain.UploadResult{
		ImportID:              state.ImportID,
		UserProcessed:         true,
		UserID:                state.User.UserID,
		UserCreated:           state.Outcome.UserCreated,
		TransactionsProcessed: len(state.Transactions),
		TransactionsCreated:   len(state.Outcome.Created),
		DuplicateReferences:   state.Outcome.Duplicates,
		AvatarProcessed:       state.AvatarKey != "",
		Avatar:                state.AvatarKey,
	}
	r.Message = resultMessage(r)
	state.Result = r
	return nil
}

// Step 8: MirrorStep enqueues the warehouse mirror. Failing to enqueue never
// fails the import; the rows are already committed.
type MirrorStep struct {
	Publisher MirrorPublisher
}

func (s *MirrorStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Publisher == nil || len(state.Outcome.Created) == 0 {
		return nil
	}
	job := &jobs.MirrorTransactionsJob{
		ImportID:   state.ImportID,
		UserID:     state.User.UserID,
		References: state.Outcome.Created,
	}
	if err := s.Publisher.PublishMirrorTransactions(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("import_id", state.ImportID).Msg("failed to enqueue mirror job")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially. Cancellation is only
// honored until the import is committed; the remaining steps describe and
// mirror committed rows and always run.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if state.Outcome != nil {
			ctx = context.WithoutCancel(ctx)
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

func resultMessage(r *domain.UploadResult) string {
	msg := fmt.Sprintf("Import completed: %d transactions processed (%d new", r.TransactionsProcessed, r.TransactionsCreated)
	if n := len(r.DuplicateReferences); n > 0 {
		msg += fmt.Sprintf(", %d already present", n)
	}
	msg += ")"
	if r.UserCreated {
		msg += ", user created"
	} else {
		msg += ", user updated"
	}
	if r.AvatarProcessed {
		msg += ", avatar stored"
	}
	return msg
}
