package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-admin/internal/archive/archivetest"
	"github.com/dvloznov/finance-admin/internal/avatar"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/jobs"
	"github.com/dvloznov/finance-admin/internal/store"
	"github.com/dvloznov/finance-admin/internal/store/inmemory"
)

const (
	sampleUser = `{"userId":"u1","firstName":"Ada","lastName":"Lovelace"}`
	sampleTxs  = `[{"reference":"T1","amount":12.5,"currency":"USD","timestamp":"2024-01-02T10:00:00Z"}]`
)

// MockPublisher records published jobs.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.MirrorTransactionsJob) error
	Published   []*jobs.MirrorTransactionsJob
}

func (m *MockPublisher) PublishMirrorTransactions(ctx context.Context, job *jobs.MirrorTransactionsJob) error {
	m.Published = append(m.Published, job)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, job)
	}
	return nil
}

// MockRepository wraps ApplyImport for failure injection.
type MockRepository struct {
	ApplyImportFunc func(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error)
}

func (m *MockRepository) ApplyImport(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error) {
	return m.ApplyImportFunc(ctx, batch)
}

func runImport(t *testing.T, im *Importer, data []byte) (*domain.UploadResult, error) {
	t.Helper()
	return im.Import(context.Background(), bytes.NewReader(data), int64(len(data)), "test.zip")
}

func TestImport_ExampleArchive(t *testing.T) {
	repo := inmemory.NewStore()
	im := NewImporter(repo, nil)

	result, err := runImport(t, im, archivetest.Standard(t, sampleUser, sampleTxs, nil))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if !result.UserProcessed || result.TransactionsProcessed != 1 || result.AvatarProcessed {
		t.Errorf("unexpected result: %+v", result)
	}
	if !result.UserCreated || result.TransactionsCreated != 1 {
		t.Errorf("unexpected counts: %+v", result)
	}

	tx, err := repo.GetTransaction(context.Background(), "T1")
	if err != nil {
		t.Fatalf("T1 not stored: %v", err)
	}
	if tx.UserID != "u1" {
		t.Errorf("T1 linked to %q, want u1", tx.UserID)
	}
}

func TestImport_MissingMembersPersistNothing(t *testing.T) {
	tests := []struct {
		name    string
		entries []archivetest.Entry
		wantMsg string
	}{
		{
			name:    "missing userData",
			entries: []archivetest.Entry{{Name: "transactions.json", Body: []byte(sampleTxs)}},
			wantMsg: "missing userData.json",
		},
		{
			name:    "missing transactions",
			entries: []archivetest.Entry{{Name: "userData.json", Body: []byte(sampleUser)}},
			wantMsg: "missing transactions.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := inmemory.NewStore()
			_, err := runImport(t, NewImporter(repo, nil), archivetest.Build(t, tt.entries...))

			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", verr.Error(), tt.wantMsg)
			}

			users, _ := repo.ListUsers(context.Background())
			txs, _ := repo.ListTransactions(context.Background(), domain.TransactionFilter{})
			if len(users) != 0 || len(txs) != 0 {
				t.Errorf("persisted %d users and %d transactions, want none", len(users), len(txs))
			}
		})
	}
}

func TestImport_Idempotent(t *testing.T) {
	repo := inmemory.NewStore()
	im := NewImporter(repo, nil)
	data := archivetest.Standard(t, sampleUser, sampleTxs, nil)

	if _, err := runImport(t, im, data); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	result, err := runImport(t, im, data)
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}

	if result.UserCreated || result.TransactionsCreated != 0 {
		t.Errorf("second import changed state: %+v", result)
	}
	if result.TransactionsProcessed != 1 || len(result.DuplicateReferences) != 1 {
		t.Errorf("unexpected duplicate report: %+v", result)
	}

	txs, _ := repo.ListTransactions(context.Background(), domain.TransactionFilter{})
	if len(txs) != 1 {
		t.Errorf("stored %d transactions, want 1", len(txs))
	}
}

func TestImport_InvalidAmountRejectsBatch(t *testing.T) {
	repo := inmemory.NewStore()
	txs := `[{"reference":"T1","amount":1,"timestamp":"2024-01-02"},{"reference":"T2","amount":"abc","timestamp":"2024-01-02"}]`

	_, err := runImport(t, NewImporter(repo, nil), archivetest.Standard(t, sampleUser, txs, nil))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Issues) != 1 || verr.Issues[0].Reference != "T2" {
		t.Errorf("issues = %v, want one for T2", verr.Issues)
	}

	if _, err := repo.GetUser(context.Background(), "u1"); err == nil {
		t.Error("user should not be stored when the batch is invalid")
	}
}

func TestImport_DuplicatePolicies(t *testing.T) {
	changed := `[{"reference":"T1","amount":99,"currency":"USD","timestamp":"2024-01-02T10:00:00Z"}]`

	tests := []struct {
		name       string
		policy     domain.DuplicatePolicy
		secondTxs  string
		wantErr    bool
		wantCreate int
	}{
		{name: "skip identical", policy: domain.DuplicateSkip, secondTxs: sampleTxs},
		{name: "skip conflicting content", policy: domain.DuplicateSkip, secondTxs: changed, wantErr: true},
		{name: "reject identical", policy: domain.DuplicateReject, secondTxs: sampleTxs, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := inmemory.NewStore()
			im := NewImporter(repo, nil, WithDuplicatePolicy(tt.policy))

			if _, err := runImport(t, im, archivetest.Standard(t, sampleUser, sampleTxs, nil)); err != nil {
				t.Fatalf("first import failed: %v", err)
			}
			result, err := runImport(t, im, archivetest.Standard(t, sampleUser, tt.secondTxs, nil))
			if tt.wantErr {
				var conflict *domain.ConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("expected ConflictError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("second import failed: %v", err)
			}
			if result.TransactionsCreated != tt.wantCreate {
				t.Errorf("created = %d, want %d", result.TransactionsCreated, tt.wantCreate)
			}
		})
	}
}

func TestImport_Avatar(t *testing.T) {
	dir := t.TempDir()
	avatars, err := avatar.NewDiskStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	repo := inmemory.NewStore()
	im := NewImporter(repo, avatars, WithAvatarMaxDimension(64))

	result, err := runImport(t, im, archivetest.Standard(t, sampleUser, sampleTxs, archivetest.PNG(t, 200, 100)))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if !result.AvatarProcessed || !avatar.ValidKey(result.Avatar) {
		t.Fatalf("avatar not reported: %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, result.Avatar)); err != nil {
		t.Errorf("avatar file missing: %v", err)
	}

	u, _ := repo.GetUser(context.Background(), "u1")
	if u.Avatar != result.Avatar {
		t.Errorf("user avatar = %q, want %q", u.Avatar, result.Avatar)
	}

	// A later archive without an avatar keeps the stored one.
	if _, err := runImport(t, im, archivetest.Standard(t, sampleUser, `[]`, nil)); err != nil {
		t.Fatal(err)
	}
	u, _ = repo.GetUser(context.Background(), "u1")
	if u.Avatar != result.Avatar {
		t.Errorf("avatar dropped by avatar-less import: %q", u.Avatar)
	}
}

func TestImport_InvalidAvatar(t *testing.T) {
	repo := inmemory.NewStore()
	_, err := runImport(t, NewImporter(repo, nil), archivetest.Standard(t, sampleUser, sampleTxs, []byte("not an image")))

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := repo.GetUser(context.Background(), "u1"); err == nil {
		t.Error("user should not be stored when the avatar is invalid")
	}
}

func TestImport_PublishesMirrorJob(t *testing.T) {
	pub := &MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.MirrorTransactionsJob) error {
		return errors.New("queue is closed")
	}}
	im := NewImporter(inmemory.NewStore(), nil, WithPublisher(pub))

	result, err := runImport(t, im, archivetest.Standard(t, sampleUser, sampleTxs, nil))
	if err != nil {
		t.Fatalf("publish failure must not fail the import: %v", err)
	}
	if len(pub.Published) != 1 {
		t.Fatalf("published %d jobs, want 1", len(pub.Published))
	}
	job := pub.Published[0]
	if job.ImportID != result.ImportID || len(job.References) != 1 || job.References[0] != "T1" {
		t.Errorf("unexpected job: %+v", job)
	}

	// Nothing new, nothing to mirror.
	if _, err := runImport(t, im, archivetest.Standard(t, sampleUser, sampleTxs, nil)); err != nil {
		t.Fatal(err)
	}
	if len(pub.Published) != 1 {
		t.Errorf("published %d jobs after a duplicate import, want 1", len(pub.Published))
	}
}

func TestImport_CancelAfterCommitStillReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := inmemory.NewStore()
	repo := &MockRepository{ApplyImportFunc: func(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error) {
		outcome, err := mem.ApplyImport(ctx, batch)
		cancel() // client went away right after the commit
		return outcome, err
	}}
	pub := &MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.MirrorTransactionsJob) error {
		if ctx.Err() != nil {
			t.Errorf("mirror job published with a cancelled context: %v", ctx.Err())
		}
		return nil
	}}
	im := NewImporter(repo, nil, WithPublisher(pub))

	data := archivetest.Standard(t, sampleUser, sampleTxs, nil)
	result, err := im.Import(ctx, bytes.NewReader(data), int64(len(data)), "test.zip")
	if err != nil {
		t.Fatalf("committed import returned error: %v", err)
	}
	if result == nil || result.TransactionsCreated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pub.Published) != 1 {
		t.Errorf("published %d jobs, want 1", len(pub.Published))
	}
}

func TestImport_CancelBeforeCommitPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := inmemory.NewStore()
	im := NewImporter(repo, nil)

	data := archivetest.Standard(t, sampleUser, sampleTxs, nil)
	if _, err := im.Import(ctx, bytes.NewReader(data), int64(len(data)), "test.zip"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	users, _ := repo.ListUsers(context.Background())
	if len(users) != 0 {
		t.Errorf("cancelled import stored %d users", len(users))
	}
}

func TestImport_RepositoryError(t *testing.T) {
	repo := &MockRepository{ApplyImportFunc: func(ctx context.Context, batch *store.ImportBatch) (*store.ImportOutcome, error) {
		if batch.At.IsZero() || batch.Checksum == "" {
			t.Errorf("batch missing bookkeeping: %+v", batch)
		}
		return nil, errors.New("connection refused")
	}}
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	im := NewImporter(repo, nil, WithClock(func() time.Time { return fixed }))

	_, err := runImport(t, im, archivetest.Standard(t, sampleUser, sampleTxs, nil))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected repository error, got %v", err)
	}
}
