package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-admin/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.MirrorTransactionsJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state: %+v", jobID, want, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	defer q.Close()

	var calls int32
	if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	job := &jobs.MirrorTransactionsJob{ImportID: "imp-1", References: []string{"T1"}}
	if err := q.PublishMirrorTransactions(ctx, job); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("expected job ID to be assigned")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.CompletedAt == nil || atomic.LoadInt32(&calls) != 1 {
		t.Errorf("unexpected final state: %+v (calls=%d)", done, calls)
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(4, 1, store)
	q.backoff = func(int) time.Duration { return time.Millisecond }
	defer q.Close()

	var calls int32
	if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("warehouse unavailable")
	}); err != nil {
		t.Fatal(err)
	}

	job := &jobs.MirrorTransactionsJob{ImportID: "imp-1", MaxRetries: 2}
	if err := q.PublishMirrorTransactions(ctx, job); err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 2 || failed.Error != "warehouse unavailable" {
		t.Errorf("unexpected final state: %+v", failed)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("handler called %d times, want 3", got)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishMirrorTransactions(context.Background(), &jobs.MirrorTransactionsJob{}); err == nil {
		t.Error("expected error publishing to a closed queue")
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, imp := range []string{"a", "b", "a"} {
		job := &jobs.MirrorTransactionsJob{
			JobID:     string(rune('1' + i)),
			ImportID:  imp,
			Status:    jobs.JobStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := s.ListJobs(ctx, jobs.JobFilter{})
	if len(all) != 3 || all[0].JobID != "3" {
		t.Errorf("expected newest first, got %d jobs starting with %q", len(all), all[0].JobID)
	}

	filtered, _ := s.ListJobs(ctx, jobs.JobFilter{ImportID: "a", Limit: 1})
	if len(filtered) != 1 || filtered[0].ImportID != "a" {
		t.Errorf("unexpected filtered jobs: %+v", filtered)
	}

	if _, err := s.GetJob(ctx, "missing"); err == nil {
		t.Error("expected error for missing job")
	}
}

func TestDrain_MarksUnfinishedJobsFailed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(4, 1, store)

	// No consumer is started, so published jobs stay pending.
	for _, id := range []string{"a", "b"} {
		if err := q.PublishMirrorTransactions(ctx, &jobs.MirrorTransactionsJob{JobID: id, ImportID: "imp"}); err != nil {
			t.Fatal(err)
		}
	}
	done := &jobs.MirrorTransactionsJob{JobID: "c", Status: jobs.JobStatusCompleted, CreatedAt: time.Now()}
	if err := store.SaveJob(ctx, done); err != nil {
		t.Fatal(err)
	}

	n, err := jobs.Drain(ctx, q, store)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if n != 2 {
		t.Errorf("abandoned %d jobs, want 2", n)
	}

	for id, want := range map[string]jobs.JobStatus{"a": jobs.JobStatusFailed, "b": jobs.JobStatusFailed, "c": jobs.JobStatusCompleted} {
		job, err := store.GetJob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status != want {
			t.Errorf("job %s status = %s, want %s", id, job.Status, want)
		}
		if want == jobs.JobStatusFailed && job.Error != jobs.AbandonedMessage {
			t.Errorf("job %s error = %q", id, job.Error)
		}
	}

	if err := q.PublishMirrorTransactions(ctx, &jobs.MirrorTransactionsJob{}); err == nil {
		t.Error("publish after Drain should fail")
	}
}
