package jobs

import (
	"context"
	"fmt"
)

// AbandonedMessage is recorded on jobs that were still queued when their
// consumer shut down.
const AbandonedMessage = "abandoned at shutdown"

// Drain stops consumer, waiting for in-flight jobs until ctx ends, and then
// marks every job that never finished as failed. A queue that lives in
// process memory loses its backlog on exit, so those jobs would otherwise be
// reported as pending forever. It returns the number of jobs marked.
func Drain(ctx context.Context, consumer Consumer, store JobStore) (int, error) {
	stopErr := consumer.Stop(ctx)

	// Bookkeeping runs even when ctx expired while waiting.
	bg := context.WithoutCancel(ctx)
	list, err := store.ListJobs(bg, JobFilter{})
	if err != nil {
		return 0, fmt.Errorf("Drain: listing jobs: %w", err)
	}

	abandoned := 0
	for _, job := range list {
		switch job.Status {
		case JobStatusPending, JobStatusRunning, JobStatusRetrying:
		default:
			continue
		}
		if err := store.UpdateJobStatus(bg, job.JobID, JobStatusFailed, AbandonedMessage); err != nil {
			return abandoned, fmt.Errorf("Drain: marking job %s: %w", job.JobID, err)
		}
		abandoned++
	}

	if stopErr != nil {
		return abandoned, fmt.Errorf("Drain: stopping consumer: %w", stopErr)
	}
	return abandoned, nil
}
