// Package worker runs background jobs from the SQLite job queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/rfpd/internal/inbound"
	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/storage"
)

var errBadPayload = errors.New("invalid job payload")

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	FailJobPermanently(id string, errMsg string) error
}

// ProposalParser extracts a proposal from a stored vendor reply.
type ProposalParser interface {
	Parse(ctx context.Context, rawEmailID string) (storage.Proposal, error)
}

// Worker processes parse_proposal jobs enqueued for new vendor replies.
type Worker struct {
	store  JobStore
	parser ProposalParser
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, parser ProposalParser, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		parser: parser,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single parse_proposal job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{inbound.JobParseProposal})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		final := permanent(err)
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "final", final, "error", err)
		fail := w.store.FailJob
		if final {
			fail = w.store.FailJobPermanently
		}
		if failErr := fail(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload inbound.AutoParsePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("%w: %w", errBadPayload, err)
	}

	p, err := w.parser.Parse(ctx, payload.RawEmailID)
	if err != nil {
		return fmt.Errorf("parsing proposal for raw email %s: %w", payload.RawEmailID, err)
	}

	w.logger.Info("auto-parsed proposal", "job_id", job.ID, "raw_email_id", payload.RawEmailID, "proposal_id", p.ID)
	return nil
}

// permanent reports whether another attempt cannot help. Model failures count:
// resubmitting a parse is left to the user.
func permanent(err error) bool {
	for _, target := range []error{
		errBadPayload,
		proposal.ErrInvalidInput,
		proposal.ErrNotFound,
		proposal.ErrParse,
		proposal.ErrUpstream,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
