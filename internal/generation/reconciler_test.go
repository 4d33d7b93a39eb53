package generation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studio/internal/domain"
)

func success(urls ...string) domain.Signal {
	return domain.Signal{Outcome: domain.OutcomeSuccess, Result: &domain.ResultPayload{URLs: urls}, Source: domain.SourceWebhook}
}

func failure(detail string) domain.Signal {
	return domain.Signal{Outcome: domain.OutcomeFailure, ErrorDetail: detail, Source: domain.SourceWebhook}
}

func TestApplyCompletionSuccessIsIdempotent(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{})
	h.processingJob(t, "j1", 40)
	ctx := context.Background()

	first, applied, err := h.reconciler.ApplyCompletion(ctx, "j1", success("https://cdn/a.mp4"))
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	second, applied, err := h.reconciler.ApplyCompletion(ctx, "j1", success("https://cdn/b.mp4"))
	if err != nil || applied {
		t.Fatalf("second apply: applied=%v err=%v", applied, err)
	}
	h.reconciler.Wait()

	if second.Status != domain.JobStatusCompleted || second.Result.URLs[0] != "https://cdn/a.mp4" {
		t.Fatalf("second call changed state: %+v", second.Result)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("completed_at moved: %v vs %v", second.CompletedAt, first.CompletedAt)
	}
	if got := h.thumbs.calls.Load(); got != 1 {
		t.Fatalf("thumbnail ran %d times", got)
	}
	if refunds := h.refundEntries(t, "j1"); len(refunds) != 0 {
		t.Fatalf("completed job refunded: %+v", refunds)
	}
	if bal := h.balance(t); bal != 60 {
		t.Fatalf("balance = %d, want 60", bal)
	}
}

func TestApplyCompletionFailureRefundsOnce(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{})
	h.processingJob(t, "j1", 40)
	ctx := context.Background()

	job, applied, err := h.reconciler.ApplyCompletion(ctx, "j1", failure("content policy"))
	if err != nil || !applied {
		t.Fatalf("apply failure: applied=%v err=%v", applied, err)
	}
	if !job.Refunded || job.ErrorDetail != "content policy" {
		t.Fatalf("unexpected job %+v", job)
	}
	for _, sig := range []domain.Signal{failure("again"), success("https://cdn/late.mp4")} {
		again, applied, err := h.reconciler.ApplyCompletion(ctx, "j1", sig)
		if err != nil || applied {
			t.Fatalf("replay: applied=%v err=%v", applied, err)
		}
		if again.Status != domain.JobStatusFailed || again.ErrorDetail != "content policy" {
			t.Fatalf("replay changed state: %+v", again)
		}
	}
	if refunds := h.refundEntries(t, "j1"); len(refunds) != 1 || refunds[0].Amount != 40 {
		t.Fatalf("refund entries %+v", refunds)
	}
	if bal := h.balance(t); bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
	if h.thumbs.calls.Load() != 0 {
		t.Fatalf("thumbnail ran for failed job")
	}
}

func TestApplyCompletionConflictingSignalsRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, 100, SupervisorOptions{})
		h.processingJob(t, "j1", 40)

		var wg sync.WaitGroup
		start := make(chan struct{})
		wins := make(chan domain.JobStatus, 2)
		for _, sig := range []domain.Signal{success("https://cdn/a.mp4"), failure("provider error")} {
			wg.Add(1)
			go func(sig domain.Signal) {
				defer wg.Done()
				<-start
				job, applied, err := h.reconciler.ApplyCompletion(context.Background(), "j1", sig)
				if err != nil {
					t.Errorf("apply: %v", err)
					return
				}
				if !job.Status.Terminal() {
					t.Errorf("non-terminal record returned: %s", job.Status)
				}
				if applied {
					wins <- job.Status
				}
			}(sig)
		}
		close(start)
		wg.Wait()
		close(wins)

		var winners []domain.JobStatus
		for w := range wins {
			winners = append(winners, w)
		}
		if len(winners) != 1 {
			t.Fatalf("iteration %d: winners %v", i, winners)
		}
		refunds := h.refundEntries(t, "j1")
		switch winners[0] {
		case domain.JobStatusFailed:
			if len(refunds) != 1 || h.balance(t) != 100 {
				t.Fatalf("iteration %d: failure won but refunds=%d balance=%d", i, len(refunds), h.balance(t))
			}
		case domain.JobStatusCompleted:
			if len(refunds) != 0 || h.balance(t) != 60 {
				t.Fatalf("iteration %d: success won but refunds=%d balance=%d", i, len(refunds), h.balance(t))
			}
		}
	}
}

func TestApplyCompletionRejectsPendingJob(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{})
	ctx := context.Background()
	if err := h.store.Create(ctx, &domain.Job{ID: "p1", UserID: "u1", Kind: domain.JobKindImage}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, applied, err := h.reconciler.ApplyCompletion(ctx, "p1", success("x"))
	if applied || !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, applied=%v err=%v", applied, err)
	}
	if _, _, err := h.reconciler.ApplyCompletion(ctx, "missing", success("x")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyCompletionRejectsSuccessWithoutResult(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{})
	ctx := context.Background()
	h.processingJob(t, "j1", 40)
	sig := domain.Signal{Outcome: domain.OutcomeSuccess, Source: domain.SourceWebhook}
	_, applied, err := h.reconciler.ApplyCompletion(ctx, "j1", sig)
	if applied || !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, applied=%v err=%v", applied, err)
	}
	job, err := h.store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.Result != nil {
		t.Fatalf("job changed: %+v", job)
	}
}

func TestThumbnailFailureDoesNotUndoCompletion(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{})
	h.thumbs.err = errors.New("ffmpeg missing")
	h.processingJob(t, "j1", 40)
	job, applied, err := h.reconciler.ApplyCompletion(context.Background(), "j1", success("https://cdn/a.mp4"))
	h.reconciler.Wait()
	if err != nil || !applied || job.Status != domain.JobStatusCompleted {
		t.Fatalf("apply: %+v applied=%v err=%v", job, applied, err)
	}
	stored, _ := h.service.GetJob(context.Background(), "j1")
	if stored.Status != domain.JobStatusCompleted {
		t.Fatalf("stored status %s", stored.Status)
	}
}
