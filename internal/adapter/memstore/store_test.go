package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studio/internal/domain"
)

func seed(t *testing.T, credits int64) (*Store, *domain.Job) {
	t.Helper()
	s := New()
	s.PutUser(domain.User{ID: "u1", Email: "u1@example.com", Role: domain.UserRoleUser, Credits: credits})
	job := &domain.Job{ID: "j1", UserID: "u1", Model: "veo3", Kind: domain.JobKindVideo, CreditsCharged: 40}
	if err := s.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	return s, job
}

func TestDebitRejectsOverdraft(t *testing.T) {
	s, _ := seed(t, 30)
	_, err := s.Debit(context.Background(), "u1", 40, domain.EntryKindDeduction, "j1", "")
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	bal, _ := s.Balance(context.Background(), "u1")
	if bal != 30 {
		t.Fatalf("balance changed: %d", bal)
	}
}

func TestCreditIdempotentOnReference(t *testing.T) {
	s, _ := seed(t, 0)
	ctx := context.Background()
	if _, applied, err := s.Credit(ctx, "u1", 100, domain.EntryKindTopUp, "", "charge:chrg_1", ""); err != nil || !applied {
		t.Fatalf("first credit: applied=%v err=%v", applied, err)
	}
	if _, applied, err := s.Credit(ctx, "u1", 100, domain.EntryKindTopUp, "", "charge:chrg_1", ""); err != nil || applied {
		t.Fatalf("second credit: applied=%v err=%v", applied, err)
	}
	bal, _ := s.Balance(ctx, "u1")
	if bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
}

func TestMarkProcessingOnlyFromPending(t *testing.T) {
	s, _ := seed(t, 100)
	ctx := context.Background()
	if _, err := s.MarkProcessing(ctx, "j1", "task-1"); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if _, err := s.MarkProcessing(ctx, "j1", "task-2"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, err := s.GetByExternalTaskID(ctx, "task-1")
	if err != nil || got.ID != "j1" {
		t.Fatalf("lookup by task: %+v %v", got, err)
	}
}

func TestFinalizeSingleWinner(t *testing.T) {
	s, _ := seed(t, 100)
	ctx := context.Background()
	if _, err := s.MarkProcessing(ctx, "j1", "task-1"); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	var wg sync.WaitGroup
	wins := make(chan domain.JobStatus, 2)
	for _, status := range []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed} {
		wg.Add(1)
		go func(status domain.JobStatus) {
			defer wg.Done()
			_, applied, err := s.Finalize(ctx, "j1", status, &domain.ResultPayload{URLs: []string{"https://cdn/x.mp4"}}, "boom", time.Now())
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if applied {
				wins <- status
			}
		}(status)
	}
	wg.Wait()
	close(wins)

	var winners []domain.JobStatus
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	job, _ := s.Get(ctx, "j1")
	if job.Status != winners[0] {
		t.Fatalf("stored status %s, winner %s", job.Status, winners[0])
	}
	if job.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
}

func TestRefundJobOnce(t *testing.T) {
	s, _ := seed(t, 100)
	ctx := context.Background()
	if _, err := s.Debit(ctx, "u1", 40, domain.EntryKindDeduction, "j1", ""); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, applied, _ := s.RefundJob(ctx, "j1"); applied {
		t.Fatalf("refund applied to a pending job")
	}
	if _, err := s.MarkSubmitFailed(ctx, "j1", "provider down", time.Now()); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, applied, err := s.RefundJob(ctx, "j1")
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if applied != (i == 0) {
			t.Fatalf("attempt %d applied=%v", i, applied)
		}
	}
	bal, _ := s.Balance(ctx, "u1")
	if bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
	entries, _ := s.EntriesForJob(ctx, "j1")
	if len(entries) != 2 {
		t.Fatalf("expected deduction + refund, got %d entries", len(entries))
	}
	pending, _ := s.ListUnrefundedFailures(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("refunded job still listed: %+v", pending)
	}
}

func TestRefundJobMissingUserKeepsJobPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	job := &domain.Job{ID: "orphan", UserID: "gone", Kind: domain.JobKindImage, CreditsCharged: 8}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.MarkSubmitFailed(ctx, "orphan", "provider down", time.Now()); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, applied, err := s.RefundJob(ctx, "orphan"); applied || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, applied=%v err=%v", applied, err)
	}
	got, err := s.Get(ctx, "orphan")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Refunded {
		t.Fatalf("refund flag set without a ledger entry")
	}
	pending, _ := s.ListUnrefundedFailures(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "orphan" {
		t.Fatalf("job not left for the sweep: %+v", pending)
	}
}

func TestLedgerSumsToBalance(t *testing.T) {
	s, _ := seed(t, 250)
	ctx := context.Background()
	if _, err := s.Debit(ctx, "u1", 40, domain.EntryKindDeduction, "j1", ""); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, _, err := s.Credit(ctx, "u1", 15, domain.EntryKindAdjustment, "", "", "goodwill"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	entries, _ := s.Entries(ctx, "u1", 0)
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	bal, _ := s.Balance(ctx, "u1")
	if sum != bal || bal != 225 {
		t.Fatalf("sum %d balance %d", sum, bal)
	}
}
