package generation

import (
	"context"
	"testing"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

func TestSweepRecoversJobs(t *testing.T) {
	h := newHarness(t, 500, SupervisorOptions{Interval: time.Hour, MaxLifetime: 30 * time.Minute})
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.store.SetClock(func() time.Time { return t0 })
	h.processingJob(t, "stale", 40)

	if _, err := h.ledger.Deduct(ctx, "u1", 40, "lost"); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if err := h.store.Create(ctx, &domain.Job{ID: "lost", UserID: "u1", Kind: domain.JobKindVideo, CreditsCharged: 40}); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.store.SetClock(func() time.Time { return t0.Add(30 * time.Minute) })
	fresh := h.processingJob(t, "fresh", 40)

	sweeper := NewSweeper(SweeperDeps{
		Jobs:        h.store,
		Reconciler:  h.reconciler,
		Refunds:     h.ledger,
		Supervisor:  h.supervisor,
		MaxLifetime: 30 * time.Minute,
		Logger:      infra.NopLogger(),
	})
	sweeper.now = func() time.Time { return t0.Add(31 * time.Minute) }

	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.TimedOut != 1 || report.Adopted != 1 || report.Abandoned != 1 || report.Refunded != 1 {
		t.Fatalf("report %+v", report)
	}
	if !h.supervisor.Active(fresh.ID) {
		t.Fatalf("fresh job not adopted")
	}
	for _, id := range []string{"stale", "lost"} {
		job, _ := h.service.GetJob(ctx, id)
		if job.Status != domain.JobStatusFailed || !job.Refunded {
			t.Fatalf("%s: %+v", id, job)
		}
	}
	if bal := h.balance(t); bal != 460 {
		t.Fatalf("balance = %d, want 460", bal)
	}

	again, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != (SweepReport{}) {
		t.Fatalf("second sweep did work: %+v", again)
	}
}

func TestSweepWithoutSupervisorPollsOnce(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{Interval: time.Hour})
	ctx := context.Background()
	h.processingJob(t, "j1", 40)
	h.gateway.set(PollResult{State: PollFailure, Error: "quota exhausted"}, nil)

	sweeper := NewSweeper(SweeperDeps{
		Jobs:        h.store,
		Reconciler:  h.reconciler,
		Refunds:     h.ledger,
		Gateway:     h.gateway,
		MaxLifetime: 30 * time.Minute,
		Logger:      infra.NopLogger(),
	})
	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Polled != 1 {
		t.Fatalf("report %+v", report)
	}
	if bal := h.balance(t); bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
}

func TestSweeperSchedule(t *testing.T) {
	h := newHarness(t, 100, SupervisorOptions{Interval: time.Hour})
	sweeper := NewSweeper(SweeperDeps{Jobs: h.store, Reconciler: h.reconciler, Refunds: h.ledger, Logger: infra.NopLogger()})
	if err := sweeper.Start(context.Background(), "not a schedule"); err == nil {
		t.Fatalf("invalid schedule accepted")
	}
	if err := sweeper.Start(context.Background(), "@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	sweeper.Stop()
}
