package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio/internal/adapter/memstore"
	"studio/internal/domain"
	"studio/internal/generation"
	"studio/internal/infra"
	"studio/internal/ledger"
)

type idleGateway struct{}

func (idleGateway) Submit(context.Context, generation.ProviderRequest) (string, error) {
	return "", errors.New("not used")
}

func (idleGateway) Poll(context.Context, string) (generation.PollResult, error) {
	return generation.PollResult{State: generation.PollRunning}, nil
}

type brokenCompleter struct{}

func (brokenCompleter) ApplyCompletion(context.Context, string, domain.Signal) (*domain.Job, bool, error) {
	return nil, false, errors.New("database unavailable")
}

type ingestFixture struct {
	store      *memstore.Store
	ledger     *ledger.Service
	supervisor *generation.Supervisor
	ingest     *Ingest
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	logger := infra.NopLogger()
	store := memstore.New()
	store.PutUser(domain.User{ID: "u1", Role: domain.UserRoleUser, Credits: 100})
	led := ledger.NewService(store, logger)
	rec := generation.NewReconciler(store, led, nil, logger)
	sup := generation.NewSupervisor(idleGateway{}, rec, generation.SupervisorOptions{Interval: time.Hour}, logger)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })

	ctx := context.Background()
	if _, err := led.Deduct(ctx, "u1", 40, "j1"); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if err := store.Create(ctx, &domain.Job{ID: "j1", UserID: "u1", Model: "veo3_fast", Kind: domain.JobKindVideo, CreditsCharged: 40}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.MarkProcessing(ctx, "j1", "task_1"); err != nil {
		t.Fatalf("processing: %v", err)
	}
	sup.Start("j1", "task_1", time.Now())
	return &ingestFixture{store: store, ledger: led, supervisor: sup, ingest: NewIngest(store, rec, sup, logger)}
}

const successBody = `{"code":200,"msg":"ok","data":{"taskId":"task_1","info":{"resultUrls":["https://cdn/v.mp4"]}}}`

func TestIngestAppliesAndCancelsPoller(t *testing.T) {
	f := newIngestFixture(t)
	res, err := f.ingest.Handle(context.Background(), []byte(successBody))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Outcome != OutcomeApplied || res.JobID != "j1" || res.Status != string(domain.JobStatusCompleted) {
		t.Fatalf("result = %+v", res)
	}
	if f.supervisor.Active("j1") {
		t.Fatalf("poller still active after winning callback")
	}
}

func TestIngestDuplicateDelivery(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	if _, err := f.ingest.Handle(ctx, []byte(successBody)); err != nil {
		t.Fatalf("first: %v", err)
	}
	first, _ := f.store.Get(ctx, "j1")

	res, err := f.ingest.Handle(ctx, []byte(successBody))
	if err != nil || res.Outcome != OutcomeDuplicate {
		t.Fatalf("second: %+v %v", res, err)
	}
	second, _ := f.store.Get(ctx, "j1")
	if !second.UpdatedAt.Equal(first.UpdatedAt) || !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("duplicate delivery wrote to the job")
	}
	entries, _ := f.ledger.EntriesForJob(ctx, "j1")
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want the deduction only", len(entries))
	}
}

func TestIngestFailureRefunds(t *testing.T) {
	f := newIngestFixture(t)
	body := `{"code":200,"data":{"taskId":"task_1","state":"fail","failCode":"422","failMsg":"nsfw"}}`
	res, err := f.ingest.Handle(context.Background(), []byte(body))
	if err != nil || res.Outcome != OutcomeApplied || res.Status != string(domain.JobStatusFailed) {
		t.Fatalf("handle: %+v %v", res, err)
	}
	if bal, _ := f.ledger.Balance(context.Background(), "u1"); bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
}

func TestIngestAcknowledgesNonFatalCases(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	res, err := f.ingest.Handle(ctx, []byte(`{"code":200,"data":{"taskId":"task_1","state":"queuing"}}`))
	if err != nil || res.Outcome != OutcomeRunning {
		t.Fatalf("running: %+v %v", res, err)
	}
	res, err = f.ingest.Handle(ctx, []byte(`{"code":200,"data":{"taskId":"task_unknown","info":{"resultUrls":["x"]}}}`))
	if err != nil || res.Outcome != OutcomeUnknownTask {
		t.Fatalf("unknown: %+v %v", res, err)
	}

	broken := NewIngest(f.store, brokenCompleter{}, f.supervisor, infra.NopLogger())
	res, err = broken.Handle(ctx, []byte(successBody))
	if err != nil || res.Outcome != OutcomeError {
		t.Fatalf("reconciler error must be acknowledged: %+v %v", res, err)
	}
	if !f.supervisor.Active("j1") {
		t.Fatalf("poller cancelled although nothing was applied")
	}
}

func TestIngestRejectsMalformed(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.ingest.Handle(context.Background(), []byte(`{"code":200,"data":{"info":{}}}`))
	if !errors.Is(err, domain.ErrMalformedWebhook) {
		t.Fatalf("expected malformed, got %v", err)
	}
	job, _ := f.store.Get(context.Background(), "j1")
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("malformed callback changed job: %s", job.Status)
	}
}
