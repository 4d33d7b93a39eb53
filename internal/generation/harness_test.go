package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studio/internal/adapter/memstore"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/ledger"
)

type fakeGateway struct {
	mu        sync.Mutex
	submitErr error
	seq       int
	state     PollResult
	pollErr   error
	polls     int
	polled    chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{state: PollResult{State: PollRunning}, polled: make(chan string, 64)}
}

func (g *fakeGateway) Submit(_ context.Context, req ProviderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.seq++
	return fmt.Sprintf("task-%d", g.seq), nil
}

func (g *fakeGateway) Poll(_ context.Context, taskID string) (PollResult, error) {
	g.mu.Lock()
	g.polls++
	res, err := g.state, g.pollErr
	g.mu.Unlock()
	select {
	case g.polled <- taskID:
	default:
	}
	return res, err
}

func (g *fakeGateway) set(res PollResult, err error) {
	g.mu.Lock()
	g.state, g.pollErr = res, err
	g.mu.Unlock()
}

func (g *fakeGateway) pollCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls
}

type fakeThumbnailer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeThumbnailer) Thumbnail(context.Context, *domain.Job) error {
	f.calls.Add(1)
	return f.err
}

// countingCompleter records how many completions won the transition.
type countingCompleter struct {
	next    Completer
	applied atomic.Int32
}

func (c *countingCompleter) ApplyCompletion(ctx context.Context, jobID string, sig domain.Signal) (*domain.Job, bool, error) {
	job, applied, err := c.next.ApplyCompletion(ctx, jobID, sig)
	if applied {
		c.applied.Add(1)
	}
	return job, applied, err
}

type harness struct {
	store      *memstore.Store
	ledger     *ledger.Service
	gateway    *fakeGateway
	thumbs     *fakeThumbnailer
	reconciler *Reconciler
	completer  *countingCompleter
	supervisor *Supervisor
	service    *Service
}

func newHarness(t *testing.T, credits int64, opts SupervisorOptions) *harness {
	t.Helper()
	logger := infra.NopLogger()
	store := memstore.New()
	store.PutUser(domain.User{ID: "u1", Email: "u1@example.com", Role: domain.UserRoleUser, Credits: credits})
	led := ledger.NewService(store, logger)
	gw := newFakeGateway()
	thumbs := &fakeThumbnailer{}
	rec := NewReconciler(store, led, thumbs, logger)
	counter := &countingCompleter{next: rec}
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Millisecond
	}
	if opts.MaxLifetime == 0 {
		opts.MaxLifetime = time.Minute
	}
	sup := NewSupervisor(gw, counter, opts, logger)
	svc := NewService(ServiceDeps{
		Jobs:       store,
		Ledger:     led,
		Gateway:    gw,
		Supervisor: sup,
		Catalog: NewCatalog([]Model{
			{Name: "veo3_fast", Kind: domain.JobKindVideo, Credits: 40},
			{Name: "google/nano-banana", Kind: domain.JobKindImage, Credits: 4},
		}),
		Logger: logger,
	})
	h := &harness{store: store, ledger: led, gateway: gw, thumbs: thumbs, reconciler: rec, completer: counter, supervisor: sup, service: svc}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
		rec.Wait()
	})
	return h
}

// processingJob inserts a charged job already handed to the provider, without a poller.
func (h *harness) processingJob(t *testing.T, id string, credits int64) *domain.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := h.ledger.Deduct(ctx, "u1", credits, id); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	job := &domain.Job{ID: id, UserID: "u1", Model: "veo3_fast", Kind: domain.JobKindVideo, CreditsCharged: credits}
	if err := h.store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := h.store.MarkProcessing(ctx, id, "task-"+id)
	if err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	return out
}

func (h *harness) balance(t *testing.T) int64 {
	t.Helper()
	bal, err := h.ledger.Balance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) refundEntries(t *testing.T, jobID string) []domain.LedgerEntry {
	t.Helper()
	entries, err := h.ledger.EntriesForJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var out []domain.LedgerEntry
	for _, e := range entries {
		if e.Kind == domain.EntryKindRefund {
			out = append(out, e)
		}
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errProviderDown = errors.New("provider down")
