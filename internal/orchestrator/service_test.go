package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/generations"
	"github.com/genstudio/backend/internal/ledger"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/pricing"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeGateway struct {
	mu       sync.Mutex
	submits  []ProviderRequest
	submitFn func(ProviderRequest) (Submission, error)
}

func (f *fakeGateway) Submit(_ context.Context, req ProviderRequest) (Submission, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	f.mu.Unlock()
	return f.submitFn(req)
}

func (f *fakeGateway) Poll(context.Context, string, string) (PollResult, error) {
	return PollResult{State: PollPending}, nil
}

func (f *fakeGateway) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type recordingScheduler struct {
	ids []uuid.UUID
}

func (r *recordingScheduler) SchedulePoll(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return nil
}

func asyncHandle(handle string) func(ProviderRequest) (Submission, error) {
	return func(ProviderRequest) (Submission, error) { return Submission{TaskHandle: handle}, nil }
}

// testCatalog prices video-x at 5 credits per second and image-x at $0.0038.
func testCatalog() pricing.Catalog {
	return pricing.Catalog{
		"video-x": {ID: "video-x", Name: "Video X", Provider: "runware", ProviderModel: "vx:1@1",
			Media: pricing.MediaVideo, Durations: []int{8, 10}, Price: pricing.PerSecond(5)},
		"image-x": {ID: "image-x", Name: "Image X", Provider: "runware", ProviderModel: "ix:1@1",
			Media: pricing.MediaImage, ImageInput: true, Price: pricing.FlatUSD("0.0038")},
	}
}

type harness struct {
	svc     *Service
	ledger  ledger.Service
	gens    *generations.MemoryStore
	gateway *fakeGateway
	sched   *recordingScheduler
	user    uuid.UUID
}

func newHarness(t *testing.T, balance int64, submitFn func(ProviderRequest) (Submission, error)) *harness {
	t.Helper()
	h := &harness{
		ledger:  ledger.NewService(ledger.NewMemoryStore(), nil),
		gens:    generations.NewMemoryStore(),
		gateway: &fakeGateway{submitFn: submitFn},
		sched:   &recordingScheduler{},
		user:    uuid.New(),
	}
	h.svc = NewService(h.gens, h.ledger, pricing.NewEstimator(testCatalog()), h.gateway, h.sched, nil)
	if balance > 0 {
		if _, err := h.ledger.Credit(context.Background(), h.user, balance, "seed", ledger.Metadata{}); err != nil {
			t.Fatalf("seed credit: %v", err)
		}
	}
	return h
}

func (h *harness) usage(t *testing.T) []*models.Transaction {
	t.Helper()
	txs, err := h.ledger.ListTransactions(context.Background(), h.user, 100)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	var out []*models.Transaction
	for _, tx := range txs {
		if tx.Kind == models.TxUsage {
			out = append(out, tx)
		}
	}
	return out
}

func (h *harness) balance(t *testing.T) int64 {
	t.Helper()
	b, err := h.ledger.GetBalance(context.Background(), h.user)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return b
}

func int64p(v int64) *int64 { return &v }

// ---------------------------------------------------------------------------
// 1. Rejections before any side effect
// ---------------------------------------------------------------------------

func TestSubmit_InsufficientCreditsBeforeProvider(t *testing.T) {
	h := newHarness(t, 10, asyncHandle("never"))

	_, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "video-x", Prompt: "waves", DurationSeconds: 10})
	if !errors.Is(err, apperr.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}
	if n := h.gateway.submitCount(); n != 0 {
		t.Errorf("provider submits: got %d, want 0", n)
	}
	recs, _ := h.gens.ListByUser(context.Background(), h.user, 10)
	if len(recs) != 0 {
		t.Errorf("records created: got %d, want 0", len(recs))
	}
	if got := h.balance(t); got != 10 {
		t.Errorf("balance: got %d, want 10", got)
	}
}

func TestSubmit_ValidationErrors(t *testing.T) {
	h := newHarness(t, 1000, asyncHandle("never"))
	ctx := context.Background()

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"unknown model", SubmitRequest{Model: "nope", Prompt: "x"}, pricing.ErrUnknownModel},
		{"bad duration", SubmitRequest{Model: "video-x", Prompt: "x", DurationSeconds: 3}, pricing.ErrUnsupportedParameters},
		{"audio unsupported", SubmitRequest{Model: "video-x", Prompt: "x", DurationSeconds: 8, GenerateAudio: true}, pricing.ErrUnsupportedParameters},
		{"empty prompt", SubmitRequest{Model: "video-x", Prompt: "  ", DurationSeconds: 8}, apperr.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.Submit(ctx, h.user, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
	if n := h.gateway.submitCount(); n != 0 {
		t.Errorf("provider submits: got %d, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// 2. Async path and the 1000 -> 954 scenario
// ---------------------------------------------------------------------------

func TestSubmit_AsyncThenFinalize(t *testing.T) {
	h := newHarness(t, 1000, asyncHandle("task-abc"))
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "a fox in snow", DurationSeconds: 8, Seed: int64p(7)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	gen := res.Generation
	if gen.Status != models.GenerationProcessing || res.TaskHandle != "task-abc" || gen.TaskHandle() != "task-abc" {
		t.Fatalf("after submit: status=%s handle=%q", gen.Status, gen.TaskHandle())
	}
	if gen.EstimatedCost() != 40 || res.EstimatedCost != 52 {
		t.Errorf("estimate: raw=%d user=%d, want 40 and 52", gen.EstimatedCost(), res.EstimatedCost)
	}
	if gen.Parameters["duration"] != 8 || gen.Parameters["seed"] != int64(7) {
		t.Errorf("parameters lost: %v", gen.Parameters)
	}
	if len(h.sched.ids) != 1 || h.sched.ids[0] != gen.ID {
		t.Errorf("poll not scheduled: %v", h.sched.ids)
	}
	if got := h.balance(t); got != 1000 {
		t.Errorf("balance charged before completion: %d", got)
	}

	done, err := h.svc.FinalizeSuccess(ctx, gen, "https://cdn.example.com/fox.mp4", int64p(35))
	if err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}
	if done.Status != models.GenerationCompleted || done.APICost != 35 || done.UserCost != 46 {
		t.Errorf("completed record: status=%s api=%d user=%d", done.Status, done.APICost, done.UserCost)
	}
	if done.ResultURL == nil || done.CompletedAt == nil {
		t.Error("result url and completed_at must be set")
	}
	if got := h.balance(t); got != 954 {
		t.Errorf("balance: got %d, want 954", got)
	}
	usage := h.usage(t)
	if len(usage) != 1 || usage[0].Amount != -46 {
		t.Fatalf("usage transactions: %+v", usage)
	}
	if done.UsageTransactionID == nil || *done.UsageTransactionID != usage[0].ID {
		t.Error("generation not linked to its usage transaction")
	}
}

// ---------------------------------------------------------------------------
// 3. At most one charge
// ---------------------------------------------------------------------------

func TestFinalizeSuccess_Twice(t *testing.T) {
	h := newHarness(t, 1000, asyncHandle("t1"))
	ctx := context.Background()
	res, _ := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})

	for i := 0; i < 2; i++ {
		if _, err := h.svc.FinalizeSuccess(ctx, res.Generation, "https://x/v.mp4", int64p(35)); err != nil {
			t.Fatalf("FinalizeSuccess #%d: %v", i+1, err)
		}
	}
	if n := len(h.usage(t)); n != 1 {
		t.Errorf("usage transactions: got %d, want 1", n)
	}
	if got := h.balance(t); got != 954 {
		t.Errorf("balance: got %d, want 954", got)
	}
}

func TestFinalizeSuccess_Concurrent(t *testing.T) {
	h := newHarness(t, 1000, asyncHandle("t1"))
	ctx := context.Background()
	res, _ := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 10})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.FinalizeSuccess(ctx, res.Generation, "https://x/v.mp4", nil); err != nil {
				t.Errorf("FinalizeSuccess: %v", err)
			}
		}()
	}
	wg.Wait()

	usage := h.usage(t)
	if len(usage) != 1 {
		t.Fatalf("usage transactions: got %d, want 1", len(usage))
	}
	// No reported cost: the estimate (50) is charged with markup.
	if usage[0].Amount != -65 {
		t.Errorf("charge: got %d, want -65", usage[0].Amount)
	}
}

// ---------------------------------------------------------------------------
// 4. Immediate results and provider failures
// ---------------------------------------------------------------------------

func TestSubmit_ImmediateResult(t *testing.T) {
	h := newHarness(t, 100, func(ProviderRequest) (Submission, error) {
		return Submission{Result: &Result{URL: "https://x/img.png"}}, nil
	})
	res, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "image-x", Prompt: "a red cube"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Generation.Status != models.GenerationCompleted || res.TaskHandle != "" {
		t.Fatalf("status: got %s", res.Generation.Status)
	}
	if res.Generation.Type != models.TypeTextToImage {
		t.Errorf("type: got %s", res.Generation.Type)
	}
	if got := h.balance(t); got != 98 {
		t.Errorf("balance: got %d, want 98", got)
	}
	if len(h.sched.ids) != 0 {
		t.Error("immediate results must not schedule polling")
	}
}

func TestSubmit_ProviderErrorFailsRecord(t *testing.T) {
	h := newHarness(t, 1000, func(ProviderRequest) (Submission, error) {
		return Submission{}, errors.New("connection reset by peer")
	})
	res, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})
	if !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProviderUnavailable", err)
	}
	if res == nil || res.Generation.Status != models.GenerationFailed {
		t.Fatalf("record must be failed synchronously, got %+v", res)
	}
	if res.Generation.ErrorMessage == nil || *res.Generation.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
	if got := h.balance(t); got != 1000 || len(h.usage(t)) != 0 {
		t.Errorf("failed submission charged the user: balance %d", got)
	}
}

func TestSubmit_ProviderRejection(t *testing.T) {
	h := newHarness(t, 1000, func(ProviderRequest) (Submission, error) {
		return Submission{}, errors.Join(apperr.ErrProvider, errors.New("prompt rejected by safety filter"))
	})
	_, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})
	if !errors.Is(err, apperr.ErrProvider) || errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Fatalf("got %v, want ErrProvider", err)
	}
}

// ---------------------------------------------------------------------------
// 5. Debit failure after completion
// ---------------------------------------------------------------------------

func TestFinalizeSuccess_DebitFailsStillCompletes(t *testing.T) {
	h := newHarness(t, 60, asyncHandle("t1"))
	ctx := context.Background()
	res, err := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The balance drops while the job renders.
	if r, err := h.ledger.Debit(ctx, h.user, 50, "other", ledger.Metadata{}); err != nil || !r.Success {
		t.Fatalf("Debit: %+v %v", r, err)
	}

	done, err := h.svc.FinalizeSuccess(ctx, res.Generation, "https://x/v.mp4", int64p(35))
	if err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}
	if done.Status != models.GenerationCompleted {
		t.Errorf("status: got %s, want completed", done.Status)
	}
	if !done.NeedsReconciliation || done.Parameters[models.ParamReconciliation] == nil {
		t.Error("record should be flagged for reconciliation")
	}
	if got := h.balance(t); got != 10 {
		t.Errorf("balance: got %d, want 10", got)
	}
}

// ---------------------------------------------------------------------------
// 6. Failure path and terminal states
// ---------------------------------------------------------------------------

func TestFinalizeFailure_NoChargeAndTerminal(t *testing.T) {
	h := newHarness(t, 1000, asyncHandle("t1"))
	ctx := context.Background()
	res, _ := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})

	failed, err := h.svc.FinalizeFailure(ctx, res.Generation, "content policy violation")
	if err != nil {
		t.Fatalf("FinalizeFailure: %v", err)
	}
	if failed.Status != models.GenerationFailed || failed.UserCost != 0 || failed.APICost != 0 {
		t.Errorf("failed record: %+v", failed)
	}

	after, err := h.svc.FinalizeSuccess(ctx, res.Generation, "https://x/late.mp4", int64p(35))
	if err != nil {
		t.Fatalf("late FinalizeSuccess: %v", err)
	}
	if after.Status != models.GenerationFailed || after.ResultURL != nil {
		t.Errorf("terminal record changed: status=%s", after.Status)
	}
	if got := h.balance(t); got != 1000 || len(h.usage(t)) != 0 {
		t.Errorf("failed generation charged: balance %d", got)
	}
}

func TestListByUser_MediaFilter(t *testing.T) {
	h := newHarness(t, 1000, func(req ProviderRequest) (Submission, error) {
		if req.Type == models.TypeTextToImage {
			return Submission{Result: &Result{URL: "https://x/i.png"}}, nil
		}
		return Submission{TaskHandle: "t"}, nil
	})
	ctx := context.Background()
	_, _ = h.svc.Submit(ctx, h.user, SubmitRequest{Model: "image-x", Prompt: "a"})
	_, _ = h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "b", DurationSeconds: 8})

	videos, err := h.svc.ListByUser(ctx, h.user, 0, "video")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(videos) != 1 || videos[0].Model != "video-x" {
		t.Errorf("video filter: got %d", len(videos))
	}
	all, _ := h.svc.ListByUser(ctx, h.user, 0, "")
	if len(all) != 2 || all[0].Model != "video-x" {
		t.Errorf("all newest first: got %d", len(all))
	}
}

func TestListByUser_MediaFilterAppliesBeforeLimit(t *testing.T) {
	h := newHarness(t, 1000, func(req ProviderRequest) (Submission, error) {
		if req.Type == models.TypeTextToImage {
			return Submission{Result: &Result{URL: "https://x/i.png"}}, nil
		}
		return Submission{TaskHandle: "t"}, nil
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "b", DurationSeconds: 8})
	}
	for i := 0; i < 3; i++ {
		_, _ = h.svc.Submit(ctx, h.user, SubmitRequest{Model: "image-x", Prompt: "a"})
	}

	videos, err := h.svc.ListByUser(ctx, h.user, 2, "video")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("videos: got %d, want 2", len(videos))
	}
	for _, g := range videos {
		if g.Model != "video-x" {
			t.Errorf("unexpected model %q in video list", g.Model)
		}
	}
}

// ---------------------------------------------------------------------------
// 7. Caller cancellation after the provider has accepted the job
// ---------------------------------------------------------------------------

// ctxGenerations rejects calls on a done context the way a database driver
// does. onUpdate runs after every applied update; failUpdate can reject one.
type ctxGenerations struct {
	*generations.MemoryStore
	onUpdate   func(generations.Patch)
	failUpdate func(generations.Patch) error
}

func (s *ctxGenerations) Create(ctx context.Context, g *models.Generation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Create(ctx, g)
}

func (s *ctxGenerations) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *ctxGenerations) Update(ctx context.Context, id uuid.UUID, p generations.Patch, from ...models.GenerationStatus) (*models.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failUpdate != nil {
		if err := s.failUpdate(p); err != nil {
			return nil, err
		}
	}
	g, err := s.MemoryStore.Update(ctx, id, p, from...)
	if err == nil && s.onUpdate != nil {
		s.onUpdate(p)
	}
	return g, err
}

type ctxLedgerStore struct {
	*ledger.MemoryStore
}

func (s ctxLedgerStore) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.MemoryStore.Balance(ctx, userID)
}

func (s ctxLedgerStore) Apply(ctx context.Context, tx *models.Transaction) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.MemoryStore.Apply(ctx, tx)
}

func newCtxHarness(t *testing.T, balance int64, gens *ctxGenerations, submitFn func(ProviderRequest) (Submission, error)) *harness {
	t.Helper()
	h := &harness{
		ledger:  ledger.NewService(ctxLedgerStore{ledger.NewMemoryStore()}, nil),
		gens:    gens.MemoryStore,
		gateway: &fakeGateway{submitFn: submitFn},
		sched:   &recordingScheduler{},
		user:    uuid.New(),
	}
	h.svc = NewService(gens, h.ledger, pricing.NewEstimator(testCatalog()), h.gateway, h.sched, nil)
	if _, err := h.ledger.Credit(context.Background(), h.user, balance, "seed", ledger.Metadata{}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	return h
}

func isCompletion(p generations.Patch) bool {
	return p.Status != nil && *p.Status == models.GenerationCompleted
}

func TestFinalizeSuccess_CallerCancelsAfterClaim(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gens := &ctxGenerations{MemoryStore: generations.NewMemoryStore()}
	gens.onUpdate = func(p generations.Patch) {
		if isCompletion(p) {
			cancel()
		}
	}
	h := newCtxHarness(t, 100, gens, func(ProviderRequest) (Submission, error) {
		return Submission{Result: &Result{URL: "https://x/img.png"}}, nil
	})

	res, err := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "image-x", Prompt: "a red cube"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("caller context should have been cancelled by the completion")
	}
	got, err := h.gens.Get(context.Background(), res.Generation.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.GenerationCompleted || got.UserCost != 2 {
		t.Fatalf("record: status=%s user_cost=%d", got.Status, got.UserCost)
	}
	if got.UsageTransactionID == nil || got.NeedsReconciliation {
		t.Errorf("completed record must be charged and linked: usage=%v flagged=%v", got.UsageTransactionID, got.NeedsReconciliation)
	}
	if b := h.balance(t); b != 98 {
		t.Errorf("balance: got %d, want 98", b)
	}
}

func TestFinalize_CancelledContext(t *testing.T) {
	gens := &ctxGenerations{MemoryStore: generations.NewMemoryStore()}
	h := newCtxHarness(t, 1000, gens, asyncHandle("t1"))
	res, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	other, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "video-x", Prompt: "q", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := h.svc.FinalizeSuccess(ctx, res.Generation, "https://x/v.mp4", int64p(35))
	if err != nil {
		t.Fatalf("FinalizeSuccess: %v", err)
	}
	if done.Status != models.GenerationCompleted || done.UsageTransactionID == nil {
		t.Errorf("completed record: status=%s usage=%v", done.Status, done.UsageTransactionID)
	}
	failed, err := h.svc.FinalizeFailure(ctx, other.Generation, "provider timeout")
	if err != nil {
		t.Fatalf("FinalizeFailure: %v", err)
	}
	if failed.Status != models.GenerationFailed {
		t.Errorf("failed record: status=%s", failed.Status)
	}
	if b := h.balance(t); b != 954 {
		t.Errorf("balance: got %d, want 954", b)
	}
}

func TestSubmit_CallerCancelsAfterProviderAccepts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gens := &ctxGenerations{MemoryStore: generations.NewMemoryStore()}
	h := newCtxHarness(t, 1000, gens, func(ProviderRequest) (Submission, error) {
		cancel()
		return Submission{TaskHandle: "task-late"}, nil
	})

	res, err := h.svc.Submit(ctx, h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, _ := h.gens.Get(context.Background(), res.Generation.ID)
	if got.Status != models.GenerationProcessing || got.TaskHandle() != "task-late" {
		t.Errorf("record: status=%s handle=%q", got.Status, got.TaskHandle())
	}
	if len(h.sched.ids) != 1 {
		t.Errorf("poll not scheduled: %v", h.sched.ids)
	}
}

func TestSubmit_TaskHandleNotRecordedFailsRecord(t *testing.T) {
	gens := &ctxGenerations{MemoryStore: generations.NewMemoryStore()}
	gens.failUpdate = func(p generations.Patch) error {
		if p.Status != nil && *p.Status == models.GenerationProcessing {
			return apperr.ErrPersistence
		}
		return nil
	}
	h := newCtxHarness(t, 1000, gens, asyncHandle("task-lost"))

	res, err := h.svc.Submit(context.Background(), h.user, SubmitRequest{Model: "video-x", Prompt: "p", DurationSeconds: 8})
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("got %v, want ErrPersistence", err)
	}
	if res == nil || res.Generation.Status != models.GenerationFailed || res.TaskHandle != "task-lost" {
		t.Fatalf("record must be failed with its handle, got %+v", res)
	}
	if msg := res.Generation.ErrorMessage; msg == nil || !strings.Contains(*msg, "task-lost") {
		t.Errorf("error message should name the orphaned handle: %v", msg)
	}
	if len(h.sched.ids) != 0 {
		t.Errorf("failed record must not be polled: %v", h.sched.ids)
	}
	if b := h.balance(t); b != 1000 {
		t.Errorf("balance: got %d, want 1000", b)
	}
}
