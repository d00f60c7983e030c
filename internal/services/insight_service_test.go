package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/store"
	"finsight/internal/store/memory"
)

const savingsSuccess = "Your savings rate is good! You're saving 30.00% of your income."

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T) (*InsightService, *memory.Store, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	st := memory.New()
	st.SetClock(clock.Now)
	svc := NewInsightService(st, st, NewRuleEvaluator(DefaultRuleConfig(), nil, nil), DefaultEngineConfig(),
		WithClock(clock.Now))
	return svc, st, clock
}

func seed(t *testing.T, st *memory.Store, txs ...core.Transaction) {
	t.Helper()
	for _, tx := range txs {
		if _, err := st.AddTransaction(context.Background(), tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestInsightService_GeneratesSavingsSuccess(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestEngine(t)
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)), expense("Rent", "700", core.NewDate(2026, 3, 3)))

	if n := svc.GenerateForUser(ctx, 1); n != 1 {
		t.Fatalf("GenerateForUser = %d, want 1", n)
	}
	list, _ := st.ListByUser(ctx, 1, store.ListOptions{})
	if len(list) != 1 || list[0].Message != savingsSuccess || list[0].Severity != core.SeveritySuccess || list[0].Read {
		t.Fatalf("stored = %+v", list)
	}
}

func TestInsightService_IgnoresTransactionsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestEngine(t)
	seed(t, st,
		income("1000", core.NewDate(2026, 2, 1)),
		expense("Rent", "700", core.NewDate(2026, 2, 2)),
	)
	if n := svc.GenerateForUser(ctx, 1); n != 0 {
		t.Errorf("GenerateForUser = %d, want 0", n)
	}
}

func TestInsightService_DedupWithinWindow(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newTestEngine(t)
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)), expense("Rent", "700", core.NewDate(2026, 3, 3)))

	if n := svc.GenerateForUser(ctx, 1); n != 1 {
		t.Fatalf("first pass = %d, want 1", n)
	}
	clock.Advance(time.Hour)
	if n := svc.GenerateForUser(ctx, 1); n != 0 {
		t.Fatalf("second pass = %d, want 0", n)
	}
	list, _ := st.ListByUser(ctx, 1, store.ListOptions{})
	if len(list) != 1 {
		t.Fatalf("want one stored insight, got %d", len(list))
	}

	clock.Advance(24 * time.Hour)
	if n := svc.GenerateForUser(ctx, 1); n != 1 {
		t.Fatalf("pass after dedup window = %d, want 1", n)
	}
}

func TestInsightService_NumericDriftIsNotADuplicate(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newTestEngine(t)
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)), expense("Rent", "700", core.NewDate(2026, 3, 3)))
	svc.GenerateForUser(ctx, 1)

	clock.Advance(time.Minute)
	seed(t, st, expense("Rent", "10", core.NewDate(2026, 3, 4)))
	if n := svc.GenerateForUser(ctx, 1); n != 1 {
		t.Errorf("drifted message pass = %d, want 1", n)
	}
}

func TestInsightService_BudgetOverage(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestEngine(t)
	seed(t, st, expense("Food", "1200", core.NewDate(2026, 3, 10)))
	if err := st.SetBudget(ctx, core.Budget{UserID: 1, Category: "Food", Limit: core.MustMoney("1000")}); err != nil {
		t.Fatal(err)
	}

	svc.GenerateForUser(ctx, 1)

	list, _ := st.ListByUser(ctx, 1, store.ListOptions{})
	var overage []string
	for _, in := range list {
		if strings.HasPrefix(in.Message, "You've exceeded your budget") {
			overage = append(overage, in.Message)
		}
	}
	if len(overage) != 1 || overage[0] != "You've exceeded your budget for Food by 20.00%." {
		t.Errorf("overage insights = %v", overage)
	}
}

func TestInsightService_RetentionCap(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newTestEngine(t)
	old := clock.Now().Add(-72 * time.Hour)
	for i := 0; i < 7; i++ {
		_, err := st.Insert(ctx, core.Insight{
			UserID:    1,
			Message:   fmt.Sprintf("old %d", i),
			Severity:  core.SeverityInfo,
			Read:      i%2 == 0,
			CreatedAt: old.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)), expense("Rent", "700", core.NewDate(2026, 3, 3)))

	if n := svc.GenerateForUser(ctx, 1); n != 1 {
		t.Fatalf("GenerateForUser = %d, want 1", n)
	}
	list, _ := st.ListByUser(ctx, 1, store.ListOptions{})
	if len(list) != 5 {
		t.Fatalf("kept %d insights, want 5", len(list))
	}
	if list[0].Message != savingsSuccess {
		t.Errorf("newest = %q", list[0].Message)
	}
	if list[4].Message != "old 3" {
		t.Errorf("oldest kept = %q, want old 3", list[4].Message)
	}
}

func TestInsightService_RetentionLeavesOtherUsersAlone(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestEngine(t)
	for i := 0; i < 8; i++ {
		if _, err := st.Insert(ctx, core.Insight{UserID: 2, Message: fmt.Sprintf("m%d", i), Severity: core.SeverityTip}); err != nil {
			t.Fatal(err)
		}
	}
	svc.GenerateForUser(ctx, 1)
	list, _ := st.ListByUser(ctx, 2, store.ListOptions{})
	if len(list) != 8 {
		t.Errorf("user 2 kept %d insights, want 8", len(list))
	}
}

type failingLedger struct {
	store.Ledger
	err error
}

func (f failingLedger) ListBudgets(context.Context, int64) ([]core.Budget, error) {
	return nil, f.err
}

func TestInsightService_LoadFailureYieldsZero(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)))
	ledger := failingLedger{Ledger: st, err: fmt.Errorf("budgets: %w", core.ErrTransient)}
	svc := NewInsightService(ledger, st, nil, DefaultEngineConfig())

	n, err := svc.Generate(ctx, 1)
	if n != 0 || !errors.Is(err, core.ErrTransient) {
		t.Errorf("Generate = %d, %v; want 0 and ErrTransient", n, err)
	}
	if got := svc.GenerateForUser(ctx, 1); got != 0 {
		t.Errorf("GenerateForUser = %d, want 0", got)
	}
	list, _ := st.ListByUser(ctx, 1, store.ListOptions{})
	if len(list) != 0 {
		t.Errorf("nothing should be stored, got %d", len(list))
	}
}

type flakyInsights struct {
	store.InsightStore
	mu      sync.Mutex
	inserts int
	failAt  int
}

func (f *flakyInsights) Insert(ctx context.Context, in core.Insight) (core.Insight, error) {
	f.mu.Lock()
	f.inserts++
	n := f.inserts
	f.mu.Unlock()
	if n == f.failAt {
		return core.Insight{}, core.ErrTransient
	}
	return f.InsightStore.Insert(ctx, in)
}

func TestInsightService_PartialCountOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}
	st := memory.New()
	// savings warning, concentration warning, budget overage: three candidates
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)), expense("Food", "1200", core.NewDate(2026, 3, 3)))
	if err := st.SetBudget(ctx, core.Budget{UserID: 1, Category: "Food", Limit: core.MustMoney("1000")}); err != nil {
		t.Fatal(err)
	}
	insights := &flakyInsights{InsightStore: st, failAt: 2}
	svc := NewInsightService(st, insights, nil, DefaultEngineConfig(), WithClock(clock.Now))

	n, err := svc.Generate(ctx, 1)
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}
	if !errors.Is(err, core.ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
}

func TestInsightService_RejectsInvalidUser(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	if _, err := svc.Generate(context.Background(), 0); !errors.Is(err, core.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestInsightService_ConcurrentPassesForOneUser(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestEngine(t)
	seed(t, st, income("1000", core.NewDate(2026, 3, 2)), expense("Rent", "700", core.NewDate(2026, 3, 3)))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := svc.GenerateForUser(ctx, 1)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Errorf("total inserted across concurrent passes = %d, want 1", total)
	}
	list, _ := st.ListByUser(ctx, 1, store.ListOptions{})
	if len(list) != 1 {
		t.Errorf("stored %d insights, want 1", len(list))
	}
}

func TestUserLocks_ReleasesEntries(t *testing.T) {
	l := newUserLocks()
	unlock := l.lock(42)
	if len(l.locks) != 1 {
		t.Fatalf("want one entry while held")
	}
	unlock()
	if len(l.locks) != 0 {
		t.Errorf("entry not released")
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	if err := DefaultEngineConfig().Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	cfg := EngineConfig{WindowDays: 0, DedupWindow: -time.Second, RetentionCap: 0, ListCap: 0}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"window days", "dedup window", "retention cap", "list cap"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}
