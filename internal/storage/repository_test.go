package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestRepo(t *testing.T, clock *fakeClock) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "insights.db"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_LedgerReads(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, &fakeClock{t: time.Now()})

	seed := []core.Transaction{
		{UserID: 1, Type: core.Income, Category: "Salary", Amount: core.MustMoney("1000"), Date: core.NewDate(2026, 3, 1)},
		{UserID: 1, Type: core.Expense, Category: "Food", Amount: core.MustMoney("12.50"), Date: core.NewDate(2026, 3, 2)},
		{UserID: 1, Type: core.Expense, Category: "Food", Amount: core.MustMoney("7.25"), Date: core.NewDate(2026, 3, 31)},
		{UserID: 1, Type: core.Expense, Category: "Rent", Amount: core.MustMoney("500"), Date: core.NewDate(2026, 4, 1)},
		{UserID: 2, Type: core.Expense, Category: "Food", Amount: core.MustMoney("3"), Date: core.NewDate(2026, 3, 5)},
	}
	for _, tx := range seed {
		if _, err := repo.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}

	all, err := repo.ListTransactions(ctx, 1, core.NewDate(2026, 3, 1), core.NewDate(2026, 3, 31), nil)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 transactions, got %d", len(all))
	}
	if all[1].Amount.String() != "12.50" {
		t.Errorf("amount = %s, want 12.50", all[1].Amount)
	}

	exp := core.Expense
	expenses, _ := repo.ListTransactions(ctx, 1, core.NewDate(2026, 3, 1), core.NewDate(2026, 3, 31), &exp)
	if len(expenses) != 2 {
		t.Errorf("want 2 expenses, got %d", len(expenses))
	}

	for _, c := range []string{"Travel", "Food"} {
		if err := repo.SetBudget(ctx, core.Budget{UserID: 1, Category: c, Limit: core.MustMoney("100")}); err != nil {
			t.Fatalf("SetBudget: %v", err)
		}
	}
	if err := repo.SetBudget(ctx, core.Budget{UserID: 1, Category: "Food", Limit: core.MustMoney("250")}); err != nil {
		t.Fatalf("SetBudget upsert: %v", err)
	}
	budgets, _ := repo.ListBudgets(ctx, 1)
	if len(budgets) != 2 || budgets[0].Category != "Food" || budgets[0].Limit.String() != "250.00" {
		t.Errorf("budgets = %+v", budgets)
	}

	if _, err := repo.AddGoal(ctx, core.Goal{UserID: 1, Title: "Car", Target: core.MustMoney("5000"), Status: core.GoalActive}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AddGoal(ctx, core.Goal{UserID: 1, Title: "Old", Target: core.MustMoney("10"), Status: core.GoalCompleted}); err != nil {
		t.Fatal(err)
	}
	goals, _ := repo.ListGoals(ctx, 1, core.GoalActive)
	if len(goals) != 1 || goals[0].Title != "Car" {
		t.Errorf("active goals = %+v", goals)
	}

	users, _ := repo.ActiveUserIDs(ctx, core.NewDate(2026, 3, 3))
	if len(users) != 2 {
		t.Errorf("active users = %v, want [1 2]", users)
	}
}

func TestSQLiteRepository_InsightLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	repo := newTestRepo(t, clock)

	var ids []int64
	for i, msg := range []string{"a", "b", "c"} {
		clock.t = clock.t.Add(time.Duration(i+1) * time.Second)
		in, err := repo.Insert(ctx, core.Insight{UserID: 5, Message: msg, Severity: core.SeverityTip})
		if err != nil {
			t.Fatalf("Insert %s: %v", msg, err)
		}
		if in.Read {
			t.Errorf("new insight must be unread")
		}
		ids = append(ids, in.ID)
	}

	list, err := repo.ListByUser(ctx, 5, store.ListOptions{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 3 || list[0].Message != "c" || list[2].Message != "a" {
		t.Fatalf("want newest first, got %+v", list)
	}

	limited, _ := repo.ListByUser(ctx, 5, store.ListOptions{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}

	dups, _ := repo.FindDuplicates(ctx, 5, "b", clock.t.Add(-24*time.Hour))
	if len(dups) != 1 {
		t.Errorf("want one duplicate of b, got %d", len(dups))
	}

	if err := repo.MarkRead(ctx, ids[0]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := repo.MarkRead(ctx, ids[0]); err != nil {
		t.Fatalf("MarkRead twice: %v", err)
	}
	if err := repo.MarkRead(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("MarkRead missing = %v, want ErrNotFound", err)
	}

	unread, _ := repo.ListByUser(ctx, 5, store.ListOptions{UnreadOnly: true})
	if len(unread) != 2 {
		t.Errorf("want 2 unread, got %d", len(unread))
	}

	n, err := repo.MarkAllRead(ctx, 5)
	if err != nil || n != 2 {
		t.Errorf("MarkAllRead = %d, %v; want 2", n, err)
	}

	if err := repo.DeleteMany(ctx, ids[1:]); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if _, err := repo.Get(ctx, ids[2]); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get deleted = %v, want ErrNotFound", err)
	}
	got, err := repo.Get(ctx, ids[0])
	if err != nil || !got.Read {
		t.Errorf("Get survivor = %+v, %v", got, err)
	}
}

func TestSQLiteRepository_SameDayDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	repo := newTestRepo(t, clock)

	in := core.Insight{UserID: 1, Message: "same", Severity: core.SeverityInfo}
	if _, err := repo.Insert(ctx, in); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	clock.t = clock.t.Add(time.Hour)
	if _, err := repo.Insert(ctx, in); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("second insert = %v, want ErrDuplicate", err)
	}

	clock.t = clock.t.Add(24 * time.Hour)
	if _, err := repo.Insert(ctx, in); err != nil {
		t.Fatalf("next-day insert: %v", err)
	}
}

func TestSQLiteRepository_InvalidInsight(t *testing.T) {
	repo := newTestRepo(t, &fakeClock{t: time.Now()})
	_, err := repo.Insert(context.Background(), core.Insight{UserID: 1, Severity: core.SeverityInfo})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("want validation error, got %v", err)
	}
}
