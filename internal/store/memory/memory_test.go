package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/store"
)

func TestStore_ListTransactionsWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, tx := range []core.Transaction{
		{UserID: 1, Type: core.Expense, Category: "Food", Amount: core.MustMoney("10"), Date: core.NewDate(2026, 1, 1)},
		{UserID: 1, Type: core.Expense, Category: "Food", Amount: core.MustMoney("20"), Date: core.NewDate(2026, 1, 31)},
		{UserID: 1, Type: core.Income, Category: "Salary", Amount: core.MustMoney("30"), Date: core.NewDate(2026, 1, 15)},
		{UserID: 1, Type: core.Expense, Category: "Food", Amount: core.MustMoney("40"), Date: core.NewDate(2026, 2, 1)},
		{UserID: 2, Type: core.Expense, Category: "Food", Amount: core.MustMoney("50"), Date: core.NewDate(2026, 1, 10)},
	} {
		if _, err := s.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}

	got, err := s.ListTransactions(ctx, 1, core.NewDate(2026, 1, 1), core.NewDate(2026, 1, 31), nil)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 transactions in window, got %d", len(got))
	}

	exp := core.Expense
	got, _ = s.ListTransactions(ctx, 1, core.NewDate(2026, 1, 1), core.NewDate(2026, 1, 31), &exp)
	if len(got) != 2 {
		t.Fatalf("want 2 expenses, got %d", len(got))
	}
}

func TestStore_ListBudgetsOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, c := range []string{"Travel", "Food", "Entertainment"} {
		if err := s.SetBudget(ctx, core.Budget{UserID: 1, Category: c, Limit: core.MustMoney("100")}); err != nil {
			t.Fatalf("SetBudget: %v", err)
		}
	}
	got, _ := s.ListBudgets(ctx, 1)
	want := []string{"Entertainment", "Food", "Travel"}
	if len(got) != len(want) {
		t.Fatalf("want %d budgets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Category != want[i] {
			t.Errorf("budget[%d] = %s, want %s", i, got[i].Category, want[i])
		}
	}
}

func TestStore_InsightLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	var ids []int64
	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Minute)
		in, err := s.Insert(ctx, core.Insight{UserID: 7, Message: "m", Severity: core.SeverityTip})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, in.ID)
	}

	list, _ := s.ListByUser(ctx, 7, store.ListOptions{})
	if len(list) != 3 || list[0].ID != ids[2] {
		t.Fatalf("want newest first, got %+v", list)
	}

	dups, _ := s.FindDuplicates(ctx, 7, "m", base.Add(time.Minute))
	if len(dups) != 2 {
		t.Errorf("want 2 duplicates since t+1m, got %d", len(dups))
	}

	if err := s.MarkRead(ctx, ids[0]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, _ := s.ListByUser(ctx, 7, store.ListOptions{UnreadOnly: true})
	if len(unread) != 2 {
		t.Errorf("want 2 unread, got %d", len(unread))
	}

	n, _ := s.MarkAllRead(ctx, 7)
	if n != 2 {
		t.Errorf("MarkAllRead changed %d, want 2", n)
	}

	if err := s.DeleteMany(ctx, ids[:2]); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if _, err := s.Get(ctx, ids[0]); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get deleted = %v, want ErrNotFound", err)
	}
	if err := s.MarkRead(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("MarkRead missing = %v, want ErrNotFound", err)
	}
}

func TestStore_ListLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 10; i++ {
		if _, err := s.Insert(ctx, core.Insight{UserID: 1, Message: "x", Severity: core.SeverityInfo}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ListByUser(ctx, 1, store.ListOptions{Limit: 6})
	if len(got) != 6 {
		t.Errorf("want 6, got %d", len(got))
	}
}

func TestStore_ActiveUserIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	add := func(user int64, d core.Date) {
		if _, err := s.AddTransaction(ctx, core.Transaction{UserID: user, Type: core.Expense, Category: "c", Amount: core.MustMoney("1"), Date: d}); err != nil {
			t.Fatal(err)
		}
	}
	add(3, core.NewDate(2026, 5, 10))
	add(1, core.NewDate(2026, 5, 11))
	add(3, core.NewDate(2026, 5, 12))
	add(2, core.NewDate(2026, 4, 1))

	got, _ := s.ActiveUserIDs(ctx, core.NewDate(2026, 5, 1))
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("ActiveUserIDs = %v, want [1 3]", got)
	}
}
