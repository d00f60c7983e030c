// Package store declares the ports the insight engine consumes. Adapters live in
// internal/storage (SQLite), internal/store/memory and internal/sheets/google.
package store

import (
	"context"
	"time"

	"finsight/internal/core"
)

type (
	// TransactionReader returns a user's transactions whose date lies in [from, to].
	// A nil txType returns both incomes and expenses.
	TransactionReader interface {
		ListTransactions(ctx context.Context, userID int64, from, to core.Date, txType *core.TransactionType) ([]core.Transaction, error)
	}

	// BudgetReader returns a user's budgets ordered by category.
	BudgetReader interface {
		ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	}

	GoalReader interface {
		ListGoals(ctx context.Context, userID int64, status core.GoalStatus) ([]core.Goal, error)
	}

	// Ledger groups the read-only inputs of a generation pass.
	Ledger interface {
		TransactionReader
		BudgetReader
		GoalReader
	}

	// ActiveUserLister reports users with at least one transaction dated on or after since.
	ActiveUserLister interface {
		ActiveUserIDs(ctx context.Context, since core.Date) ([]int64, error)
	}

	// InsightStore is the durable record of issued insights.
	InsightStore interface {
		// Insert stores a new insight and returns it with ID and timestamps set.
		// Stores that enforce uniqueness return core.ErrDuplicate on conflict.
		Insert(ctx context.Context, in core.Insight) (core.Insight, error)

		// ListByUser returns insights newest first by creation time.
		ListByUser(ctx context.Context, userID int64, opts ListOptions) ([]core.Insight, error)

		// FindDuplicates returns insights of userID with exactly this message created at or after since.
		FindDuplicates(ctx context.Context, userID int64, message string, since time.Time) ([]core.Insight, error)

		DeleteMany(ctx context.Context, ids []int64) error

		// Get returns core.ErrNotFound when the insight does not exist.
		Get(ctx context.Context, id int64) (core.Insight, error)

		MarkRead(ctx context.Context, id int64) error

		// MarkAllRead flags every unread insight of userID and returns how many changed.
		MarkAllRead(ctx context.Context, userID int64) (int64, error)
	}
)

// ListOptions narrows ListByUser. A zero Limit means no limit.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}
