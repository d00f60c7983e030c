// Package adapters composes the engine's ledger from independent sources.
package adapters

import (
	"context"

	"finsight/internal/core"
	"finsight/internal/store"
)

// Ledger satisfies store.Ledger by routing each read to its own source. The
// spreadsheet ledger carries transactions and budgets but no goals, so goals
// stay with the insight store's backend.
type Ledger struct {
	Transactions store.TransactionReader
	Budgets      store.BudgetReader
	Goals        store.GoalReader
}

var _ store.Ledger = (*Ledger)(nil)

func NewLedger(tx store.TransactionReader, budgets store.BudgetReader, goals store.GoalReader) *Ledger {
	return &Ledger{
		Transactions: tx,
		Budgets:      budgets,
		Goals:        goals,
	}
}

// ListTransactions implements store.TransactionReader
func (l *Ledger) ListTransactions(ctx context.Context, userID int64, from, to core.Date, txType *core.TransactionType) ([]core.Transaction, error) {
	return l.Transactions.ListTransactions(ctx, userID, from, to, txType)
}

// ListBudgets implements store.BudgetReader
func (l *Ledger) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	return l.Budgets.ListBudgets(ctx, userID)
}

// ListGoals implements store.GoalReader
func (l *Ledger) ListGoals(ctx context.Context, userID int64, status core.GoalStatus) ([]core.Goal, error) {
	return l.Goals.ListGoals(ctx, userID, status)
}
