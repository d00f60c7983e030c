// Package services holds the insight engine: window aggregation, rule
// evaluation, deduplication, retention and read state.
package services

import (
	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

// SpendSplit summarizes the expenses of one side of the weekend/weekday partition.
type SpendSplit struct {
	Total   core.Money
	Count   int
	Average decimal.Decimal
}

// WindowAggregate is the read-only summary of a user's transactions over one window.
type WindowAggregate struct {
	From, To     core.Date
	TotalIncome  core.Money
	TotalExpense core.Money

	// SavingsRate is a percentage, meaningful only when HasSavingsRate is true.
	SavingsRate    decimal.Decimal
	HasSavingsRate bool

	// ByCategory holds expense totals per exact category label, in first-seen order.
	ByCategory []core.CategoryAmount

	Weekend SpendSplit
	Weekday SpendSplit
}

// Aggregate folds the transactions dated within [from, to] into a WindowAggregate.
// Transactions outside the window are ignored.
func Aggregate(txs []core.Transaction, from, to core.Date) WindowAggregate {
	agg := WindowAggregate{
		From:         from,
		To:           to,
		TotalIncome:  core.Zero(),
		TotalExpense: core.Zero(),
		Weekend:      SpendSplit{Total: core.Zero(), Average: decimal.Zero},
		Weekday:      SpendSplit{Total: core.Zero(), Average: decimal.Zero},
	}
	index := make(map[string]int)

	for _, tx := range txs {
		if tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
			continue
		}
		switch tx.Type {
		case core.Income:
			agg.TotalIncome = agg.TotalIncome.Add(tx.Amount)
		case core.Expense:
			agg.TotalExpense = agg.TotalExpense.Add(tx.Amount)

			i, ok := index[tx.Category]
			if !ok {
				i = len(agg.ByCategory)
				index[tx.Category] = i
				agg.ByCategory = append(agg.ByCategory, core.CategoryAmount{Name: tx.Category, Amount: core.Zero()})
			}
			agg.ByCategory[i].Amount = agg.ByCategory[i].Amount.Add(tx.Amount)

			split := &agg.Weekday
			if tx.Date.IsWeekend() {
				split = &agg.Weekend
			}
			split.Total = split.Total.Add(tx.Amount)
			split.Count++
		}
	}

	if agg.TotalIncome.IsPositive() {
		net := agg.TotalIncome.Sub(agg.TotalExpense)
		agg.SavingsRate = core.Percent(net.Amount, agg.TotalIncome.Amount)
		agg.HasSavingsRate = true
	}
	agg.Weekend.Average = average(agg.Weekend)
	agg.Weekday.Average = average(agg.Weekday)
	return agg
}

// CategoryTotal returns the expense total for name, or zero when absent.
func (a WindowAggregate) CategoryTotal(name string) core.Money {
	for _, c := range a.ByCategory {
		if c.Name == name {
			return c.Amount
		}
	}
	return core.Zero()
}

func average(s SpendSplit) decimal.Decimal {
	if s.Count == 0 {
		return decimal.Zero
	}
	return s.Total.Amount.DivRound(decimal.NewFromInt(int64(s.Count)), 2)
}
