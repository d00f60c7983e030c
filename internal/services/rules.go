// This file implements the insight rules as a small strategy registry.
// Each rule inspects one aspect of the window and proposes zero or more
// candidate insights; the evaluator runs them all in a fixed order.

package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/log"
)

// RuleInput is everything a rule may look at.
type RuleInput struct {
	Window  WindowAggregate
	Budgets []core.Budget
	Goals   []core.Goal
}

// Candidate is a proposed insight before deduplication.
type Candidate struct {
	Rule     string
	Message  string
	Severity core.Severity
}

// Rule is a single deterministic heuristic over a RuleInput.
type Rule interface {
	Name() string
	Evaluate(in RuleInput) ([]Candidate, error)
}

// SavingsRateRule grades the share of income left after expenses.
type SavingsRateRule struct{ cfg RuleConfig }

func (SavingsRateRule) Name() string { return "savings_rate" }

func (r SavingsRateRule) Evaluate(in RuleInput) ([]Candidate, error) {
	w := in.Window
	if !w.HasSavingsRate {
		return nil, nil
	}
	rate := w.SavingsRate
	switch {
	case rate.GreaterThanOrEqual(r.cfg.SavingsGoodPercent):
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeveritySuccess,
			Message:  fmt.Sprintf("Your savings rate is good! You're saving %s%% of your income.", core.FormatPercent(rate)),
		}}, nil
	case rate.LessThan(r.cfg.SavingsLowPercent):
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeverityWarning,
			Message: fmt.Sprintf("Try to save at least %s%% of your income. Currently you're saving %s%%.",
				r.cfg.SavingsGoodPercent.String(), core.FormatPercent(rate)),
		}}, nil
	case rate.IsNegative():
		// Shadowed by the low-savings branch unless SavingsLowPercent is negative.
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeverityWarning,
			Message:  "You're spending more than you earn. Try to reduce expenses or increase income.",
		}}, nil
	}
	return nil, nil
}

// CategoryConcentrationRule flags a single category dominating expenses.
type CategoryConcentrationRule struct{ cfg RuleConfig }

func (CategoryConcentrationRule) Name() string { return "category_concentration" }

func (r CategoryConcentrationRule) Evaluate(in RuleInput) ([]Candidate, error) {
	w := in.Window
	if len(w.ByCategory) == 0 || !w.TotalExpense.IsPositive() {
		return nil, nil
	}
	top := largestCategory(w.ByCategory)
	share := core.Percent(top.Amount.Amount, w.TotalExpense.Amount)

	if share.GreaterThan(r.cfg.WatchedSharePercent) && slices.Contains(r.cfg.WatchedCategories, top.Name) {
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeverityWarning,
			Message:  fmt.Sprintf("You are spending too much on %s. Consider reducing expenses in this category.", top.Name),
		}}, nil
	}
	if share.GreaterThan(r.cfg.HighSharePercent) && w.TotalExpense.Amount.GreaterThan(r.cfg.HighShareMinTotalExpense) {
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeverityTip,
			Message:  fmt.Sprintf("Your spending on %s is high (%s%% of total expenses).", top.Name, core.FormatPercent(share)),
		}}, nil
	}
	return nil, nil
}

// largestCategory orders by total descending, then label ascending.
func largestCategory(cats []core.CategoryAmount) core.CategoryAmount {
	sorted := slices.Clone(cats)
	slices.SortStableFunc(sorted, func(a, b core.CategoryAmount) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sorted[0]
}

// WeekendSpendingRule compares average weekend and weekday expenses.
type WeekendSpendingRule struct{ cfg RuleConfig }

func (WeekendSpendingRule) Name() string { return "weekend_spending" }

func (r WeekendSpendingRule) Evaluate(in RuleInput) ([]Candidate, error) {
	w := in.Window
	if w.Weekend.Count == 0 || w.Weekday.Count == 0 || !w.Weekday.Average.IsPositive() {
		return nil, nil
	}
	ratio := w.Weekend.Average.DivRound(w.Weekday.Average, 2)
	floor := w.TotalExpense.Amount.Mul(r.cfg.WeekendShareOfExpense)
	if ratio.GreaterThan(r.cfg.WeekendRatio) && w.Weekend.Total.Amount.GreaterThan(floor) {
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeverityTip,
			Message:  "Reduce weekend spending. Your weekend expenses are significantly higher than weekdays.",
		}}, nil
	}
	return nil, nil
}

// GoalsProgressRule nudges users with lagging goals but room to save more.
type GoalsProgressRule struct{ cfg RuleConfig }

func (GoalsProgressRule) Name() string { return "goals_progress" }

func (r GoalsProgressRule) Evaluate(in RuleInput) ([]Candidate, error) {
	target, saved := decimal.Zero, decimal.Zero
	active := 0
	for _, g := range in.Goals {
		if g.Status != core.GoalActive {
			continue
		}
		active++
		target = target.Add(g.Target.Amount)
		saved = saved.Add(g.Saved.Amount)
	}
	if active == 0 || !target.IsPositive() {
		return nil, nil
	}
	progress := core.Percent(saved, target)
	if progress.LessThan(r.cfg.GoalProgressPercent) && in.Window.SavingsRate.GreaterThan(r.cfg.GoalSavingsRatePercent) {
		return []Candidate{{
			Rule:     r.Name(),
			Severity: core.SeverityInfo,
			Message:  "You have active goals. Consider allocating more savings towards them.",
		}}, nil
	}
	return nil, nil
}

// BudgetOverageRule emits one warning per budget exceeded beyond the tolerance.
type BudgetOverageRule struct{ cfg RuleConfig }

func (BudgetOverageRule) Name() string { return "budget_overage" }

func (r BudgetOverageRule) Evaluate(in RuleInput) ([]Candidate, error) {
	var out []Candidate
	for _, b := range in.Budgets {
		if !b.Limit.IsPositive() {
			continue
		}
		excess := in.Window.CategoryTotal(b.Category).Sub(b.Limit)
		if !excess.IsPositive() {
			continue
		}
		pct := core.Percent(excess.Amount, b.Limit.Amount)
		if pct.GreaterThan(r.cfg.BudgetExcessPercent) {
			out = append(out, Candidate{
				Rule:     r.Name(),
				Severity: core.SeverityWarning,
				Message:  fmt.Sprintf("You've exceeded your budget for %s by %s%%.", b.Category, core.FormatPercent(pct)),
			})
		}
	}
	return out, nil
}

// DefaultRules returns the five production rules in evaluation order.
func DefaultRules(cfg RuleConfig) []Rule {
	return []Rule{
		SavingsRateRule{cfg: cfg},
		CategoryConcentrationRule{cfg: cfg},
		WeekendSpendingRule{cfg: cfg},
		GoalsProgressRule{cfg: cfg},
		BudgetOverageRule{cfg: cfg},
	}
}

// RuleEvaluator runs rules in order, isolating each from the others' failures.
type RuleEvaluator struct {
	rules   []Rule
	logger  *log.Logger
	metrics *Metrics
}

// NewRuleEvaluator builds the evaluator over DefaultRules(cfg).
func NewRuleEvaluator(cfg RuleConfig, logger *log.Logger, metrics *Metrics) *RuleEvaluator {
	return NewRuleEvaluatorWithRules(DefaultRules(cfg), logger, metrics)
}

func NewRuleEvaluatorWithRules(rules []Rule, logger *log.Logger, metrics *Metrics) *RuleEvaluator {
	if logger == nil {
		logger = log.Discard()
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &RuleEvaluator{
		rules:   rules,
		logger:  logger.WithComponent(log.ComponentRules),
		metrics: metrics,
	}
}

// Evaluate returns the concatenated candidates of every rule that succeeded.
// A rule that errors or panics is logged and contributes nothing.
func (e *RuleEvaluator) Evaluate(ctx context.Context, in RuleInput) []Candidate {
	var out []Candidate
	for _, rule := range e.rules {
		cands, err := e.run(rule, in)
		if err != nil {
			e.metrics.RuleFailed(ctx, rule.Name())
			e.logger.WarnContext(ctx, "Rule evaluation failed",
				log.FieldRule, rule.Name(),
				log.FieldError, err)
			continue
		}
		out = append(out, cands...)
	}
	return out
}

func (e *RuleEvaluator) run(rule Rule, in RuleInput) (cands []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cands = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.Name(), r)
		}
	}()
	return rule.Evaluate(in)
}
