package services

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// RuleConfig holds every threshold the rules compare against. Percentages are
// expressed in percent units (20 means 20%), except WeekendShareOfExpense which
// is a plain fraction of total expense.
type RuleConfig struct {
	SavingsGoodPercent decimal.Decimal `json:"savings_good_percent"`
	SavingsLowPercent  decimal.Decimal `json:"savings_low_percent"`

	WatchedCategories        []string        `json:"watched_categories"`
	WatchedSharePercent      decimal.Decimal `json:"watched_share_percent"`
	HighSharePercent         decimal.Decimal `json:"high_share_percent"`
	HighShareMinTotalExpense decimal.Decimal `json:"high_share_min_total_expense"`

	WeekendRatio          decimal.Decimal `json:"weekend_ratio"`
	WeekendShareOfExpense decimal.Decimal `json:"weekend_share_of_expense"`

	GoalProgressPercent    decimal.Decimal `json:"goal_progress_percent"`
	GoalSavingsRatePercent decimal.Decimal `json:"goal_savings_rate_percent"`

	BudgetExcessPercent decimal.Decimal `json:"budget_excess_percent"`
}

// DefaultRuleConfig returns the production thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		SavingsGoodPercent: decimal.NewFromInt(20),
		SavingsLowPercent:  decimal.NewFromInt(10),

		WatchedCategories:        []string{"Food", "Entertainment", "Shopping", "Transportation"},
		WatchedSharePercent:      decimal.NewFromInt(40),
		HighSharePercent:         decimal.NewFromInt(30),
		HighShareMinTotalExpense: decimal.NewFromInt(10000),

		WeekendRatio:          decimal.RequireFromString("1.5"),
		WeekendShareOfExpense: decimal.RequireFromString("0.3"),

		GoalProgressPercent:    decimal.NewFromInt(50),
		GoalSavingsRatePercent: decimal.NewFromInt(15),

		BudgetExcessPercent: decimal.NewFromInt(10),
	}
}

// Validate reports every out-of-range threshold at once.
func (c RuleConfig) Validate() error {
	var problems []string

	nonNegative := map[string]decimal.Decimal{
		"savings_good_percent":         c.SavingsGoodPercent,
		"savings_low_percent":          c.SavingsLowPercent,
		"watched_share_percent":        c.WatchedSharePercent,
		"high_share_percent":           c.HighSharePercent,
		"high_share_min_total_expense": c.HighShareMinTotalExpense,
		"weekend_ratio":                c.WeekendRatio,
		"weekend_share_of_expense":     c.WeekendShareOfExpense,
		"goal_progress_percent":        c.GoalProgressPercent,
		"goal_savings_rate_percent":    c.GoalSavingsRatePercent,
		"budget_excess_percent":        c.BudgetExcessPercent,
	}
	for _, name := range slices.Sorted(maps.Keys(nonNegative)) {
		if nonNegative[name].IsNegative() {
			problems = append(problems, fmt.Sprintf("%s must not be negative, got %s", name, nonNegative[name]))
		}
	}

	if c.SavingsLowPercent.GreaterThan(c.SavingsGoodPercent) {
		problems = append(problems, fmt.Sprintf("savings_low_percent %s exceeds savings_good_percent %s",
			c.SavingsLowPercent, c.SavingsGoodPercent))
	}
	if c.WeekendShareOfExpense.GreaterThan(decimal.NewFromInt(1)) {
		problems = append(problems, fmt.Sprintf("weekend_share_of_expense %s must be a fraction between 0 and 1",
			c.WeekendShareOfExpense))
	}
	for i, cat := range c.WatchedCategories {
		if strings.TrimSpace(cat) == "" {
			problems = append(problems, fmt.Sprintf("watched_categories[%d] is empty", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("rule configuration invalid:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// LoadRuleConfigFile overlays the JSON document at path onto DefaultRuleConfig.
// Fields missing from the file keep their default values.
func LoadRuleConfigFile(path string) (RuleConfig, error) {
	cfg := DefaultRuleConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read rule config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse rule config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
