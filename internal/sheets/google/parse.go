package google

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"finsight/internal/core"
)

// Transactions tab columns: A user_id, B date, C type, D category, E amount, F id (optional).
// Budgets tab columns: A user_id, B category, C limit.
// A first row whose user_id is not numeric is treated as a header.

// sheetsEpoch is day zero of spreadsheet date serial numbers.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func cell(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func cellText(row []any, idx int) string {
	v := cell(row, idx)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func isHeader(i int, row []any) bool {
	if i != 0 || len(row) == 0 {
		return false
	}
	_, err := parseUserID(row[0])
	return err != nil
}

func parseUserID(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		if x != float64(int64(x)) || x <= 0 {
			return 0, core.ErrInvalidUser
		}
		return int64(x), nil
	default:
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
		if err != nil || id <= 0 {
			return 0, core.ErrInvalidUser
		}
		return id, nil
	}
}

// parseDate accepts ISO dates or spreadsheet serial day numbers.
func parseDate(v any) (core.Date, error) {
	if f, ok := v.(float64); ok {
		return core.DateOf(sheetsEpoch.AddDate(0, 0, int(f))), nil
	}
	return core.ParseDate(fmt.Sprint(v))
}

// parseAmount accepts numbers or text with either decimal separator.
func parseAmount(v any) (core.Money, error) {
	if f, ok := v.(float64); ok {
		return core.ParseMoney(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return core.ParseMoney(fmt.Sprint(v))
}

func parseType(s string) core.TransactionType {
	return core.TransactionType(strings.ToLower(s))
}

// parseTransactions converts the transactions tab into ledger rows, returning
// how many non-header rows were rejected.
func parseTransactions(values [][]any) ([]core.Transaction, int) {
	var out []core.Transaction
	skipped := 0
	for i, row := range values {
		if isHeader(i, row) || emptyRow(row) {
			continue
		}
		tx, err := parseTransactionRow(row)
		if err != nil {
			skipped++
			continue
		}
		if tx.ID == 0 {
			tx.ID = int64(i + 1)
		}
		out = append(out, tx)
	}
	return out, skipped
}

func parseTransactionRow(row []any) (core.Transaction, error) {
	userID, err := parseUserID(cell(row, 0))
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(cell(row, 1))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := parseAmount(cell(row, 4))
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		UserID:   userID,
		Type:     parseType(cellText(row, 2)),
		Category: cellText(row, 3),
		Amount:   amount,
		Date:     date,
	}
	if v := cell(row, 5); v != nil {
		if id, err := parseUserID(v); err == nil {
			tx.ID = id
		}
	}
	if tx.Type == core.Income && tx.Category == "" {
		tx.Category = "Income"
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func parseBudgets(values [][]any) ([]core.Budget, int) {
	var out []core.Budget
	skipped := 0
	for i, row := range values {
		if isHeader(i, row) || emptyRow(row) {
			continue
		}
		userID, err := parseUserID(cell(row, 0))
		if err != nil {
			skipped++
			continue
		}
		limit, err := parseAmount(cell(row, 2))
		if err != nil {
			skipped++
			continue
		}
		b := core.Budget{UserID: userID, Category: cellText(row, 1), Limit: limit}
		if err := b.Validate(); err != nil {
			skipped++
			continue
		}
		out = append(out, b)
	}
	return out, skipped
}

func emptyRow(row []any) bool {
	for _, s := range toStrings(row) {
		if s != "" {
			return false
		}
	}
	return true
}

func filterTransactions(rows []core.Transaction, userID int64, from, to core.Date, txType *core.TransactionType) []core.Transaction {
	var out []core.Transaction
	for _, tx := range rows {
		if tx.UserID != userID || tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
			continue
		}
		if txType != nil && tx.Type != *txType {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// budgetsForUser keeps the last row per category and orders by category.
func budgetsForUser(all []core.Budget, userID int64) []core.Budget {
	byCat := map[string]core.Budget{}
	for _, b := range all {
		if b.UserID == userID {
			byCat[b.Category] = b
		}
	}
	out := make([]core.Budget, 0, len(byCat))
	for _, b := range byCat {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b core.Budget) int { return strings.Compare(a.Category, b.Category) })
	return out
}

func activeUsers(rows []core.Transaction, since core.Date) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, tx := range rows {
		if tx.Date.Before(since.Time) || seen[tx.UserID] {
			continue
		}
		seen[tx.UserID] = true
		ids = append(ids, tx.UserID)
	}
	slices.Sort(ids)
	return ids
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return &tok, nil
}
