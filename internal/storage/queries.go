package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TransactionRow struct {
	ID       int64
	UserID   int64
	Type     string
	Category string
	Amount   string
	Date     string
}

type BudgetRow struct {
	UserID   int64
	Category string
	Amount   string
}

type GoalRow struct {
	ID     int64
	UserID int64
	Title  string
	Target string
	Saved  string
	Status string
}

type InsightRow struct {
	ID        int64
	UserID    int64
	Message   string
	Type      string
	IsRead    int64
	DayBucket string
	CreatedAt string
	UpdatedAt string
}

const createTransaction = `
INSERT INTO transactions (user_id, type, category, amount, date)
VALUES (?, ?, ?, ?, ?)
RETURNING id`

type CreateTransactionParams struct {
	UserID   int64
	Type     string
	Category string
	Amount   string
	Date     string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createTransaction,
		arg.UserID, arg.Type, arg.Category, arg.Amount, arg.Date,
	).Scan(&id)
	return id, err
}

const listTransactionsInRange = `
SELECT id, user_id, type, category, amount, date
FROM transactions
WHERE user_id = ? AND date >= ? AND date <= ?
ORDER BY date, id`

const listTransactionsByTypeInRange = `
SELECT id, user_id, type, category, amount, date
FROM transactions
WHERE user_id = ? AND type = ? AND date >= ? AND date <= ?
ORDER BY date, id`

type ListTransactionsParams struct {
	UserID int64
	Type   string
	From   string
	To     string
}

// ListTransactionsInRange filters by type only when arg.Type is set.
func (q *Queries) ListTransactionsInRange(ctx context.Context, arg ListTransactionsParams) ([]TransactionRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if arg.Type == "" {
		rows, err = q.db.QueryContext(ctx, listTransactionsInRange, arg.UserID, arg.From, arg.To)
	} else {
		rows, err = q.db.QueryContext(ctx, listTransactionsByTypeInRange, arg.UserID, arg.Type, arg.From, arg.To)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Type, &i.Category, &i.Amount, &i.Date); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listActiveUsers = `
SELECT DISTINCT user_id FROM transactions WHERE date >= ? ORDER BY user_id`

func (q *Queries) ListActiveUsers(ctx context.Context, since string) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listActiveUsers, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	return items, rows.Err()
}

const upsertBudget = `
INSERT INTO budgets (user_id, category, amount)
VALUES (?, ?, ?)
ON CONFLICT (user_id, category) DO UPDATE SET amount = excluded.amount`

func (q *Queries) UpsertBudget(ctx context.Context, arg BudgetRow) error {
	_, err := q.db.ExecContext(ctx, upsertBudget, arg.UserID, arg.Category, arg.Amount)
	return err
}

const listBudgetsByUser = `
SELECT user_id, category, amount FROM budgets WHERE user_id = ? ORDER BY category`

func (q *Queries) ListBudgetsByUser(ctx context.Context, userID int64) ([]BudgetRow, error) {
	rows, err := q.db.QueryContext(ctx, listBudgetsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetRow
	for rows.Next() {
		var i BudgetRow
		if err := rows.Scan(&i.UserID, &i.Category, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createGoal = `
INSERT INTO goals (user_id, title, target, saved, status)
VALUES (?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateGoal(ctx context.Context, arg GoalRow) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createGoal,
		arg.UserID, arg.Title, arg.Target, arg.Saved, arg.Status,
	).Scan(&id)
	return id, err
}

const listGoalsByStatus = `
SELECT id, user_id, title, target, saved, status
FROM goals
WHERE user_id = ? AND status = ?
ORDER BY id`

func (q *Queries) ListGoalsByStatus(ctx context.Context, userID int64, status string) ([]GoalRow, error) {
	rows, err := q.db.QueryContext(ctx, listGoalsByStatus, userID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GoalRow
	for rows.Next() {
		var i GoalRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Title, &i.Target, &i.Saved, &i.Status); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createInsight = `
INSERT INTO insights (user_id, message, type, is_read, day_bucket, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?)
RETURNING id`

type CreateInsightParams struct {
	UserID    int64
	Message   string
	Type      string
	DayBucket string
	CreatedAt string
}

func (q *Queries) CreateInsight(ctx context.Context, arg CreateInsightParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createInsight,
		arg.UserID, arg.Message, arg.Type, arg.DayBucket, arg.CreatedAt, arg.CreatedAt,
	).Scan(&id)
	return id, err
}

const insightColumns = `id, user_id, message, type, is_read, day_bucket, created_at, updated_at`

// A negative LIMIT means no limit in SQLite.
const listInsightsByUser = `
SELECT ` + insightColumns + `
FROM insights
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`

const listUnreadInsightsByUser = `
SELECT ` + insightColumns + `
FROM insights
WHERE user_id = ? AND is_read = 0
ORDER BY created_at DESC, id DESC
LIMIT ?`

type ListInsightsParams struct {
	UserID     int64
	UnreadOnly bool
	Limit      int64
}

func (q *Queries) ListInsightsByUser(ctx context.Context, arg ListInsightsParams) ([]InsightRow, error) {
	query := listInsightsByUser
	if arg.UnreadOnly {
		query = listUnreadInsightsByUser
	}
	rows, err := q.db.QueryContext(ctx, query, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanInsights(rows)
}

const findInsightsByMessageSince = `
SELECT ` + insightColumns + `
FROM insights
WHERE user_id = ? AND message = ? AND created_at >= ?
ORDER BY created_at DESC, id DESC`

func (q *Queries) FindInsightsByMessageSince(ctx context.Context, userID int64, message, since string) ([]InsightRow, error) {
	rows, err := q.db.QueryContext(ctx, findInsightsByMessageSince, userID, message, since)
	if err != nil {
		return nil, err
	}
	return scanInsights(rows)
}

const getInsight = `SELECT ` + insightColumns + ` FROM insights WHERE id = ?`

func (q *Queries) GetInsight(ctx context.Context, id int64) (InsightRow, error) {
	var i InsightRow
	err := q.db.QueryRowContext(ctx, getInsight, id).Scan(
		&i.ID, &i.UserID, &i.Message, &i.Type, &i.IsRead, &i.DayBucket, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}

const deleteInsight = `DELETE FROM insights WHERE id = ?`

func (q *Queries) DeleteInsight(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteInsight, id)
	return err
}

const markInsightRead = `
UPDATE insights SET is_read = 1, updated_at = ? WHERE id = ? AND is_read = 0`

func (q *Queries) MarkInsightRead(ctx context.Context, id int64, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markInsightRead, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markAllInsightsRead = `
UPDATE insights SET is_read = 1, updated_at = ? WHERE user_id = ? AND is_read = 0`

func (q *Queries) MarkAllInsightsRead(ctx context.Context, userID int64, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllInsightsRead, updatedAt, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanInsights(rows *sql.Rows) ([]InsightRow, error) {
	defer rows.Close()
	var items []InsightRow
	for rows.Next() {
		var i InsightRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Message, &i.Type, &i.IsRead, &i.DayBucket, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
