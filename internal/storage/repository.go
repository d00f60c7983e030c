package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/store"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timestampLayout is fixed width so lexical order in SQLite equals time order.
const timestampLayout = "2006-01-02 15:04:05.000000000"

var (
	_ store.Ledger           = (*SQLiteRepository)(nil)
	_ store.InsightStore     = (*SQLiteRepository)(nil)
	_ store.ActiveUserLister = (*SQLiteRepository)(nil)
)

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
	logger  *log.Logger
}

type Option func(*SQLiteRepository)

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(r *SQLiteRepository) { r.logger = l.WithComponent(log.ComponentStorage) }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(repo)
	}

	repo.logger.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers. Used by readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// AddTransaction records a ledger entry. The engine never writes the ledger;
// this exists for seeding and for deployments without an upstream ledger.
func (r *SQLiteRepository) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	id, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		UserID:   tx.UserID,
		Type:     string(tx.Type),
		Category: tx.Category,
		Amount:   tx.Amount.String(),
		Date:     tx.Date.String(),
	})
	if err != nil {
		return core.Transaction{}, transient("create transaction", err)
	}
	tx.ID = id
	return tx, nil
}

func (r *SQLiteRepository) SetBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertBudget(ctx, BudgetRow{UserID: b.UserID, Category: b.Category, Amount: b.Limit.String()})
	if err != nil {
		return transient("upsert budget", err)
	}
	return nil
}

func (r *SQLiteRepository) AddGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	id, err := r.queries.CreateGoal(ctx, GoalRow{
		UserID: g.UserID,
		Title:  g.Title,
		Target: g.Target.String(),
		Saved:  g.Saved.String(),
		Status: string(g.Status),
	})
	if err != nil {
		return core.Goal{}, transient("create goal", err)
	}
	g.ID = id
	return g, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, from, to core.Date, txType *core.TransactionType) ([]core.Transaction, error) {
	arg := ListTransactionsParams{UserID: userID, From: from.String(), To: to.String()}
	if txType != nil {
		arg.Type = string(*txType)
	}
	rows, err := r.queries.ListTransactionsInRange(ctx, arg)
	if err != nil {
		return nil, transient("list transactions", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := transactionFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", row.ID, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.queries.ListBudgetsByUser(ctx, userID)
	if err != nil {
		return nil, transient("list budgets", err)
	}
	out := make([]core.Budget, 0, len(rows))
	for _, row := range rows {
		limit, err := core.ParseMoney(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", row.Category, err)
		}
		out = append(out, core.Budget{UserID: row.UserID, Category: row.Category, Limit: limit})
	}
	return out, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID int64, status core.GoalStatus) ([]core.Goal, error) {
	rows, err := r.queries.ListGoalsByStatus(ctx, userID, string(status))
	if err != nil {
		return nil, transient("list goals", err)
	}
	out := make([]core.Goal, 0, len(rows))
	for _, row := range rows {
		target, err := core.ParseMoney(row.Target)
		if err != nil {
			return nil, fmt.Errorf("goal %d target: %w", row.ID, err)
		}
		saved, err := core.ParseMoney(row.Saved)
		if err != nil {
			return nil, fmt.Errorf("goal %d saved: %w", row.ID, err)
		}
		out = append(out, core.Goal{
			ID:     row.ID,
			UserID: row.UserID,
			Title:  row.Title,
			Target: target,
			Saved:  saved,
			Status: core.GoalStatus(row.Status),
		})
	}
	return out, nil
}

func (r *SQLiteRepository) ActiveUserIDs(ctx context.Context, since core.Date) ([]int64, error) {
	ids, err := r.queries.ListActiveUsers(ctx, since.String())
	if err != nil {
		return nil, transient("list active users", err)
	}
	return ids, nil
}

// Insert stores a new unread insight. A second identical message for the same
// user on the same UTC day violates the day bucket constraint and yields core.ErrDuplicate.
func (r *SQLiteRepository) Insert(ctx context.Context, in core.Insight) (core.Insight, error) {
	if err := in.Validate(); err != nil {
		return core.Insight{}, err
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	created = created.UTC()

	id, err := r.queries.CreateInsight(ctx, CreateInsightParams{
		UserID:    in.UserID,
		Message:   in.Message,
		Type:      string(in.Severity),
		DayBucket: created.Format(time.DateOnly),
		CreatedAt: created.Format(timestampLayout),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Insight{}, core.ErrDuplicate
		}
		return core.Insight{}, transient("create insight", err)
	}

	in.ID = id
	in.Read = false
	in.CreatedAt = created
	in.UpdatedAt = created
	return in, nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID int64, opts store.ListOptions) ([]core.Insight, error) {
	limit := int64(-1)
	if opts.Limit > 0 {
		limit = int64(opts.Limit)
	}
	rows, err := r.queries.ListInsightsByUser(ctx, ListInsightsParams{
		UserID:     userID,
		UnreadOnly: opts.UnreadOnly,
		Limit:      limit,
	})
	if err != nil {
		return nil, transient("list insights", err)
	}
	return insightsFromRows(rows)
}

func (r *SQLiteRepository) FindDuplicates(ctx context.Context, userID int64, message string, since time.Time) ([]core.Insight, error) {
	rows, err := r.queries.FindInsightsByMessageSince(ctx, userID, message, since.UTC().Format(timestampLayout))
	if err != nil {
		return nil, transient("find duplicate insights", err)
	}
	return insightsFromRows(rows)
}

// DeleteMany removes the given insights in one transaction.
func (r *SQLiteRepository) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin delete", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, id := range ids {
		if err := q.DeleteInsight(ctx, id); err != nil {
			return transient("delete insight", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return transient("commit delete", err)
	}
	r.logger.DebugContext(ctx, "Insights deleted", log.FieldCount, len(ids))
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Insight, error) {
	row, err := r.queries.GetInsight(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Insight{}, core.ErrNotFound
	}
	if err != nil {
		return core.Insight{}, transient("get insight", err)
	}
	return insightFromRow(row)
}

// MarkRead is idempotent; it only fails when id does not exist.
func (r *SQLiteRepository) MarkRead(ctx context.Context, id int64) error {
	n, err := r.queries.MarkInsightRead(ctx, id, r.now().UTC().Format(timestampLayout))
	if err != nil {
		return transient("mark insight read", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := r.queries.MarkAllInsightsRead(ctx, userID, r.now().UTC().Format(timestampLayout))
	if err != nil {
		return 0, transient("mark all insights read", err)
	}
	return n, nil
}

func transactionFromRow(row TransactionRow) (core.Transaction, error) {
	amount, err := core.ParseMoney(row.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:       row.ID,
		UserID:   row.UserID,
		Type:     core.TransactionType(row.Type),
		Category: row.Category,
		Amount:   amount,
		Date:     date,
	}, nil
}

func insightFromRow(row InsightRow) (core.Insight, error) {
	created, err := time.Parse(timestampLayout, row.CreatedAt)
	if err != nil {
		return core.Insight{}, fmt.Errorf("insight %d created_at: %w", row.ID, err)
	}
	updated, err := time.Parse(timestampLayout, row.UpdatedAt)
	if err != nil {
		return core.Insight{}, fmt.Errorf("insight %d updated_at: %w", row.ID, err)
	}
	return core.Insight{
		ID:        row.ID,
		UserID:    row.UserID,
		Message:   row.Message,
		Severity:  core.Severity(row.Type),
		Read:      row.IsRead != 0,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func insightsFromRows(rows []InsightRow) ([]core.Insight, error) {
	out := make([]core.Insight, 0, len(rows))
	for _, row := range rows {
		in, err := insightFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrTransient, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
