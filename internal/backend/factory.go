package backend

import (
	"context"
	"errors"
	"fmt"

	"finsight/internal/adapters"
	"finsight/internal/log"
	gsheet "finsight/internal/sheets/google"
	"finsight/internal/storage"
	"finsight/internal/store"
	"finsight/internal/store/memory"
)

// storeBackend is what both insight store implementations provide.
type storeBackend interface {
	store.Ledger
	store.InsightStore
	store.ActiveUserLister
}

// sheetsLedger is the read side the spreadsheet client offers.
type sheetsLedger interface {
	store.TransactionReader
	store.BudgetReader
	store.ActiveUserLister
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// openSheets is replaced in tests
	openSheets func(ctx context.Context, opts gsheet.Options, logger *log.Logger) (sheetsLedger, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		openSheets: func(ctx context.Context, opts gsheet.Options, logger *log.Logger) (sheetsLedger, error) {
			return gsheet.New(ctx, opts, logger)
		},
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		res = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.Ledger == SheetsLedger {
		if err := f.attachSheets(ctx, config, res); err != nil {
			return nil, errors.Join(err, res.Close())
		}
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, storage.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	res := resultFor(repo)
	res.Ready = repo
	res.Cleanup = repo.Close
	return res, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	f.logger.Warn("Initialized memory backend, insights are lost on restart")
	return resultFor(memory.New())
}

func resultFor(b storeBackend) *Result {
	return &Result{
		Ledger:      b,
		Insights:    b,
		ActiveUsers: b,
	}
}

// attachSheets moves transaction and budget reads onto the spreadsheet while
// goals keep coming from the store backend.
func (f *DefaultFactory) attachSheets(ctx context.Context, config Config, res *Result) error {
	client, err := f.openSheets(ctx, gsheet.Options{
		SpreadsheetID:     config.GoogleSpreadsheetID,
		TransactionsSheet: config.GoogleTransactionsSheet,
		BudgetsSheet:      config.GoogleBudgetsSheet,
	}, f.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	res.Ledger = adapters.NewLedger(client, client, res.Ledger)
	res.ActiveUsers = client

	f.logger.Info("Reading ledger from Google Sheets", "spreadsheet_id", config.GoogleSpreadsheetID)
	return nil
}
