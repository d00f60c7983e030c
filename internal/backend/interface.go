package backend

import (
	"context"

	"finsight/internal/store"
)

// Pinger reports whether a backend can serve requests
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result bundles the ports a binary wires into the engine. Ready is nil for
// backends without a health probe; Cleanup may be nil.
type Result struct {
	Ledger      store.Ledger
	Insights    store.InsightStore
	ActiveUsers store.ActiveUserLister
	Ready       Pinger
	Cleanup     CleanupFunc
}

// Close runs Cleanup if one is set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Type selects where insights, goals and (by default) the ledger live
	Type BackendType

	// Ledger selects where transactions and budgets are read from
	Ledger LedgerSource

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID     string
	GoogleTransactionsSheet string
	GoogleBudgetsSheet      string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// LedgerSource names where transactions and budgets are read from
type LedgerSource string

const (
	StoreLedger  LedgerSource = "store"
	SheetsLedger LedgerSource = "sheets"
)

func (ls LedgerSource) String() string {
	return string(ls)
}

func (ls LedgerSource) IsValid() bool {
	switch ls {
	case StoreLedger, SheetsLedger:
		return true
	default:
		return false
	}
}
