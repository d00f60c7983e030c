// Package google reads ledger data (transactions and budgets) from a Google
// Sheets spreadsheet. It is read-only; goals and insights stay in the store.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/store"
)

// Options names the spreadsheet and its tabs.
type Options struct {
	SpreadsheetID     string
	TransactionsSheet string // default "Transactions"
	BudgetsSheet      string // default "Budgets"
}

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	budgetsSheet      string
	logger            *log.Logger
}

var (
	_ store.TransactionReader = (*Client)(nil)
	_ store.BudgetReader      = (*Client)(nil)
	_ store.ActiveUserLister  = (*Client)(nil)
)

// New creates a read-only Sheets client. Credentials come from the environment:
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS for a service account, otherwise
// GOOGLE_OAUTH_CLIENT_JSON with GOOGLE_OAUTH_TOKEN_FILE for a user token
// obtained by cmd/sheets-auth.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	clientOpts, err := credentialsFromEnv(ctx, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, opts, logger), nil
}

func newClient(svc *gsheet.Service, opts Options, logger *log.Logger) *Client {
	txSheet := strings.TrimSpace(opts.TransactionsSheet)
	if txSheet == "" {
		txSheet = "Transactions"
	}
	budgetSheet := strings.TrimSpace(opts.BudgetsSheet)
	if budgetSheet == "" {
		budgetSheet = "Budgets"
	}
	return &Client{
		svc:               svc,
		spreadsheetID:     strings.TrimSpace(opts.SpreadsheetID),
		transactionsSheet: txSheet,
		budgetsSheet:      budgetSheet,
		logger:            logger,
	}
}

func credentialsFromEnv(ctx context.Context, logger *log.Logger) ([]goption.ClientOption, error) {
	saJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	saFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if saJSON == "" && saFile == "" {
		saFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	scope := goption.WithScopes(gsheet.SpreadsheetsReadonlyScope)
	switch {
	case saJSON != "":
		logger.InfoContext(ctx, "Using inline service account credentials")
		return []goption.ClientOption{goption.WithCredentialsJSON([]byte(saJSON)), scope}, nil
	case saFile != "":
		b, err := os.ReadFile(saFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.InfoContext(ctx, "Using service account credentials file", "path", saFile)
		return []goption.ClientOption{goption.WithCredentialsJSON(b), scope}, nil
	}

	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if clientJSON == "" || tokenFile == "" {
		return nil, errors.New("missing sheets credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or GOOGLE_OAUTH_CLIENT_JSON with GOOGLE_OAUTH_TOKEN_FILE)")
	}
	cfg, err := goauth.ConfigFromJSON([]byte(clientJSON), gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	base := &http.Client{Transport: pooledTransport(), Timeout: 60 * time.Second}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	logger.InfoContext(ctx, "Using OAuth user token", "token_file", tokenFile)
	return []goption.ClientOption{goption.WithHTTPClient(cfg.Client(ctx, tok))}, nil
}

// pooledTransport keeps connections to the Sheets API warm between reads.
func pooledTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

func (c *Client) readRange(ctx context.Context, sheet, cols string) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", sheet, cols)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", rng, core.ErrTransient, err)
	}
	return resp.Values, nil
}

// ListTransactions scans the transactions tab. Rows that fail to parse are skipped and logged.
func (c *Client) ListTransactions(ctx context.Context, userID int64, from, to core.Date, txType *core.TransactionType) ([]core.Transaction, error) {
	values, err := c.readRange(ctx, c.transactionsSheet, "A:F")
	if err != nil {
		return nil, err
	}
	rows, skipped := parseTransactions(values)
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped unparsable transaction rows",
			log.FieldCount, skipped,
			"sheet", c.transactionsSheet)
	}
	return filterTransactions(rows, userID, from, to, txType), nil
}

func (c *Client) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	values, err := c.readRange(ctx, c.budgetsSheet, "A:C")
	if err != nil {
		return nil, err
	}
	budgets, skipped := parseBudgets(values)
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped unparsable budget rows",
			log.FieldCount, skipped,
			"sheet", c.budgetsSheet)
	}
	return budgetsForUser(budgets, userID), nil
}

func (c *Client) ActiveUserIDs(ctx context.Context, since core.Date) ([]int64, error) {
	values, err := c.readRange(ctx, c.transactionsSheet, "A:F")
	if err != nil {
		return nil, err
	}
	rows, _ := parseTransactions(values)
	return activeUsers(rows, since), nil
}
