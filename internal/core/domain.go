package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
)

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityTip     Severity = "tip"
	SeverityInfo    Severity = "info"
)

type (
	TransactionType string

	GoalStatus string

	// Severity indicates the tone of an insight, not its priority.
	Severity string

	Date struct {
		time.Time
	}

	// Transaction is a read-only ledger entry supplied by the transaction store.
	Transaction struct {
		ID       int64
		UserID   int64
		Type     TransactionType
		Category string
		Amount   Money
		Date     Date
	}

	// Budget is a spending ceiling for one category.
	Budget struct {
		UserID   int64
		Category string
		Limit    Money
	}

	Goal struct {
		ID     int64
		UserID int64
		Title  string
		Target Money
		Saved  Money
		Status GoalStatus
	}

	// Insight is a persisted, user-facing observation. Message is immutable once
	// stored; Read is the only field that changes afterwards.
	Insight struct {
		ID        int64
		UserID    int64
		Message   string
		Severity  Severity
		Read      bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidType     = fmt.Errorf("%w: invalid transaction type", ErrValidation)
	ErrEmptyCategory   = fmt.Errorf("%w: empty category", ErrValidation)
	ErrInvalidUser     = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidSeverity = fmt.Errorf("%w: invalid severity", ErrValidation)
	ErrInvalidStatus   = fmt.Errorf("%w: invalid goal status", ErrValidation)
	ErrEmptyMessage    = fmt.Errorf("%w: empty message", ErrValidation)
)

// NewDate creates a new Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location, returned as UTC midnight.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrValidation, s)
	}
	return Date{Time: t}, nil
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

func (s GoalStatus) Validate() error {
	switch s {
	case GoalActive, GoalCompleted:
		return nil
	default:
		return ErrInvalidStatus
	}
}

func (s Severity) Validate() error {
	switch s {
	case SeveritySuccess, SeverityWarning, SeverityTip, SeverityInfo:
		return nil
	default:
		return ErrInvalidSeverity
	}
}

func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return t.Date.Validate()
}

func (b Budget) Validate() error {
	if b.UserID <= 0 {
		return ErrInvalidUser
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	return b.Limit.Validate()
}

func (g Goal) Validate() error {
	if g.UserID <= 0 {
		return ErrInvalidUser
	}
	if err := g.Target.Validate(); err != nil {
		return err
	}
	if err := g.Saved.Validate(); err != nil {
		return err
	}
	return g.Status.Validate()
}

func (i Insight) Validate() error {
	if i.UserID <= 0 {
		return ErrInvalidUser
	}
	if strings.TrimSpace(i.Message) == "" {
		return ErrEmptyMessage
	}
	return i.Severity.Validate()
}
