package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Deposit    TxType = "deposit"
	Withdrawal TxType = "withdrawal"
)

type (
	// TxType is the direction of a transaction's effect on a balance.
	TxType string

	// Date is a calendar date with no time-of-day component.
	Date struct {
		time.Time
	}

	Account struct {
		ID           int64
		Name         string
		BalanceCents int64
	}

	// Transaction belongs to exactly one account and is destroyed with it.
	Transaction struct {
		ID          int64
		AccountID   int64
		Type        TxType
		AmountCents int64
		Date        Date
		Note        string
	}
)

var (
	ErrEmptyName           = errors.New("empty account name")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrOverdraft           = errors.New("balance would go negative")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

const dateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseTxType validates a user-supplied transaction type.
func ParseTxType(s string) (TxType, error) {
	switch TxType(strings.ToLower(strings.TrimSpace(s))) {
	case Deposit:
		return Deposit, nil
	case Withdrawal:
		return Withdrawal, nil
	}
	return "", ErrInvalidType
}

func (t TxType) Validate() error {
	switch t {
	case Deposit, Withdrawal:
		return nil
	}
	return ErrInvalidType
}

// SignedCents is the quantity a transaction adds to its account's balance:
// positive for a deposit, negative for a withdrawal.
func SignedCents(t TxType, amountCents int64) int64 {
	if t == Withdrawal {
		return -amountCents
	}
	return amountCents
}

// SignedCents returns the transaction's signed effect on its account.
func (tx Transaction) SignedCents() int64 {
	return SignedCents(tx.Type, tx.AmountCents)
}

// ValidateAccountName rejects empty or blank display names.
func ValidateAccountName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (tx Transaction) Validate() error {
	if err := tx.Type.Validate(); err != nil {
		return err
	}
	if tx.AmountCents <= 0 {
		return ErrInvalidAmount
	}
	if err := tx.Date.Validate(); err != nil {
		return err
	}
	return nil
}

// IsValidation reports whether err is one of the input-validation sentinels,
// as opposed to overdraft, not-found or storage failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDate)
}

// IsNotFound reports whether err indicates a missing account or transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrTransactionNotFound)
}
