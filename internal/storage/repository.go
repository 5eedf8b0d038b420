package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"conti/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository owns the single storage session used by every ledger
// operation. Operations that touch both an account balance and a transaction
// row run inside one database transaction so neither write is durably split
// from the other.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateAccount inserts an account with a zero balance.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, name string) (core.Account, error) {
	var acct core.Account
	row := r.db.QueryRowContext(ctx, `
	INSERT INTO accounts (name, balance_cents)
	VALUES (?, 0)
	RETURNING id, name, balance_cents`, name)
	if err := row.Scan(&acct.ID, &acct.Name, &acct.BalanceCents); err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "id", acct.ID, "name", acct.Name)
	return acct, nil
}

// RenameAccount updates the display name only.
func (r *SQLiteRepository) RenameAccount(ctx context.Context, id int64, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename account rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes the account and all of its transactions in one
// database transaction, transactions first so no orphaned rows can survive.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete account: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("delete account transactions: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrAccountNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete account: %w", err)
	}

	slog.InfoContext(ctx, "Account deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var acct core.Account
	row := r.db.QueryRowContext(ctx, `
	SELECT id, name, balance_cents FROM accounts WHERE id = ?`, id)
	if err := row.Scan(&acct.ID, &acct.Name, &acct.BalanceCents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, core.ErrAccountNotFound
		}
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// ListAccounts returns every account in insertion order.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, name, balance_cents FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var acct core.Account
		if err := rows.Scan(&acct.ID, &acct.Name, &acct.BalanceCents); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts rows: %w", err)
	}
	return accounts, nil
}

// AddTransaction applies the transaction's signed effect to the account
// balance and inserts the row, both inside one database transaction. A
// withdrawal exceeding the current balance fails with core.ErrOverdraft and
// leaves no trace.
func (r *SQLiteRepository) AddTransaction(ctx context.Context, accountID int64, t core.Transaction) (core.Transaction, core.Account, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("begin add transaction: %w", err)
	}
	defer dbtx.Rollback()

	acct, err := getAccountTx(ctx, dbtx, accountID)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	if t.Type == core.Withdrawal && t.AmountCents > acct.BalanceCents {
		return core.Transaction{}, core.Account{}, core.ErrOverdraft
	}

	acct.BalanceCents += core.SignedCents(t.Type, t.AmountCents)
	if _, err := dbtx.ExecContext(ctx, `
	UPDATE accounts SET balance_cents = ? WHERE id = ?`, acct.BalanceCents, accountID); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("update balance: %w", err)
	}

	row := dbtx.QueryRowContext(ctx, `
	INSERT INTO transactions (account_id, type, amount_cents, date, note)
	VALUES (?, ?, ?, ?, ?)
	RETURNING id`, accountID, string(t.Type), t.AmountCents, t.Date.String(), t.Note)
	if err := row.Scan(&t.ID); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("insert transaction: %w", err)
	}
	t.AccountID = accountID

	if err := dbtx.Commit(); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("commit add transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction added",
		"id", t.ID,
		"account_id", accountID,
		"type", string(t.Type),
		"amount_cents", t.AmountCents,
		"balance_cents", acct.BalanceCents)

	return t, acct, nil
}

// UpdateTransaction reverts the stored transaction's effect, applies the new
// one and overwrites the row, all inside one database transaction. Edits may
// change type and amount at once, hence revert-then-reapply rather than a
// delta on the amounts. A negative candidate balance fails with
// core.ErrOverdraft and leaves both rows untouched.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id int64, t core.Transaction) (core.Transaction, core.Account, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("begin update transaction: %w", err)
	}
	defer dbtx.Rollback()

	orig, err := getTransactionTx(ctx, dbtx, id)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	acct, err := getAccountTx(ctx, dbtx, orig.AccountID)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	reverted := acct.BalanceCents - orig.SignedCents()
	candidate := reverted + core.SignedCents(t.Type, t.AmountCents)
	if candidate < 0 {
		return core.Transaction{}, core.Account{}, core.ErrOverdraft
	}

	acct.BalanceCents = candidate
	if _, err := dbtx.ExecContext(ctx, `
	UPDATE accounts SET balance_cents = ? WHERE id = ?`, candidate, orig.AccountID); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("update balance: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx, `
	UPDATE transactions SET type = ?, amount_cents = ?, date = ?, note = ?, mirrored = 0
	WHERE id = ?`, string(t.Type), t.AmountCents, t.Date.String(), t.Note, id); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("update transaction: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("commit update transaction: %w", err)
	}

	t.ID = id
	t.AccountID = orig.AccountID

	slog.InfoContext(ctx, "Transaction updated",
		"id", id,
		"account_id", orig.AccountID,
		"type", string(t.Type),
		"amount_cents", t.AmountCents,
		"balance_cents", candidate)

	return t, acct, nil
}

// DeleteTransaction reverses the transaction's effect on the balance and
// removes the row in one database transaction. The reversal is applied
// without a non-negativity check: on data that satisfies the balance
// invariant it cannot go negative, and on data already corrupted by an
// external writer the resulting balance is accepted as-is.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) (core.Transaction, core.Account, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer dbtx.Rollback()

	orig, err := getTransactionTx(ctx, dbtx, id)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	acct, err := getAccountTx(ctx, dbtx, orig.AccountID)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	acct.BalanceCents -= orig.SignedCents()
	if _, err := dbtx.ExecContext(ctx, `
	UPDATE accounts SET balance_cents = ? WHERE id = ?`, acct.BalanceCents, orig.AccountID); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("update balance: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("delete transaction: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return core.Transaction{}, core.Account{}, fmt.Errorf("commit delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"id", id,
		"account_id", orig.AccountID,
		"balance_cents", acct.BalanceCents)

	return orig, acct, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return scanTransaction(r.db.QueryRowContext(ctx, `
	SELECT id, account_id, type, amount_cents, date, note
	FROM transactions WHERE id = ?`, id))
}

// ListTransactions returns an account's transactions in insertion order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, account_id, type, amount_cents, date, note
	FROM transactions WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions rows: %w", err)
	}
	return txs, nil
}

// ListUnmirrored returns transactions not yet mirrored to the statement
// backup, oldest first. Used by the worker's periodic catch-up pass.
func (r *SQLiteRepository) ListUnmirrored(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, account_id, type, amount_cents, date, note
	FROM transactions WHERE mirrored = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmirrored transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unmirrored rows: %w", err)
	}
	return txs, nil
}

// MarkMirrored records that a transaction reached the statement backup.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET mirrored = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction mirrored: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark mirrored rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrTransactionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		typeStr string
		dateStr string
	)
	if err := row.Scan(&t.ID, &t.AccountID, &typeStr, &t.AmountCents, &dateStr, &t.Note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.ErrTransactionNotFound
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TxType(typeStr)
	d, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", dateStr, err)
	}
	t.Date = d
	return t, nil
}

func getAccountTx(ctx context.Context, dbtx *sql.Tx, id int64) (core.Account, error) {
	var acct core.Account
	row := dbtx.QueryRowContext(ctx, `
	SELECT id, name, balance_cents FROM accounts WHERE id = ?`, id)
	if err := row.Scan(&acct.ID, &acct.Name, &acct.BalanceCents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, core.ErrAccountNotFound
		}
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func getTransactionTx(ctx context.Context, dbtx *sql.Tx, id int64) (core.Transaction, error) {
	return scanTransaction(dbtx.QueryRowContext(ctx, `
	SELECT id, account_id, type, amount_cents, date, note
	FROM transactions WHERE id = ?`, id))
}
