package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

// JournalPublisher publishes committed mutations for the statement mirror.
// *amqp.Client implements it; a nil publisher disables journaling.
type JournalPublisher interface {
	PublishJournalEvent(ctx context.Context, msg *amqp.JournalEventMessage) error
}

// TransactionInput carries user-supplied transaction fields as collected by
// the presentation collaborator. Parsing and validation happen here so the
// operations reject bad input no matter who calls them.
type TransactionInput struct {
	Type   string
	Amount string
	Date   string
	Note   string
}

// LedgerService implements the bookkeeping operations over the SQLite store.
// Mutations are serialized with one mutex: every balance change is a
// read-modify-write against the shared storage session, and no other
// concurrency control exists.
type LedgerService struct {
	mu      sync.Mutex
	storage *storage.SQLiteRepository
	journal JournalPublisher
}

func NewLedgerService(storage *storage.SQLiteRepository, journal JournalPublisher) *LedgerService {
	return &LedgerService{
		storage: storage,
		journal: journal,
	}
}

func (in TransactionInput) parse() (core.Transaction, error) {
	txType, err := core.ParseTxType(in.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	cents, err := core.ParseDecimalToCents(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Type:        txType,
		AmountCents: cents,
		Date:        date,
		Note:        in.Note,
	}, nil
}

// CreateAccount creates an account with a zero balance.
func (s *LedgerService) CreateAccount(ctx context.Context, name string) (core.Account, error) {
	if err := core.ValidateAccountName(name); err != nil {
		return core.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.CreateAccount(ctx, name)
}

// RenameAccount updates the account's display name only.
func (s *LedgerService) RenameAccount(ctx context.Context, id int64, newName string) error {
	if err := core.ValidateAccountName(newName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.RenameAccount(ctx, id, newName)
}

// DeleteAccount removes the account and all of its transactions.
func (s *LedgerService) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, amqp.NewJournalEventMessage(amqp.KindAccountDeleted, 0, id))
	return nil
}

// AddTransaction records a transaction and applies its signed effect to the
// account balance. A withdrawal exceeding the current balance is rejected
// with core.ErrOverdraft and changes nothing.
func (s *LedgerService) AddTransaction(ctx context.Context, accountID int64, in TransactionInput) (core.Transaction, core.Account, error) {
	t, err := in.parse()
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, acct, err := s.storage.AddTransaction(ctx, accountID, t)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	s.publish(ctx, amqp.NewJournalEventMessage(amqp.KindTransactionAdded, created.ID, acct.ID))
	return created, acct, nil
}

// EditTransaction reverts the transaction's old effect and applies the new
// one. A candidate balance below zero is rejected with core.ErrOverdraft and
// leaves transaction and balance unchanged.
func (s *LedgerService) EditTransaction(ctx context.Context, id int64, in TransactionInput) (core.Transaction, core.Account, error) {
	t, err := in.parse()
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated, acct, err := s.storage.UpdateTransaction(ctx, id, t)
	if err != nil {
		return core.Transaction{}, core.Account{}, err
	}

	s.publish(ctx, amqp.NewJournalEventMessage(amqp.KindTransactionUpdated, updated.ID, acct.ID))
	return updated, acct, nil
}

// DeleteTransaction reverses the transaction's effect on the balance and
// removes it. No overdraft check applies to the reversal.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, acct, err := s.storage.DeleteTransaction(ctx, id)
	if err != nil {
		return core.Account{}, err
	}

	s.publish(ctx, amqp.NewJournalEventMessage(amqp.KindTransactionDeleted, deleted.ID, acct.ID))
	return acct, nil
}

// GetAccount returns a single account.
func (s *LedgerService) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return s.storage.GetAccount(ctx, id)
}

// ListAccounts returns every account in insertion order.
func (s *LedgerService) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return s.storage.ListAccounts(ctx)
}

// ListTransactions returns an account's transactions in insertion order.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx, accountID)
}

// publish sends a journal event. Publish failures are logged and swallowed:
// the mutation is already committed locally and the worker's catch-up pass
// will pick up anything the journal missed.
func (s *LedgerService) publish(ctx context.Context, msg *amqp.JournalEventMessage) {
	if s.journal == nil {
		return
	}
	if err := s.journal.PublishJournalEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish journal event",
			"kind", msg.Kind,
			"transaction_id", msg.TransactionID,
			"account_id", msg.AccountID,
			"error", err)
	}
}

// Close closes the underlying storage session.
func (s *LedgerService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}
	return nil
}
