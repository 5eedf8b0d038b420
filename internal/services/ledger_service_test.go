package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

type recordingJournal struct {
	events []*amqp.JournalEventMessage
	fail   bool
}

func (r *recordingJournal) PublishJournalEvent(ctx context.Context, msg *amqp.JournalEventMessage) error {
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.events = append(r.events, msg)
	return nil
}

func newTestService(t *testing.T) (*LedgerService, *recordingJournal) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	journal := &recordingJournal{}
	return NewLedgerService(repo, journal), journal
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acct.ID == 0 || acct.BalanceCents != 0 {
		t.Fatalf("unexpected account: %+v", acct)
	}

	if _, err := svc.CreateAccount(ctx, "  "); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestAddTransactionParsesInput(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, updated, err := svc.AddTransaction(ctx, acct.ID, TransactionInput{
		Type:   "Deposit",
		Amount: "100.00",
		Date:   "2025-06-01",
		Note:   "first",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tx.Type != core.Deposit || tx.AmountCents != 10000 {
		t.Fatalf("parsed transaction mismatch: %+v", tx)
	}
	if updated.BalanceCents != 10000 {
		t.Fatalf("balance = %d, want 10000", updated.BalanceCents)
	}

	if len(journal.events) != 1 || journal.events[0].Kind != amqp.KindTransactionAdded {
		t.Fatalf("expected one transaction_added event, got %+v", journal.events)
	}
	if journal.events[0].TransactionID != tx.ID || journal.events[0].AccountID != acct.ID {
		t.Fatalf("event identifiers mismatch: %+v", journal.events[0])
	}
}

func TestAddTransactionRejectsBadInput(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		name string
		in   TransactionInput
		want error
	}{
		{"bad type", TransactionInput{Type: "transfer", Amount: "10", Date: "2025-06-01"}, core.ErrInvalidType},
		{"zero amount", TransactionInput{Type: "deposit", Amount: "0", Date: "2025-06-01"}, core.ErrInvalidAmount},
		{"negative amount", TransactionInput{Type: "deposit", Amount: "-5", Date: "2025-06-01"}, core.ErrInvalidAmount},
		{"bad date", TransactionInput{Type: "deposit", Amount: "10", Date: "June 1st"}, core.ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.AddTransaction(ctx, acct.ID, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if len(journal.events) != 0 {
		t.Fatalf("rejected inputs must not publish events")
	}
	got, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.BalanceCents != 0 {
		t.Fatalf("balance changed on rejected input: %d", got.BalanceCents)
	}
}

func TestWithdrawalOverdraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.AddTransaction(ctx, acct.ID, TransactionInput{Type: "deposit", Amount: "50.00", Date: "2025-06-01"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, _, err = svc.AddTransaction(ctx, acct.ID, TransactionInput{Type: "withdrawal", Amount: "75.00", Date: "2025-06-02"})
	if !errors.Is(err, core.ErrOverdraft) {
		t.Fatalf("expected ErrOverdraft, got %v", err)
	}

	got, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.BalanceCents != 5000 {
		t.Fatalf("balance = %d, want 5000 after rejected withdrawal", got.BalanceCents)
	}
}

func TestEditTransaction(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tx, _, err := svc.AddTransaction(ctx, acct.ID, TransactionInput{Type: "deposit", Amount: "100.00", Date: "2025-06-01"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Deposit 100.00 -> Withdrawal 30.00 on balance 100.00: candidate -30.00.
	_, _, err = svc.EditTransaction(ctx, tx.ID, TransactionInput{Type: "withdrawal", Amount: "30.00", Date: "2025-06-01"})
	if !errors.Is(err, core.ErrOverdraft) {
		t.Fatalf("expected ErrOverdraft, got %v", err)
	}

	// Deposit 100.00 -> Deposit 40.00: candidate 40.00, accepted.
	edited, updated, err := svc.EditTransaction(ctx, tx.ID, TransactionInput{Type: "deposit", Amount: "40.00", Date: "2025-06-02", Note: "fixed"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.BalanceCents != 4000 {
		t.Fatalf("balance = %d, want 4000", updated.BalanceCents)
	}
	if edited.Note != "fixed" || edited.Date.String() != "2025-06-02" {
		t.Fatalf("edited fields not persisted: %+v", edited)
	}

	kinds := make([]string, 0, len(journal.events))
	for _, e := range journal.events {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[1] != amqp.KindTransactionUpdated {
		t.Fatalf("unexpected journal kinds: %v", kinds)
	}
}

func TestDeleteTransaction(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.AddTransaction(ctx, acct.ID, TransactionInput{Type: "deposit", Amount: "50.00", Date: "2025-06-01"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tx, _, err := svc.AddTransaction(ctx, acct.ID, TransactionInput{Type: "deposit", Amount: "20.00", Date: "2025-06-02"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, err := svc.DeleteTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if updated.BalanceCents != 5000 {
		t.Fatalf("balance = %d, want 5000", updated.BalanceCents)
	}

	txs, err := svc.ListTransactions(ctx, acct.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("deleted transaction still listed")
	}
	last := journal.events[len(journal.events)-1]
	if last.Kind != amqp.KindTransactionDeleted || last.TransactionID != tx.ID {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestDeleteAccountPublishesEvent(t *testing.T) {
	svc, journal := newTestService(t)
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	last := journal.events[len(journal.events)-1]
	if last.Kind != amqp.KindAccountDeleted || last.AccountID != acct.ID {
		t.Fatalf("unexpected event: %+v", last)
	}

	if err := svc.DeleteAccount(ctx, acct.ID); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

// A failing broker must never fail the user's operation.
func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	svc, journal := newTestService(t)
	journal.fail = true
	ctx := context.Background()

	acct, err := svc.CreateAccount(ctx, "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.AddTransaction(ctx, acct.ID, TransactionInput{Type: "deposit", Amount: "10.00", Date: "2025-06-01"}); err != nil {
		t.Fatalf("add must succeed despite broker failure: %v", err)
	}

	got, err := svc.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BalanceCents != 1000 {
		t.Fatalf("balance = %d, want 1000", got.BalanceCents)
	}
}

// Journaling is optional: a nil publisher disables it entirely.
func TestNilJournal(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := NewLedgerService(repo, nil)
	acct, err := svc.CreateAccount(context.Background(), "Savings")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.AddTransaction(context.Background(), acct.ID, TransactionInput{Type: "deposit", Amount: "10", Date: "2025-06-01"}); err != nil {
		t.Fatalf("add with nil journal: %v", err)
	}
}
