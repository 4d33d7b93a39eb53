package repo

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

type txStub struct {
	*stubExecutor
	txs int
}

func (s *txStub) InTx(_ context.Context, fn func(tx infra.SQLExecutor) error) error {
	s.txs++
	return fn(s.stubExecutor)
}

func TestRefundJobAppliesOnce(t *testing.T) {
	exec := &txStub{stubExecutor: &stubExecutor{rows: map[string]simpleRow{
		sqlinline.QFlagJobRefunded:   rowOf("u1", int64(40)),
		sqlinline.QCreditUser:        rowOf(int64(100)),
		sqlinline.QInsertLedgerEntry: rowOf("e1", testNow),
	}}}
	repo := NewLedgerRepository(exec)
	entry, applied, err := repo.RefundJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !applied || entry.Amount != 40 || entry.BalanceAfter != 100 || entry.Kind != domain.EntryKindRefund {
		t.Fatalf("unexpected refund applied=%v entry=%+v", applied, entry)
	}
	if entry.Reference != domain.RefundReference("j1") {
		t.Fatalf("reference = %q", entry.Reference)
	}
	if exec.txs != 1 {
		t.Fatalf("refund should run in one transaction, got %d", exec.txs)
	}
}

func TestRefundJobGateClosed(t *testing.T) {
	exec := &txStub{stubExecutor: &stubExecutor{rows: map[string]simpleRow{}}}
	repo := NewLedgerRepository(exec)
	entry, applied, err := repo.RefundJob(context.Background(), "j1")
	if err != nil || applied || entry != nil {
		t.Fatalf("closed gate: entry=%+v applied=%v err=%v", entry, applied, err)
	}
	for _, q := range exec.queries {
		if q == sqlinline.QCreditUser {
			t.Fatalf("balance credited although the gate was closed")
		}
	}
}

func TestRefundJobDuplicateReference(t *testing.T) {
	exec := &txStub{stubExecutor: &stubExecutor{rows: map[string]simpleRow{
		sqlinline.QFlagJobRefunded: rowOf("u1", int64(40)),
		sqlinline.QCreditUser:      rowOf(int64(100)),
		sqlinline.QInsertLedgerEntry: {scan: func(...any) error {
			return &pgconn.PgError{Code: pgUniqueViolation}
		}},
	}}}
	_, applied, err := NewLedgerRepository(exec).RefundJob(context.Background(), "j1")
	if err != nil || applied {
		t.Fatalf("duplicate reference: applied=%v err=%v", applied, err)
	}
}

