package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-commit-service/internal/domain"
)

func TestCommitmentLedgerTracksPending(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	ledger := NewCommitmentLedger(newClient(mr), time.Hour)
	base := time.Unix(1700000000, 0)

	older := domain.LedgerEntry{
		Commitment:     "0xaa",
		IdempotencyKey: "key-1",
		QuizID:         "quiz-1",
		TxHash:         "0xtx1",
		Body:           []byte(`{"quiz_id":"quiz-1","answers":[]}`),
		CreatedAt:      base,
	}
	newer := older
	newer.Commitment, newer.IdempotencyKey, newer.CreatedAt = "0xbb", "key-2", base.Add(time.Minute)

	if err := ledger.RecordCommitment(ctx, newer); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.RecordCommitment(ctx, older); err != nil {
		t.Fatalf("record: %v", err)
	}

	pending, err := ledger.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].IdempotencyKey != "key-1" || pending[0].Commitment != "0xaa" {
		t.Fatalf("expected oldest first, got %+v", pending)
	}
	if string(pending[0].Body) != string(older.Body) || pending[0].IdempotencyKey != "key-1" || !pending[0].CreatedAt.Equal(base) {
		t.Fatalf("entry not round-tripped: %+v", pending[0])
	}

	if err := ledger.MarkBackendStored(ctx, "key-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, _ = ledger.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].IdempotencyKey != "key-2" {
		t.Fatalf("expected only key-2 pending, got %+v", pending)
	}

	// Re-recording a reconciled commitment must not resurrect it.
	_ = ledger.RecordCommitment(ctx, older)
	pending, _ = ledger.Pending(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("expected reconciled entry to stay reconciled, got %+v", pending)
	}

	mr.Del("commitment:key-2")
	pending, _ = ledger.Pending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected expired record dropped, got %+v", pending)
	}
}
