package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-commit-service/internal/domain"
)

type commitmentRow struct {
	bun.BaseModel `bun:"table:commitments"`

	IdempotencyKey string    `bun:"idempotency_key,pk"`
	Commitment     string    `bun:"commitment,notnull"`
	QuizID         string    `bun:"quiz_id,notnull"`
	TxHash         string    `bun:"tx_hash,notnull"`
	Body           []byte    `bun:"body,type:bytea,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	BackendStored  bool      `bun:"backend_stored,notnull"`
}

// CommitmentLedger is the durable ledger; it survives restarts so the
// reconcile command can pick up backend legs lost with a crashed instance.
type CommitmentLedger struct {
	db *bun.DB
}

func NewCommitmentLedger(db *bun.DB) *CommitmentLedger {
	return &CommitmentLedger{db: db}
}

func (l *CommitmentLedger) RecordCommitment(ctx context.Context, entry domain.LedgerEntry) error {
	row := &commitmentRow{
		Commitment:     entry.Commitment,
		IdempotencyKey: entry.IdempotencyKey,
		QuizID:         entry.QuizID,
		TxHash:         entry.TxHash,
		Body:           entry.Body,
		CreatedAt:      entry.CreatedAt,
		BackendStored:  entry.BackendStored,
	}
	_, err := l.db.NewInsert().
		Model(row).
		On("CONFLICT (idempotency_key) DO UPDATE").
		Set("tx_hash = EXCLUDED.tx_hash").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record commitment: %w", err)
	}
	return nil
}

func (l *CommitmentLedger) MarkBackendStored(ctx context.Context, idempotencyKey string) error {
	_, err := l.db.NewUpdate().
		Model((*commitmentRow)(nil)).
		Set("backend_stored = TRUE").
		Where("idempotency_key = ?", idempotencyKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark backend stored: %w", err)
	}
	return nil
}

func (l *CommitmentLedger) Pending(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	var rows []commitmentRow
	q := l.db.NewSelect().
		Model(&rows).
		Where("backend_stored = FALSE").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	out := make([]domain.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.LedgerEntry{
			Commitment:     r.Commitment,
			IdempotencyKey: r.IdempotencyKey,
			QuizID:         r.QuizID,
			TxHash:         r.TxHash,
			Body:           r.Body,
			CreatedAt:      r.CreatedAt,
			BackendStored:  r.BackendStored,
		})
	}
	return out, nil
}
