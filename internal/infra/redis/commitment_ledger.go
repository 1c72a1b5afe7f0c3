package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-commit-service/internal/domain"
)

const pendingKey = "commitments:pending"

// CommitmentLedger stores commitment records in Redis, one hash per
// idempotency key.
//
//	HSET commitment:{key} commitment quiz_id tx_hash body created_at backend_stored
//	ZADD commitments:pending {created_at unix nano} {key}
//
// The sorted set only holds records whose backend leg has not landed.
type CommitmentLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCommitmentLedger(client *redis.Client, ttl time.Duration) *CommitmentLedger {
	return &CommitmentLedger{client: client, ttl: ttl}
}

func (l *CommitmentLedger) RecordCommitment(ctx context.Context, entry domain.LedgerEntry) error {
	key := l.key(entry.IdempotencyKey)
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key,
		"commitment", entry.Commitment,
		"quiz_id", entry.QuizID,
		"tx_hash", entry.TxHash,
		"body", entry.Body,
		"created_at", entry.CreatedAt.UnixNano(),
	)
	pipe.HSetNX(ctx, key, "backend_stored", "0")
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record commitment: %w", err)
	}

	stored, err := l.client.HGet(ctx, key, "backend_stored").Result()
	if err != nil {
		return fmt.Errorf("record commitment: %w", err)
	}
	if stored == "1" {
		return nil
	}
	return l.client.ZAdd(ctx, pendingKey, redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: entry.IdempotencyKey,
	}).Err()
}

func (l *CommitmentLedger) MarkBackendStored(ctx context.Context, idempotencyKey string) error {
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, l.key(idempotencyKey), "backend_stored", "1")
	pipe.ZRem(ctx, pendingKey, idempotencyKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark backend stored: %w", err)
	}
	return nil
}

// Pending returns up to limit unreconciled entries, oldest first. Members whose
// record expired are dropped from the pending set.
func (l *CommitmentLedger) Pending(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := l.client.ZRange(ctx, pendingKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	out := make([]domain.LedgerEntry, 0, len(members))
	for _, idemKey := range members {
		fields, err := l.client.HGetAll(ctx, l.key(idemKey)).Result()
		if err != nil {
			return nil, fmt.Errorf("read commitment %s: %w", idemKey, err)
		}
		if len(fields) == 0 {
			_ = l.client.ZRem(ctx, pendingKey, idemKey).Err()
			continue
		}
		created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
		out = append(out, domain.LedgerEntry{
			Commitment:     fields["commitment"],
			IdempotencyKey: idemKey,
			QuizID:         fields["quiz_id"],
			TxHash:         fields["tx_hash"],
			Body:           []byte(fields["body"]),
			CreatedAt:      time.Unix(0, created),
			BackendStored:  fields["backend_stored"] == "1",
		})
	}
	return out, nil
}

func (l *CommitmentLedger) key(idempotencyKey string) string {
	return "commitment:" + idempotencyKey
}
