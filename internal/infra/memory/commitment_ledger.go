package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-commit-service/internal/domain"
)

// CommitmentLedger keeps commitment records in process. Entries are lost on
// restart, so reconciliation only covers the current process lifetime.
// Entries are dropped once the backend has stored them.
type CommitmentLedger struct {
	mu      sync.RWMutex
	entries map[string]domain.LedgerEntry
}

func NewCommitmentLedger() *CommitmentLedger {
	return &CommitmentLedger{entries: make(map[string]domain.LedgerEntry)}
}

func (l *CommitmentLedger) RecordCommitment(_ context.Context, entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.BackendStored {
		delete(l.entries, entry.IdempotencyKey)
		return nil
	}
	l.entries[entry.IdempotencyKey] = entry
	return nil
}

func (l *CommitmentLedger) MarkBackendStored(_ context.Context, idempotencyKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, idempotencyKey)
	return nil
}

// Len reports how many entries are retained.
func (l *CommitmentLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Pending returns up to limit unreconciled entries, oldest first.
func (l *CommitmentLedger) Pending(_ context.Context, limit int) ([]domain.LedgerEntry, error) {
	l.mu.RLock()
	out := make([]domain.LedgerEntry, 0)
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
