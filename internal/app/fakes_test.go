package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"quiz-commit-service/internal/domain"
)

type fakeChain struct {
	mu          sync.Mutex
	commitments [][32]byte
	contracts   []string
	err         error
}

func (c *fakeChain) SubmitCommitment(_ context.Context, contract string, commitment [32]byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitments = append(c.commitments, commitment)
	c.contracts = append(c.contracts, contract)
	if c.err != nil {
		return "", c.err
	}
	return "0xtx", nil
}

func (c *fakeChain) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commitments)
}

type fakeBackend struct {
	mu          sync.Mutex
	submissions []domain.Submission
	err         error
}

func (b *fakeBackend) SubmitAnswers(_ context.Context, sub domain.Submission) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, sub)
	return b.err
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submissions)
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

type fakeWallet struct {
	mu        sync.Mutex
	connected bool
}

func (w *fakeWallet) Connected(context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *fakeWallet) set(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = connected
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]domain.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]domain.LedgerEntry)}
}

func (l *fakeLedger) RecordCommitment(_ context.Context, entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.IdempotencyKey] = entry
	return nil
}

func (l *fakeLedger) MarkBackendStored(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[key]
	entry.BackendStored = true
	l.entries[key] = entry
	return nil
}

func (l *fakeLedger) Pending(_ context.Context, limit int) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range l.entries {
		if !e.BackendStored && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// manualTicker delivers ticks only when the test asks for them.
type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() (*manualTicker, TickerFactory) {
	m := &manualTicker{ch: make(chan time.Time)}
	return m, func(time.Duration) Ticker { return m }
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

// tick reports whether the countdown goroutine accepted the tick.
func (m *manualTicker) tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func threeQuestionQuiz() domain.Quiz {
	options := func() []domain.Option {
		return []domain.Option{{ID: "A", Text: "alpha"}, {ID: "B", Text: "beta"}, {ID: "C", Text: "gamma"}}
	}
	return domain.Quiz{
		ID:       "quiz-1",
		Title:    "Protocol basics",
		Duration: 30 * time.Second,
		Questions: []domain.Question{
			{ID: "1", OriginalID: 101, Text: "first", Type: domain.SingleChoice, Options: options(), Points: 10},
			{ID: "2", OriginalID: 102, Text: "second", Type: domain.SingleChoice, Options: options(), Points: 10},
			{ID: "3", OriginalID: 103, Text: "third", Type: domain.SingleChoice, Options: options(), Points: 10},
		},
	}
}

type harness struct {
	chain   *fakeChain
	backend *fakeBackend
	wallet  *fakeWallet
	ledger  *fakeLedger
	ticker  *manualTicker
	commit  *CommitProtocol
	session *Session
}

func newHarness(t *testing.T, quiz domain.Quiz) *harness {
	t.Helper()
	h := &harness{
		chain:   &fakeChain{},
		backend: &fakeBackend{},
		wallet:  &fakeWallet{connected: true},
		ledger:  newFakeLedger(),
	}
	var factory TickerFactory
	h.ticker, factory = newManualTicker()
	h.commit = NewCommitProtocol(h.chain, h.backend, h.wallet, h.ledger, CommitConfig{}, testLogger())
	h.session = NewSession("s-1", quiz, h.commit, SessionOptions{Ticker: factory, Logger: testLogger()})
	t.Cleanup(h.session.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
