package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"quiz-commit-service/internal/domain"
)

type stubQuizzes map[string]domain.Quiz

func (s stubQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := s[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

type mapSessions struct {
	mu      sync.Mutex
	items   map[string]*Session
	touched []string
}

func newMapSessions() *mapSessions {
	return &mapSessions{items: make(map[string]*Session)}
}

func (m *mapSessions) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID()] = s
}

func (m *mapSessions) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	return s, ok
}

func (m *mapSessions) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

func (m *mapSessions) Touch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, id)
	return nil
}

func TestSessionServiceOpen(t *testing.T) {
	store := newMapSessions()
	broken := threeQuestionQuiz()
	broken.ID = "broken"
	broken.Questions = nil
	quizzes := stubQuizzes{"quiz-1": threeQuestionQuiz(), "broken": broken}
	svc := NewSessionService(store, quizzes, nil, SessionOptions{Logger: testLogger()})

	session, err := svc.Open(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Phase() != domain.PhaseNotStarted {
		t.Fatalf("expected not_started, got %s", session.Phase())
	}
	if got, err := svc.Get(session.ID()); err != nil || got != session {
		t.Fatalf("expected stored session, got %v err=%v", got, err)
	}

	if _, err := svc.Open(context.Background(), "nope"); !errors.Is(err, domain.ErrLoadFailure) || !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected load failure wrapping not found, got %v", err)
	}
	if _, err := svc.Open(context.Background(), "broken"); !errors.Is(err, domain.ErrLoadFailure) {
		t.Fatalf("expected load failure for invalid quiz, got %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("failed opens must not create sessions, have %d", len(store.items))
	}

	if err := svc.Touch(context.Background(), session.ID()); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if len(store.touched) != 1 {
		t.Fatalf("expected touch forwarded to store")
	}

	svc.Close(session.ID())
	if !session.Closed() {
		t.Fatalf("expected session closed")
	}
	if _, err := svc.Get(session.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found after close, got %v", err)
	}
	svc.Close(session.ID())
}
