package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-commit-service/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionService opens and tracks quiz sessions.
type SessionService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	committer Committer
	opts      SessionOptions
	newID     func() string
	log       logrus.FieldLogger
}

func NewSessionService(store SessionRepository, quizzes QuizRepository, committer Committer, opts SessionOptions) *SessionService {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &SessionService{
		sessions:  store,
		quizzes:   quizzes,
		committer: committer,
		opts:      opts,
		newID:     uuid.NewString,
		log:       opts.Logger.WithField("component", "sessions"),
	}
}

// Open loads quizID and creates a NotStarted session for it. A load failure is
// reported as ErrLoadFailure and no session is created.
func (s *SessionService) Open(ctx context.Context, quizID string) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		s.log.WithError(err).WithField("quiz_id", quizID).Warn("quiz load failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrLoadFailure, err)
	}
	if err := quiz.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLoadFailure, err)
	}
	session := NewSession(s.newID(), quiz, s.committer, s.opts)
	s.sessions.Put(session)
	return session, nil
}

// Get returns a live session.
func (s *SessionService) Get(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Close tears a session down and forgets it.
func (s *SessionService) Close(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
}

type sessionToucher interface {
	Touch(ctx context.Context, sessionID string) error
}

// Touch marks a session as still in use when the repository tracks liveness.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	toucher, ok := s.sessions.(sessionToucher)
	if !ok {
		return nil
	}
	return toucher.Touch(ctx, sessionID)
}
