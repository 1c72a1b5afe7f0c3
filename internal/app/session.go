package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-commit-service/internal/domain"
)

// Committer is the submission side of a session.
type Committer interface {
	Commit(ctx context.Context, quiz domain.Quiz, answers []domain.Answer) (domain.Receipt, error)
	RetryBackend(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error)
}

// SessionOptions tunes a Session. Zero values fall back to real time.
type SessionOptions struct {
	TickInterval time.Duration
	Ticker       TickerFactory
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Session is one participant's timed, single-attempt pass through a quiz.
// It owns its answers and timer; every mutation goes through the phase guard.
type Session struct {
	id        string
	quiz      domain.Quiz
	committer Committer
	timer     *Timer
	log       logrus.FieldLogger
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	phase       domain.Phase
	index       int
	answers     *AnswerStore
	receipt     *domain.Receipt
	outcome     *domain.Outcome
	attempts    int
	timeUp      bool
	closed      bool
	subscribers map[chan domain.SessionSnapshot]struct{}
}

// NewSession prepares a session in NotStarted for an already validated quiz.
func NewSession(id string, quiz domain.Quiz, committer Committer, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		quiz:        quiz,
		committer:   committer,
		timer:       NewTimer(opts.TickInterval, opts.Ticker),
		log:         opts.Logger.WithFields(logrus.Fields{"session_id": id, "quiz_id": quiz.ID}),
		createdAt:   opts.Now(),
		ctx:         ctx,
		cancel:      cancel,
		phase:       domain.PhaseNotStarted,
		index:       -1,
		answers:     NewAnswerStore(quiz.Questions),
		subscribers: make(map[chan domain.SessionSnapshot]struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Quiz returns the quiz this session runs.
func (s *Session) Quiz() domain.Quiz { return s.quiz }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Start shows the first question and starts the countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseNotStarted {
		return domain.ErrAlreadyStarted
	}
	if err := s.timer.Start(s.ctx, s.durationSeconds(), s.onTick, s.onExpire); err != nil {
		return err
	}
	s.phase = domain.PhaseInProgress
	s.index = 0
	s.log.WithField("duration_sec", s.durationSeconds()).Info("session started")
	s.broadcastLocked()
	return nil
}

// GoTo moves one question back or forward. Moving past either end is refused
// with ErrAtBoundary and leaves the index unchanged.
func (s *Session) GoTo(dir domain.Direction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked(); err != nil {
		return s.index, err
	}
	next := s.index
	switch dir {
	case domain.Previous:
		next--
	case domain.Next:
		next++
	default:
		return s.index, domain.ErrInvalidDirection
	}
	if next < 0 || next >= len(s.quiz.Questions) {
		return s.index, domain.ErrAtBoundary
	}
	s.index = next
	s.broadcastLocked()
	return s.index, nil
}

// RecordAnswer stores value for questionID and returns the new progress count.
func (s *Session) RecordAnswer(questionID string, value domain.AnswerValue) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireInProgressLocked(); err != nil {
		return s.answers.ProgressCount(), err
	}
	question, _, ok := s.quiz.QuestionByID(questionID)
	if !ok {
		return s.answers.ProgressCount(), domain.ErrQuestionNotFound
	}
	for _, label := range value.Labels() {
		if !question.HasOption(label) {
			return s.answers.ProgressCount(), domain.ErrOptionNotFound
		}
	}
	if err := s.answers.Upsert(questionID, value); err != nil {
		return s.answers.ProgressCount(), err
	}
	s.broadcastLocked()
	return s.answers.ProgressCount(), nil
}

// Submit commits the current answers. It is accepted from InProgress, and from
// Failed as a retry. A retry after the chain leg succeeded resends only the
// backend leg of the same submission.
func (s *Session) Submit(ctx context.Context) (domain.Outcome, error) {
	return s.submit(ctx, false)
}

func (s *Session) onExpire() {
	s.log.Info("time is up, submitting")
	if _, err := s.submit(s.ctx, true); err != nil && !errors.Is(err, errSubmitSkipped) {
		s.log.WithError(err).Warn("forced submission did not complete")
	}
}

func (s *Session) onTick(int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.broadcastLocked()
	}
}

var errSubmitSkipped = errors.New("submission skipped")

func (s *Session) submit(ctx context.Context, forced bool) (domain.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Outcome{}, domain.ErrSessionClosed
	}
	switch {
	case s.phase == domain.PhaseInProgress:
	case s.phase == domain.PhaseFailed && !forced:
	case forced:
		// The manual submit won the race; expiry is a no-op.
		s.mu.Unlock()
		return domain.Outcome{}, errSubmitSkipped
	default:
		s.mu.Unlock()
		return domain.Outcome{}, domain.ErrInvalidPhase
	}

	s.timer.Stop()
	s.phase = domain.PhaseSubmitting
	if forced {
		s.timeUp = true
	}
	s.attempts++
	attempt := s.attempts
	answers := s.answers.Recorded()
	var prior *domain.Receipt
	if s.receipt != nil && s.receipt.ChainAccepted && !s.receipt.BackendStored {
		r := *s.receipt
		prior = &r
	}
	s.broadcastLocked()
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"attempt": attempt, "forced": forced})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	var (
		receipt domain.Receipt
		err     error
	)
	if prior != nil {
		log.Info("retrying backend leg")
		receipt, err = s.committer.RetryBackend(ctx, *prior)
	} else {
		receipt, err = s.committer.Commit(ctx, s.quiz, answers)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Outcome{}, domain.ErrSessionClosed
	}
	if receipt.ChainAccepted {
		r := receipt
		s.receipt = &r
	}
	outcome := domain.Outcome{
		TxHash:   receipt.TxHash,
		Forced:   forced,
		Answered: len(receipt.Submission.Payload.Answers),
		Attempt:  attempt,
	}
	if receipt.Submission.Body != nil {
		outcome.Commitment = receipt.Submission.CommitmentHex()
	}
	if err != nil {
		s.phase = domain.PhaseFailed
		outcome.Error = err.Error()
		outcome.ErrorKind = domain.ErrorKind(err)
		log.WithError(err).Warn("submission failed")
	} else {
		s.phase = domain.PhaseSubmitted
		log.WithField("commitment", outcome.Commitment).Info("submission complete")
	}
	outcome.Phase = s.phase
	s.outcome = &outcome
	s.broadcastLocked()
	return outcome, err
}

// Close tears the session down: the timer stops, subscribers are released and
// any in-flight submission result is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.timer.Stop()
	s.cancel()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Phase returns the current phase.
func (s *Session) Phase() domain.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// CurrentIndex returns the displayed question index; ok is false before Start.
func (s *Session) CurrentIndex() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index, s.index >= 0
}

// Remaining returns the seconds left on the clock.
func (s *Session) Remaining() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remainingLocked()
}

// Progress returns the number of distinct questions answered.
func (s *Session) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answers.ProgressCount()
}

// Answer returns the recorded answer for questionID.
func (s *Session) Answer(questionID string) (domain.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answers.Get(questionID)
}

// Outcome returns the result of the last submission attempt.
func (s *Session) Outcome() (domain.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outcome == nil {
		return domain.Outcome{}, false
	}
	return *s.outcome, true
}

// Snapshot returns the read-only view of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every state change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) requireInProgressLocked() error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseInProgress {
		return domain.ErrInvalidPhase
	}
	return nil
}

func (s *Session) durationSeconds() int {
	return int(math.Ceil(s.quiz.Duration.Seconds()))
}

func (s *Session) remainingLocked() int {
	if s.phase == domain.PhaseNotStarted {
		return s.durationSeconds()
	}
	return s.timer.Remaining()
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscriber: replace its oldest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:     s.id,
		QuizID:        s.quiz.ID,
		Phase:         s.phase,
		QuestionCount: len(s.quiz.Questions),
		Remaining:     s.remainingLocked(),
		Progress:      s.answers.ProgressCount(),
		TimeUp:        s.timeUp,
	}
	if s.index >= 0 {
		idx := s.index
		snap.CurrentIndex = &idx
	}
	if s.outcome != nil {
		o := *s.outcome
		snap.Outcome = &o
	}
	return snap
}
