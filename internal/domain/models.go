package domain

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty is the catalog difficulty level of a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// QuestionType selects how a question is answered.
type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	// MultiChoice is accepted on the wire but no catalog entry produces it yet.
	MultiChoice QuestionType = "multi_choice"
)

// Option represents a possible answer for a question. Correct is display-only
// and never used as the authoritative grade.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is identified by its 1-based position; OriginalID is the catalog id.
type Question struct {
	ID         string       `json:"id"`
	OriginalID int          `json:"originalId"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Options    []Option     `json:"options"`
	Points     int          `json:"points"`
}

// HasOption reports whether label names one of the question's options.
func (q Question) HasOption(label string) bool {
	for _, opt := range q.Options {
		if strings.EqualFold(opt.ID, label) {
			return true
		}
	}
	return false
}

// Quiz is immutable once loaded for a session.
type Quiz struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Duration    time.Duration `json:"duration"`
	Difficulty  Difficulty    `json:"difficulty"`
	Reward      float64       `json:"reward"`
	Questions   []Question    `json:"questions"`
}

// QuestionByID looks a question up by its position-based id.
func (q Quiz) QuestionByID(id string) (Question, int, bool) {
	for i, question := range q.Questions {
		if question.ID == id {
			return question, i, true
		}
	}
	return Question{}, -1, false
}

// Validate checks the structural guarantees the session relies on.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	if q.Duration < time.Second {
		return fmt.Errorf("%w: duration must be at least one second", ErrInvalidQuiz)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", ErrInvalidQuiz)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuiz, i+1)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
		if len(question.Options) == 0 {
			return fmt.Errorf("%w: question %s has no options", ErrInvalidQuiz, question.ID)
		}
		labels := make(map[string]struct{}, len(question.Options))
		for _, opt := range question.Options {
			label := strings.ToUpper(opt.ID)
			if label == "" {
				return fmt.Errorf("%w: question %s has an unlabeled option", ErrInvalidQuiz, question.ID)
			}
			if _, dup := labels[label]; dup {
				return fmt.Errorf("%w: question %s repeats option %s", ErrInvalidQuiz, question.ID, label)
			}
			labels[label] = struct{}{}
		}
	}
	return nil
}

// AnswerValue is either a single option label or several of them.
type AnswerValue struct {
	labels []string
}

// SingleValue builds a one-option answer.
func SingleValue(label string) AnswerValue {
	return AnswerValue{labels: []string{label}}
}

// MultiValue builds a multi-select answer; order is preserved.
func MultiValue(labels ...string) AnswerValue {
	cp := make([]string, len(labels))
	copy(cp, labels)
	return AnswerValue{labels: cp}
}

// IsMulti reports whether more than one label was supplied.
func (v AnswerValue) IsMulti() bool { return len(v.labels) > 1 }

// IsEmpty reports whether no label was supplied.
func (v AnswerValue) IsEmpty() bool { return len(v.labels) == 0 }

// Labels returns a copy of the selected labels.
func (v AnswerValue) Labels() []string {
	cp := make([]string, len(v.labels))
	copy(cp, v.labels)
	return cp
}

// Label collapses the value to the single uppercase label used on the wire.
// Multi values keep their first label only.
func (v AnswerValue) Label() string {
	if len(v.labels) == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(v.labels[0]))
}

// Answer is the recorded choice for one question. Seq is the position at which
// the question was first answered and survives later overwrites.
type Answer struct {
	QuestionID string
	Value      AnswerValue
	Seq        int
}

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether navigation and answer recording are closed.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseFailed
}

// Direction is a navigation step.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// CanonicalAnswer is one entry of the hashed payload.
type CanonicalAnswer struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

// Payload is the canonical answer set. Field order is part of the commitment.
type Payload struct {
	QuizID  string            `json:"quiz_id"`
	Answers []CanonicalAnswer `json:"answers"`
}

// Submission is built once per submit attempt and never mutated.
type Submission struct {
	Payload        Payload
	Body           []byte
	Commitment     [32]byte
	IdempotencyKey string
	CreatedAt      time.Time
}

// CommitmentHex returns the 0x-prefixed commitment.
func (s Submission) CommitmentHex() string {
	return fmt.Sprintf("0x%x", s.Commitment[:])
}

// Receipt describes how far a commit attempt got.
type Receipt struct {
	Submission     Submission
	TxHash         string
	ChainAccepted  bool
	BackendStored  bool
	BackendAckedAt time.Time
}

// Outcome is exposed once a session reaches a terminal phase.
type Outcome struct {
	Phase      Phase  `json:"phase"`
	Commitment string `json:"commitment,omitempty"`
	TxHash     string `json:"txHash,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Forced     bool   `json:"forced"`
	Answered   int    `json:"answered"`
	Attempt    int    `json:"attempt"`
}

// SessionSnapshot is the read-only view pushed to the UI collaborator.
type SessionSnapshot struct {
	SessionID     string   `json:"sessionId"`
	QuizID        string   `json:"quizId"`
	Phase         Phase    `json:"phase"`
	CurrentIndex  *int     `json:"currentIndex"`
	QuestionCount int      `json:"questionCount"`
	Remaining     int      `json:"remainingSeconds"`
	Progress      int      `json:"progress"`
	TimeUp        bool     `json:"timeUp"`
	Outcome       *Outcome `json:"outcome,omitempty"`
}

// LedgerEntry tracks a commitment accepted on-chain until the backend leg lands.
type LedgerEntry struct {
	Commitment     string    `json:"commitment"`
	IdempotencyKey string    `json:"idempotencyKey"`
	QuizID         string    `json:"quizId"`
	TxHash         string    `json:"txHash"`
	Body           []byte    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
	BackendStored  bool      `json:"backendStored"`
}
