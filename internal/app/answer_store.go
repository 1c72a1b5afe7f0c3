package app

import (
	"sort"

	"quiz-commit-service/internal/domain"
)

// AnswerStore maps question ids to their latest answer. It is not safe for
// concurrent use; the owning Session serializes access.
type AnswerStore struct {
	position map[string]int
	answers  map[string]domain.Answer
	seq      int
}

// NewAnswerStore builds a store for the given questions; their slice order is
// the question order used by All.
func NewAnswerStore(questions []domain.Question) *AnswerStore {
	position := make(map[string]int, len(questions))
	for i, q := range questions {
		position[q.ID] = i
	}
	return &AnswerStore{
		position: position,
		answers:  make(map[string]domain.Answer, len(questions)),
	}
}

// Upsert records value for questionID. A later call replaces the value but
// keeps the recording position of the first one.
func (s *AnswerStore) Upsert(questionID string, value domain.AnswerValue) error {
	if _, ok := s.position[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	if value.IsEmpty() {
		return domain.ErrEmptyAnswer
	}
	if existing, ok := s.answers[questionID]; ok {
		existing.Value = value
		s.answers[questionID] = existing
		return nil
	}
	s.answers[questionID] = domain.Answer{QuestionID: questionID, Value: value, Seq: s.seq}
	s.seq++
	return nil
}

// Get returns the answer recorded for questionID.
func (s *AnswerStore) Get(questionID string) (domain.Answer, bool) {
	a, ok := s.answers[questionID]
	return a, ok
}

// ProgressCount is the number of distinct questions answered.
func (s *AnswerStore) ProgressCount() int {
	return len(s.answers)
}

// All returns a snapshot ordered by question index.
func (s *AnswerStore) All() []domain.Answer {
	out := s.snapshot()
	sort.Slice(out, func(i, j int) bool {
		return s.position[out[i].QuestionID] < s.position[out[j].QuestionID]
	})
	return out
}

// Recorded returns a snapshot in the order questions were first answered.
func (s *AnswerStore) Recorded() []domain.Answer {
	out := s.snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *AnswerStore) snapshot() []domain.Answer {
	out := make([]domain.Answer, 0, len(s.answers))
	for _, a := range s.answers {
		out = append(out, a)
	}
	return out
}
