package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultQuestionPoints is awarded per question; the catalog carries no per-question value.
const DefaultQuestionPoints = 10

// RawQuiz is the catalog document as stored by the quiz backend.
type RawQuiz struct {
	UUID        string        `json:"uuid"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	DurationSec int64         `json:"duration_in_sec_timestamp"`
	Difficulty  string        `json:"difficulty"`
	TotalReward float64       `json:"total_reward"`
	Questions   []RawQuestion `json:"questions"`
}

// RawQuestion is a catalog question with lettered options.
type RawQuestion struct {
	ID            int         `json:"id"`
	QuestionText  string      `json:"question_text"`
	Options       []RawOption `json:"options"`
	CorrectAnswer string      `json:"correct_answer"`
}

// RawOption is a catalog option; OptionIndex is its letter (A-D).
type RawOption struct {
	Text        string `json:"text"`
	OptionIndex string `json:"option_index"`
}

// NormalizeQuiz converts a catalog document into a validated Quiz. Questions get
// 1-based position ids and keep the catalog id as OriginalID.
func NormalizeQuiz(raw RawQuiz) (Quiz, error) {
	quiz := Quiz{
		ID:          raw.UUID,
		Title:       raw.Name,
		Description: raw.Description,
		Duration:    time.Duration(raw.DurationSec) * time.Second,
		Difficulty:  parseDifficulty(raw.Difficulty),
		Reward:      raw.TotalReward,
		Questions:   make([]Question, 0, len(raw.Questions)),
	}
	for i, rq := range raw.Questions {
		correct := strings.ToUpper(strings.TrimSpace(rq.CorrectAnswer))
		options := make([]Option, 0, len(rq.Options))
		for _, ro := range rq.Options {
			label := strings.ToUpper(strings.TrimSpace(ro.OptionIndex))
			options = append(options, Option{
				ID:      label,
				Text:    ro.Text,
				Correct: label != "" && label == correct,
			})
		}
		quiz.Questions = append(quiz.Questions, Question{
			ID:         strconv.Itoa(i + 1),
			OriginalID: rq.ID,
			Text:       rq.QuestionText,
			Type:       SingleChoice,
			Options:    options,
			Points:     DefaultQuestionPoints,
		})
	}
	if err := quiz.Validate(); err != nil {
		return Quiz{}, fmt.Errorf("normalize quiz %q: %w", raw.UUID, err)
	}
	return quiz, nil
}

func parseDifficulty(raw string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy
	case "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}
