package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-commit-service/internal/domain"
)

// QuizLoader loads raw catalog documents (JSONB) from Postgres and normalizes
// them into domain quizzes.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return DecodeQuiz(quizID, raw)
}

// DecodeQuiz parses a catalog document. The row id wins over a missing uuid.
func DecodeQuiz(quizID string, data []byte) (domain.Quiz, error) {
	var doc domain.RawQuiz
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if doc.UUID == "" {
		doc.UUID = quizID
	}
	return domain.NormalizeQuiz(doc)
}
