package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quizly-game-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads stored quizzes from Postgres. Questions live in a JSONB column.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, ownerID, quizID string) (domain.StoredQuiz, error) {
	quiz := domain.StoredQuiz{ID: quizID, OwnerID: ownerID}
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT name, data FROM quizzes WHERE id=$1 AND uid=$2`, quizID, ownerID).
		Scan(&quiz.Name, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredQuiz{}, domain.ErrQuizNotFound
		}
		return domain.StoredQuiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.StoredQuiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// SaveQuiz inserts or replaces a stored quiz.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.StoredQuiz) error {
	raw, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO quizzes (uid, id, name, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid, id) DO UPDATE SET name = EXCLUDED.name, data = EXCLUDED.data`,
		quiz.OwnerID, quiz.ID, quiz.Name, raw)
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}
