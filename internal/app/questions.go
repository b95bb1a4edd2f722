package app

import (
	"context"
	"errors"

	"quizly-game-service/internal/domain"
)

// AccountStore persists player accounts. FindByField supports "uid" and "nickname".
// RecordStats applies a StatsUpdate atomically so concurrent rooms never lose increments.
type AccountStore interface {
	FindByField(ctx context.Context, field, value string) (string, domain.Account, error)
	Create(ctx context.Context, account domain.Account) (string, error)
	Update(ctx context.Context, key string, account domain.Account) error
	RecordStats(ctx context.Context, key string, update domain.StatsUpdate) error
}

// QuizRepository loads stored quizzes (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, ownerID, quizID string) (domain.StoredQuiz, error)
}

// QuestionProvider fetches questions from the external trivia provider.
type QuestionProvider interface {
	FetchQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// QuestionBank builds the question list of a new room.
type QuestionBank struct {
	accounts AccountStore
	quizzes  QuizRepository
	provider QuestionProvider
}

func NewQuestionBank(accounts AccountStore, quizzes QuizRepository, provider QuestionProvider) *QuestionBank {
	return &QuestionBank{accounts: accounts, quizzes: quizzes, provider: provider}
}

// Load returns the questions for opts: the owner's stored quiz when a quiz id is given,
// otherwise a fresh set from the provider.
func (b *QuestionBank) Load(ctx context.Context, opts domain.GameOptions) ([]domain.Question, error) {
	if opts.IsStoredQuiz() {
		return b.loadStored(ctx, opts.UID, opts.QuizID)
	}
	questions, err := b.provider.FetchQuestions(ctx, opts.Filter())
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.ConnectionFailure(err)
	}
	return normalize(questions), nil
}

func (b *QuestionBank) loadStored(ctx context.Context, ownerID, quizID string) ([]domain.Question, error) {
	if _, _, err := b.accounts.FindByField(ctx, "uid", ownerID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.ConnectionFailure(err)
	}
	quiz, err := b.quizzes.GetQuiz(ctx, ownerID, quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return nil, domain.QuizNotFound(quizID)
		}
		return nil, domain.ConnectionFailure(err)
	}
	return normalize(quiz.Questions), nil
}

func normalize(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		out = append(out, domain.NewQuestion(q.Text, q.CorrectAnswer, q.IncorrectAnswers))
	}
	return out
}
