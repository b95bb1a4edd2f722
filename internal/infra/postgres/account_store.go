package postgres

import (
	"context"
	"errors"
	"fmt"

	"quizly-game-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AccountStore persists player accounts in the accounts table.
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// lookup columns are fixed so field names never reach the query text unchecked.
var lookupColumns = map[string]string{
	"uid":      "uid",
	"nickname": "nickname",
}

const accountColumns = `key, uid, nickname, name, picture, win, lose, favourite_category, max_points`

func (s *AccountStore) FindByField(ctx context.Context, field, value string) (string, domain.Account, error) {
	column, ok := lookupColumns[field]
	if !ok {
		return "", domain.Account{}, domain.ErrUnsupportedField
	}
	var (
		key     string
		account domain.Account
	)
	err := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+column+`=$1`, value).Scan(
		&key, &account.UID, &account.Nickname, &account.Name, &account.Picture,
		&account.Win, &account.Lose, &account.FavouriteCategory, &account.MaxPoints,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.Account{}, domain.ErrAccountNotFound
		}
		return "", domain.Account{}, fmt.Errorf("find account by %s: %w", field, err)
	}
	return key, account, nil
}

func (s *AccountStore) Create(ctx context.Context, account domain.Account) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
		RETURNING key`,
		uuid.NewString(), account.UID, account.Nickname, account.Name, account.Picture,
		account.Win, account.Lose, account.FavouriteCategory, account.MaxPoints,
	).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrAccountExists
		}
		return "", fmt.Errorf("create account: %w", err)
	}
	return key, nil
}

func (s *AccountStore) Update(ctx context.Context, key string, account domain.Account) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET uid=$2, nickname=$3, name=$4, picture=$5, win=$6, lose=$7,
			favourite_category=$8, max_points=$9
		WHERE key=$1`,
		key, account.UID, account.Nickname, account.Name, account.Picture,
		account.Win, account.Lose, account.FavouriteCategory, account.MaxPoints,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// RecordStats increments win/lose and raises max_points in a single statement.
func (s *AccountStore) RecordStats(ctx context.Context, key string, update domain.StatsUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET win = win + $2, lose = lose + $3, max_points = GREATEST(max_points, $4)
		WHERE key=$1`,
		key, update.Win, update.Lose, update.MaxPoints,
	)
	if err != nil {
		return fmt.Errorf("record account stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
