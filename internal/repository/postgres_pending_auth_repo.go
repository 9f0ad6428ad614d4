package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// PostgresPendingAuthRepo はPostgreSQLを使用した認可待ちエントリリポジトリ。
type PostgresPendingAuthRepo struct {
	db *sql.DB
}

// NewPostgresPendingAuthRepo はPostgresPendingAuthRepoを生成する。
func NewPostgresPendingAuthRepo(db *sql.DB) *PostgresPendingAuthRepo {
	return &PostgresPendingAuthRepo{db: db}
}

// Upsert は認可待ちエントリを保存する。
// 同一ユーザーの既存エントリは置き換えられ、古いstateトークンは無効になる。
func (r *PostgresPendingAuthRepo) Upsert(ctx context.Context, pending *model.PendingAuthorization) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_authorizations (user_id, state, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET
		     state = EXCLUDED.state,
		     issued_at = EXCLUDED.issued_at,
		     expires_at = EXCLUDED.expires_at`,
		pending.UserID, pending.State, pending.IssuedAt, pending.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pending authorization: %w", err)
	}
	return nil
}

// FindByState は指定stateトークンの未失効エントリを取得する。
// 期限切れまたは存在しない場合はnilを返す。
func (r *PostgresPendingAuthRepo) FindByState(ctx context.Context, state string) (*model.PendingAuthorization, error) {
	pending := &model.PendingAuthorization{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, state, issued_at, expires_at
		 FROM pending_authorizations
		 WHERE state = $1 AND expires_at > now()`,
		state,
	).Scan(&pending.UserID, &pending.State, &pending.IssuedAt, &pending.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending authorization: %w", err)
	}

	return pending, nil
}

// DeleteByUserID は指定ユーザーのエントリを削除する。
func (r *PostgresPendingAuthRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_authorizations WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete pending authorization: %w", err)
	}
	return nil
}

// nullTime はゼロ値のtime.TimeをNULLとして扱うためのヘルパー。
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// compile-time interface check
var _ PendingAuthRepository = (*PostgresPendingAuthRepo)(nil)
