package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.Credential, error) {
	cred := &model.Credential{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, expiry, scope
		 FROM credentials
		 WHERE user_id = $1`,
		userID,
	).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &expiry, &cred.Scope)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	if expiry.Valid {
		cred.Expiry = expiry.Time
	}

	return cred, nil
}

// Upsert は資格情報を保存する。既存レコードがあれば置き換える（ユーザー単位のlast-writer-wins）。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, access_token, refresh_token, expiry, scope, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     expiry = EXCLUDED.expiry,
		     scope = EXCLUDED.scope,
		     updated_at = now()`,
		cred.UserID, cred.AccessToken, cred.RefreshToken, nullTime(cred.Expiry), cred.Scope,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの資格情報を削除する。
func (r *PostgresCredentialRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
