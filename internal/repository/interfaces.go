// Package repository はPostgreSQLによる永続化層を提供する。
package repository

import (
	"context"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// CredentialRepository はユーザーごとの委任アクセス資格情報の永続化インターフェース。
// レコードはユーザーごとに高々1件。
type CredentialRepository interface {
	// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)
	// Upsert は資格情報を保存する。既存レコードがあれば置き換える。
	Upsert(ctx context.Context, cred *model.Credential) error
	// DeleteByUserID は指定ユーザーの資格情報を削除する。存在しなくてもエラーにしない。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PendingAuthRepository は認可待ちエントリの永続化インターフェース。
// エントリはユーザーごとに高々1件で、再発行は既存エントリを置き換える。
type PendingAuthRepository interface {
	// Upsert は認可待ちエントリを保存する。同一ユーザーの既存エントリは置き換える。
	Upsert(ctx context.Context, pending *model.PendingAuthorization) error
	// FindByState は指定stateトークンの未失効エントリを取得する。見つからない場合はnilを返す。
	FindByState(ctx context.Context, state string) (*model.PendingAuthorization, error)
	// DeleteByUserID は指定ユーザーのエントリを削除する。存在しなくてもエラーにしない。
	DeleteByUserID(ctx context.Context, userID string) error
}
