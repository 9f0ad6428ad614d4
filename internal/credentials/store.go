// Package credentials はユーザーごとの委任アクセス資格情報のライフサイクル管理を提供する。
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
	"github.com/stetskiy2517/calendar-bot/internal/repository"
)

// TokenRefresher は期限切れトークンの更新インターフェース。
type TokenRefresher interface {
	Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error)
}

// Store はユーザーごとのCredentialを管理する。
// 同一ユーザーへの操作はユーザー単位のロックで直列化され、
// 異なるユーザーへの操作は互いにブロックしない。
// 呼び出し元にはコピーのみが渡され、保存レコードへの可変ハンドルは共有されない。
type Store struct {
	repo      repository.CredentialRepository
	refresher TokenRefresher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore はStoreを生成する。
// refresherはnil可。nilの場合、期限切れトークンは存在しないものとして扱われる。
func NewStore(repo repository.CredentialRepository, refresher TokenRefresher) *Store {
	return &Store{
		repo:      repo,
		refresher: refresher,
		locks:     make(map[string]*sync.Mutex),
	}
}

// userLock は指定ユーザーのロックを取得または作成する。
// ロック表へのアクセス自体は短時間のグローバルロックで保護するが、
// 取得したユーザーロックの保持中はグローバルロックを持たないため
// ユーザー間の操作は互いにブロックしない。
func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Get は指定ユーザーの有効なCredentialのコピーを返す。
// 存在しない場合はnilを返す。
// 期限切れかつリフレッシュ可能な場合はプロバイダーへの更新を透過的に試み、
// 成功時は保存レコードをアトミックに置き換えてから返す。
// 更新に失敗した場合は一時エラーを致命扱いせず、存在しないものとして返す
// （呼び出し元は再認可に誘導する）。
func (s *Store) Get(ctx context.Context, userID string) (*model.Credential, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	cred, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		return nil, nil
	}

	if !cred.Expired(time.Now()) {
		copied := *cred
		return &copied, nil
	}

	if !cred.Refreshable() || s.refresher == nil {
		slog.Info("credential expired and not refreshable", slog.String("user_id", userID))
		return nil, nil
	}

	refreshed, err := s.refresher.Refresh(ctx, *cred)
	if err != nil {
		slog.Warn("credential refresh failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	refreshed.UserID = userID

	if err := s.repo.Upsert(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("failed to store refreshed credential: %w", err)
	}

	slog.Info("credential refreshed", slog.String("user_id", userID))

	copied := *refreshed
	return &copied, nil
}

// Put は指定ユーザーのCredentialを保存する。既存レコードは置き換えられる。
func (s *Store) Put(ctx context.Context, cred model.Credential) error {
	l := s.userLock(cred.UserID)
	l.Lock()
	defer l.Unlock()

	if err := s.repo.Upsert(ctx, &cred); err != nil {
		return fmt.Errorf("failed to put credential: %w", err)
	}
	return nil
}

// Invalidate は指定ユーザーのCredentialを破棄する。
func (s *Store) Invalidate(ctx context.Context, userID string) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate credential: %w", err)
	}
	return nil
}
