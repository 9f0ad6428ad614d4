package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stetskiy2517/calendar-bot/internal/model"
	"github.com/stetskiy2517/calendar-bot/internal/repository"
)

// pendingTTL は認可待ちエントリの有効期間。
// この期間を過ぎたstateトークンでのコールバックは拒否される。
const pendingTTL = 15 * time.Minute

// IdentityProvider は外部アイデンティティプロバイダーのインターフェース。
type IdentityProvider interface {
	// ConsentURL は指定stateトークンを埋め込んだ同意画面URLを生成する。
	ConsentURL(state string) string
	// Exchange はワンタイム認可コードをCredentialに交換する。
	Exchange(ctx context.Context, code string) (*model.Credential, error)
	// Refresh は期限切れのCredentialを更新する。
	Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error)
}

// CredentialPutter は交換済みCredentialの保存先インターフェース。
type CredentialPutter interface {
	Put(ctx context.Context, cred model.Credential) error
}

// Notifier は認可完了をユーザーにチャットで通知するインターフェース。
type Notifier interface {
	SendMessage(ctx context.Context, userID, text string) error
}

// Service は認可フローのビジネスロジックを提供する。
// ユーザーごとの認可待ちエントリを管理し、コールバックでCredentialを発行する。
type Service struct {
	provider    IdentityProvider
	pendingRepo repository.PendingAuthRepository
	store       CredentialPutter
	notifier    Notifier
}

// NewService はServiceを生成する。
// notifierはnil可。nilの場合は完了通知を行わない。
func NewService(
	provider IdentityProvider,
	pendingRepo repository.PendingAuthRepository,
	store CredentialPutter,
	notifier Notifier,
) *Service {
	return &Service{
		provider:    provider,
		pendingRepo: pendingRepo,
		store:       store,
		notifier:    notifier,
	}
}

// Begin は指定ユーザーの認可URLを発行する。
// 新しい推測不能なstateトークンで認可待ちエントリを作成する。
// 既存のエントリがある場合は置き換えられ、古いstateトークンは無効になる。
func (s *Service) Begin(ctx context.Context, userID string) (string, error) {
	state := uuid.NewString()
	now := time.Now()

	pending := &model.PendingAuthorization{
		UserID:    userID,
		State:     state,
		IssuedAt:  now,
		ExpiresAt: now.Add(pendingTTL),
	}

	if err := s.pendingRepo.Upsert(ctx, pending); err != nil {
		return "", fmt.Errorf("failed to save pending authorization: %w", err)
	}

	slog.Info("authorization started", slog.String("user_id", userID))
	return s.provider.ConsentURL(state), nil
}

// Complete は認可コールバックを処理する。
// stateトークンに一致する未失効の認可待ちエントリがなければInvalidStateを返す。
// コード交換に失敗した場合はExchangeFailedを返す。
// 成功時はCredentialを保存し、認可待ちエントリを削除し、ユーザーに通知する。
// 通知の失敗はログに残すだけでエラーにしない。
func (s *Service) Complete(ctx context.Context, state, code string) error {
	pending, err := s.pendingRepo.FindByState(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to look up pending authorization: %w", err)
	}
	if pending == nil || pending.Expired(time.Now()) {
		return model.NewInvalidStateError(state)
	}

	cred, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return model.NewExchangeFailedError(err)
	}
	cred.UserID = pending.UserID

	if err := s.store.Put(ctx, *cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	if err := s.pendingRepo.DeleteByUserID(ctx, pending.UserID); err != nil {
		// Credentialは保存済みのため認可自体は成功として扱う
		slog.Warn("failed to delete pending authorization",
			slog.String("user_id", pending.UserID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("authorization completed", slog.String("user_id", pending.UserID))

	if s.notifier != nil {
		if err := s.notifier.SendMessage(ctx, pending.UserID, "✅ Авторизация завершена. Теперь можно создавать события."); err != nil {
			slog.Warn("failed to notify user about completed authorization",
				slog.String("user_id", pending.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
