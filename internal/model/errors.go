package model

import (
	"errors"
	"fmt"
)

// BotError はワークフロー境界で捕捉される統一エラーフォーマットを表す。
// ユーザーに返信するテキストと診断用のステージ名を含む。
type BotError struct {
	Code  string // エラーコード
	Stage string // 失敗したステージ（ログ診断用）
	Reply string // ユーザーへの返信テキスト
	Err   error  // 原因となったエラー（あれば）
}

// Error はerrorインターフェースを実装する。
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Stage, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Stage)
}

// Unwrap は原因エラーを返す。
func (e *BotError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeUnparseable         = "UNPARSEABLE"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeExchangeFailed      = "EXCHANGE_FAILED"
	ErrCodeBackendError        = "BACKEND_ERROR"
	ErrCodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
)

// NewUnauthorizedError は認可未完了エラーを生成する。
// 返信には認可リンクを含める。
func NewUnauthorizedError(authURL string) *BotError {
	return &BotError{
		Code:  ErrCodeUnauthorized,
		Stage: "credential",
		Reply: fmt.Sprintf("🔐 Сначала авторизуйтесь для работы с календарем:\n%s", authURL),
	}
}

// NewUnparseableError は日時解決失敗エラーを生成する。
func NewUnparseableError(text string) *BotError {
	return &BotError{
		Code:  ErrCodeUnparseable,
		Stage: "resolve",
		Reply: "❓ Не удалось распознать дату/время. Например: «встреча завтра в 15:00».",
		Err:   fmt.Errorf("unparseable date/time: %q", text),
	}
}

// NewInvalidStateError はstateトークン不一致エラーを生成する。
func NewInvalidStateError(state string) *BotError {
	return &BotError{
		Code:  ErrCodeInvalidState,
		Stage: "authorize",
		Reply: "❌ Ссылка авторизации устарела. Запросите новую в чате.",
		Err:   fmt.Errorf("no live pending authorization for state %q", state),
	}
}

// NewExchangeFailedError は認可コード交換失敗エラーを生成する。
func NewExchangeFailedError(err error) *BotError {
	return &BotError{
		Code:  ErrCodeExchangeFailed,
		Stage: "authorize",
		Reply: "❌ Не удалось завершить авторизацию. Попробуйте ещё раз.",
		Err:   err,
	}
}

// NewBackendError はカレンダーバックエンド失敗エラーを生成する。
func NewBackendError(err error) *BotError {
	return &BotError{
		Code:  ErrCodeBackendError,
		Stage: "insert",
		Reply: "❌ Не удалось создать событие. Попробуйте позже.",
		Err:   err,
	}
}

// NewTranscriptionFailedError は音声認識失敗エラーを生成する。
func NewTranscriptionFailedError(err error) *BotError {
	return &BotError{
		Code:  ErrCodeTranscriptionFailed,
		Stage: "transcribe",
		Reply: "❌ Не удалось распознать голос",
		Err:   err,
	}
}

// AsBotError はエラーチェーンからBotErrorを取り出す。
func AsBotError(err error) (*BotError, bool) {
	var be *BotError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
