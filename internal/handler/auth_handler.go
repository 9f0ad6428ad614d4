package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// AuthFlow は認可フローのサービスインターフェース。
type AuthFlow interface {
	Begin(ctx context.Context, userID string) (string, error)
	Complete(ctx context.Context, state, code string) error
}

// AuthHandler はOAuth認可フローのHTTPハンドラー。
// チャットの認可リンクから開かれるため、ブラウザセッションは持たない。
type AuthHandler struct {
	flow AuthFlow
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(flow AuthFlow) *AuthHandler {
	return &AuthHandler{flow: flow}
}

// Begin は指定ユーザーの認可フローを開始し、同意画面にリダイレクトする。
// GET /auth/{userID}
func (h *AuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	consentURL, err := h.flow.Begin(r.Context(), userID)
	if err != nil {
		slog.Error("failed to begin authorization",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusTemporaryRedirect)
}

// Callback は認可コールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
//
// stateは有効な認可待ちエントリに一致しなければならない。
// 応答はブラウザに表示されるユーザー向けテキスト。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writePlain(w, http.StatusBadRequest, "❌ Некорректная ссылка авторизации.")
		return
	}

	err := h.flow.Complete(r.Context(), state, code)
	if err == nil {
		writePlain(w, http.StatusOK, "✅ Авторизация завершена. Вернись в Telegram.")
		return
	}

	var be *model.BotError
	if errors.As(err, &be) {
		switch be.Code {
		case model.ErrCodeInvalidState:
			slog.Warn("authorization callback with unknown state")
			writePlain(w, http.StatusBadRequest, "❌ Ссылка авторизации устарела. Запросите новую в чате.")
			return
		case model.ErrCodeExchangeFailed:
			slog.Error("authorization code exchange failed", slog.String("error", be.Error()))
			writePlain(w, http.StatusBadGateway, "❌ Не удалось завершить авторизацию. Попробуйте ещё раз.")
			return
		}
	}

	slog.Error("authorization callback failed", slog.String("error", err.Error()))
	writePlain(w, http.StatusInternalServerError, "❌ Внутренняя ошибка. Попробуйте позже.")
}

func writePlain(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}
