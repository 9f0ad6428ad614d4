// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
	"github.com/stetskiy2517/calendar-bot/internal/telegram"
)

// EventSubmitter はデコード済みイベントのワーカーランタイムへの投入インターフェース。
type EventSubmitter interface {
	Submit(ev model.ChatEvent) bool
}

// FloodGate は送信ユーザーごとの受け付け可否判定インターフェース。
type FloodGate interface {
	Allow(userID string) bool
}

// WebhookHandler はTelegram webhookのHTTPハンドラー。
// どのような受信内容でも短時間で200を返す。処理の完了は決して待たない。
type WebhookHandler struct {
	submitter EventSubmitter
	floodGate FloodGate
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(submitter EventSubmitter, floodGate FloodGate) *WebhookHandler {
	return &WebhookHandler{
		submitter: submitter,
		floodGate: floodGate,
	}
}

// Receive は1件のwebhook更新を受け付ける。
// POST /telegram/webhook
//
// Telegramは非200応答を再送するため、イベントとして扱えない更新や
// 流量超過でも本文"ok"の200で応答する。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	update, err := telegram.DecodeUpdate(r.Body)
	if err != nil {
		slog.Warn("failed to decode webhook update", slog.String("error", err.Error()))
		writeOK(w)
		return
	}

	ev, ok := update.ChatEvent(time.Now())
	if !ok {
		writeOK(w)
		return
	}

	if !h.floodGate.Allow(ev.UserID) {
		slog.Warn("message dropped by flood limiter", slog.String("user_id", ev.UserID))
		writeOK(w)
		return
	}

	if !h.submitter.Submit(ev) {
		// シャットダウン中。ログはブリッジ側で出力済み
		writeOK(w)
		return
	}

	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
