package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stetskiy2517/calendar-bot/internal/metrics"
	"github.com/stetskiy2517/calendar-bot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// Webhook
	Submitter EventSubmitter
	FloodGate FloodGate

	// 認可
	AuthFlow AuthFlow
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
//
// webhookの流量制御はHTTPミドルウェアではなくハンドラー内で
// デコード済みの送信者IDに対して行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	webhookHandler := NewWebhookHandler(deps.Submitter, deps.FloodGate)
	authHandler := NewAuthHandler(deps.AuthFlow)

	// チャットトランスポートからの受信
	r.Post("/telegram/webhook", webhookHandler.Receive)

	// 認可フロー
	r.Route("/auth", func(r chi.Router) {
		r.Get("/callback", authHandler.Callback)
		r.Get("/{userID}", authHandler.Begin)
	})

	// 運用エンドポイント
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	return r
}
