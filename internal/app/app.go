// Package app はアプリケーションの起動・ワイヤリング・シャットダウンを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stetskiy2517/calendar-bot/internal/auth"
	"github.com/stetskiy2517/calendar-bot/internal/calendar"
	"github.com/stetskiy2517/calendar-bot/internal/config"
	"github.com/stetskiy2517/calendar-bot/internal/credentials"
	"github.com/stetskiy2517/calendar-bot/internal/database"
	"github.com/stetskiy2517/calendar-bot/internal/dispatch"
	"github.com/stetskiy2517/calendar-bot/internal/handler"
	"github.com/stetskiy2517/calendar-bot/internal/logger"
	"github.com/stetskiy2517/calendar-bot/internal/metrics"
	"github.com/stetskiy2517/calendar-bot/internal/middleware"
	"github.com/stetskiy2517/calendar-bot/internal/repository"
	"github.com/stetskiy2517/calendar-bot/internal/schedule"
	"github.com/stetskiy2517/calendar-bot/internal/summarize"
	"github.com/stetskiy2517/calendar-bot/internal/telegram"
	"github.com/stetskiy2517/calendar-bot/internal/transcribe"
	"github.com/stetskiy2517/calendar-bot/internal/workflow"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はボットサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、ワーカーランタイムの起動後に
// HTTPサーバーを起動する。この順序を逆にするとwebhookが受けたイベントが
// 黙って失われるため、必ずブリッジを先に起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. タイムゾーンの読み込み
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// 3. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	pendingRepo := repository.NewPostgresPendingAuthRepo(db)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. 外部コラボレーターのクライアント初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Timeout:      cfg.ProviderTimeout,
	})

	tgClient := telegram.NewClient(
		&http.Client{Timeout: cfg.TelegramTimeout},
		slog.Default(), cfg.TelegramBotToken,
	)
	calClient := calendar.NewClient(
		&http.Client{Timeout: cfg.CalendarTimeout},
		slog.Default(),
	)

	var titler workflow.Titler
	if cfg.SummarizerURL != "" {
		titler = summarize.NewClient(
			&http.Client{Timeout: cfg.SummarizeTimeout},
			slog.Default(), cfg.SummarizerURL,
		)
	}

	var transcriber workflow.Transcriber
	if cfg.TranscriberURL != "" {
		transcriber = transcribe.NewClient(
			&http.Client{Timeout: cfg.TranscribeTimeout},
			slog.Default(), cfg.TranscriberURL,
		)
	}

	// 6. ドメインサービスの初期化
	store := credentials.NewStore(credRepo, oauthProvider)
	authService := auth.NewService(oauthProvider, pendingRepo, store, tgClient)
	resolver := schedule.NewResolver(loc)

	wf := workflow.New(
		store, authService, resolver, calClient,
		titler, tgClient, transcriber, tgClient, collector,
	)

	// 7. ディスパッチブリッジの起動（HTTPサーバーより先）
	bridge := dispatch.New(wf, slog.Default(), collector)
	bridge.Start(context.Background())

	// 8. 流量制御の初期化
	floodLimiter := middleware.NewFloodLimiter(middleware.FloodLimiterConfig{
		RatePerMin:      cfg.MessageRatePerMin,
		Burst:           cfg.MessageBurst,
		CleanupInterval: 5 * time.Minute,
	})
	defer floodLimiter.Stop()

	// 9. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		HealthChecker: db,
		Gatherer:      registry,
		Submitter:     bridge,
		FloodGate:     floodLimiter,
		AuthFlow:      authService,
	})

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("webhook server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down...")

	// 先にwebhookの受付を止め、その後キューを猶予期間まで消化する
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainGracePeriod)
	defer drainCancel()
	bridge.Stop(drainCtx)

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
