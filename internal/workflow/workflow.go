// Package workflow は受信メッセージ1件をカレンダーイベントに変換するオーケストレーションを提供する。
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// DefaultTitle は外部要約が使えない場合のイベントタイトル。
const DefaultTitle = "Встреча"

// confirmTimeFormat は確認返信に表示する日時の書式（例: 15.03 14:00）。
const confirmTimeFormat = "02.01 15:04"

// CredentialSource は委任アクセス資格情報の取得インターフェース。
type CredentialSource interface {
	Get(ctx context.Context, userID string) (*model.Credential, error)
}

// Authorizer はユーザーごとの認可URL発行インターフェース。
type Authorizer interface {
	Begin(ctx context.Context, userID string) (string, error)
}

// Resolver は自然言語テキストの日時解決インターフェース。
type Resolver interface {
	Resolve(text string, now time.Time) (model.ResolvedSchedule, error)
}

// Calendar はカレンダーバックエンドへのイベント挿入インターフェース。
type Calendar interface {
	Insert(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error
}

// Titler はイベントタイトル抽出の外部コラボレーターのインターフェース。
type Titler interface {
	Title(ctx context.Context, text string) (string, error)
}

// VoiceSource は音声メッセージのファイル取得インターフェース。
type VoiceSource interface {
	DownloadVoice(ctx context.Context, fileID string) ([]byte, error)
}

// Transcriber は音声認識の外部コラボレーターのインターフェース。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Replier はユーザーへの返信送信インターフェース。
type Replier interface {
	SendMessage(ctx context.Context, userID, text string) error
}

// Metrics はワークフローが記録するメトリクスのインターフェース。
type Metrics interface {
	RecordProcessed()
	RecordFailed(stage string)
	RecordInsertLatency(duration time.Duration)
}

// Workflow は1件のChatEventの処理を統括する。
// すべての失敗はここで捕捉され、ユーザーへの返信とログに変換される。
// ワーカーランタイムまで伝播する失敗はない。
type Workflow struct {
	store       CredentialSource
	authorizer  Authorizer
	resolver    Resolver
	calendar    Calendar
	titler      Titler
	voiceSource VoiceSource
	transcriber Transcriber
	replier     Replier
	metrics     Metrics

	now func() time.Time // テスト用に差し替え可能
}

// New はWorkflowを生成する。
// titlerとtranscriberはnil可。titlerがnilの場合はデフォルトタイトルを使い、
// transcriberがnilの場合は音声メッセージを認識失敗として扱う。
func New(
	store CredentialSource,
	authorizer Authorizer,
	resolver Resolver,
	calendar Calendar,
	titler Titler,
	voiceSource VoiceSource,
	transcriber Transcriber,
	replier Replier,
	m Metrics,
) *Workflow {
	return &Workflow{
		store:       store,
		authorizer:  authorizer,
		resolver:    resolver,
		calendar:    calendar,
		titler:      titler,
		voiceSource: voiceSource,
		transcriber: transcriber,
		replier:     replier,
		metrics:     m,
		now:         time.Now,
	}
}

// Handle は1件のChatEventを処理する。
// 失敗時はユーザーに返信を送った上で、発生したエラーを返す（呼び出し元はログ用途にのみ使う）。
func (w *Workflow) Handle(ctx context.Context, ev model.ChatEvent) error {
	text := ev.Text

	// 0. 音声メッセージはまずテキスト化する
	if ev.IsVoice() {
		transcribed, err := w.transcribe(ctx, ev)
		if err != nil {
			return w.fail(ctx, ev.UserID, err)
		}
		text = transcribed
		slog.Info("voice transcribed", slog.String("user_id", ev.UserID))
	}

	// 1. 資格情報の確認。なければ認可リンクを返して終了
	cred, err := w.store.Get(ctx, ev.UserID)
	if err != nil {
		return w.fail(ctx, ev.UserID, model.NewBackendError(err))
	}
	if cred == nil {
		authURL, err := w.authorizer.Begin(ctx, ev.UserID)
		if err != nil {
			return w.fail(ctx, ev.UserID, model.NewBackendError(err))
		}
		return w.fail(ctx, ev.UserID, model.NewUnauthorizedError(authURL))
	}

	// 2. 日時の解決
	sched, err := w.resolver.Resolve(text, w.now())
	if err != nil {
		return w.fail(ctx, ev.UserID, err)
	}

	// 3. タイトルの導出。失敗してもイベント作成は止めない
	title := w.title(ctx, text)

	// 4. カレンダーへの挿入
	start := time.Now()
	err = w.calendar.Insert(ctx, cred.AccessToken, title, sched)
	w.metrics.RecordInsertLatency(time.Since(start))
	if err != nil {
		return w.fail(ctx, ev.UserID, model.NewBackendError(err))
	}

	// 5. 確認の返信
	w.reply(ctx, ev.UserID, fmt.Sprintf("✅ Событие создано:\n%s\n🕒 %s",
		title, sched.Start.Format(confirmTimeFormat)))

	w.metrics.RecordProcessed()
	return nil
}

// transcribe は音声メッセージをダウンロードしてテキストに変換する。
func (w *Workflow) transcribe(ctx context.Context, ev model.ChatEvent) (string, error) {
	if w.transcriber == nil {
		return "", model.NewTranscriptionFailedError(fmt.Errorf("no transcriber configured"))
	}

	audio, err := w.voiceSource.DownloadVoice(ctx, ev.VoiceFileID)
	if err != nil {
		return "", model.NewTranscriptionFailedError(err)
	}

	text, err := w.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", model.NewTranscriptionFailedError(err)
	}

	return text, nil
}

// title はテキストから短いイベントタイトルを導出する。
// 要約コラボレーターが未設定または失敗した場合は固定のデフォルト値を返す。
func (w *Workflow) title(ctx context.Context, text string) string {
	if w.titler == nil {
		return DefaultTitle
	}

	title, err := w.titler.Title(ctx, text)
	if err != nil {
		slog.Debug("title extraction failed, using default",
			slog.String("error", err.Error()),
		)
		return DefaultTitle
	}
	return title
}

// fail は失敗をユーザーへの返信・メトリクス・戻り値のエラーに変換する。
func (w *Workflow) fail(ctx context.Context, userID string, err error) error {
	reply := "❌ Не удалось обработать сообщение. Попробуйте позже."
	stage := "unknown"

	if be, ok := model.AsBotError(err); ok {
		reply = be.Reply
		stage = be.Stage
	}

	w.metrics.RecordFailed(stage)
	w.reply(ctx, userID, reply)
	return err
}

// reply はユーザーに返信を送る。送信失敗はログに残すだけでエラーにしない。
func (w *Workflow) reply(ctx context.Context, userID, text string) {
	if err := w.replier.SendMessage(ctx, userID, text); err != nil {
		slog.Warn("failed to send reply",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
