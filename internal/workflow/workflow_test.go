package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
	"github.com/stetskiy2517/calendar-bot/internal/schedule"
)

type mockCredentialSource struct {
	getFunc func(ctx context.Context, userID string) (*model.Credential, error)
}

func (m *mockCredentialSource) Get(ctx context.Context, userID string) (*model.Credential, error) {
	return m.getFunc(ctx, userID)
}

type mockAuthorizer struct {
	beginFunc func(ctx context.Context, userID string) (string, error)
}

func (m *mockAuthorizer) Begin(ctx context.Context, userID string) (string, error) {
	return m.beginFunc(ctx, userID)
}

type mockResolver struct {
	resolveFunc func(text string, now time.Time) (model.ResolvedSchedule, error)
}

func (m *mockResolver) Resolve(text string, now time.Time) (model.ResolvedSchedule, error) {
	return m.resolveFunc(text, now)
}

type mockCalendar struct {
	insertFunc func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error
}

func (m *mockCalendar) Insert(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
	return m.insertFunc(ctx, accessToken, title, sched)
}

type mockTitler struct {
	titleFunc func(ctx context.Context, text string) (string, error)
}

func (m *mockTitler) Title(ctx context.Context, text string) (string, error) {
	return m.titleFunc(ctx, text)
}

type mockVoiceSource struct {
	downloadFunc func(ctx context.Context, fileID string) ([]byte, error)
}

func (m *mockVoiceSource) DownloadVoice(ctx context.Context, fileID string) ([]byte, error) {
	return m.downloadFunc(ctx, fileID)
}

type mockTranscriber struct {
	transcribeFunc func(ctx context.Context, audio []byte) (string, error)
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return m.transcribeFunc(ctx, audio)
}

type mockReplier struct {
	messages []string
	err      error
}

func (m *mockReplier) SendMessage(ctx context.Context, userID, text string) error {
	m.messages = append(m.messages, text)
	return m.err
}

type mockMetrics struct {
	processed int
	failed    map[string]int
	latencies int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{failed: make(map[string]int)}
}

func (m *mockMetrics) RecordProcessed()                  { m.processed++ }
func (m *mockMetrics) RecordFailed(stage string)         { m.failed[stage]++ }
func (m *mockMetrics) RecordInsertLatency(time.Duration) { m.latencies++ }

// deps はテスト用の全コラボレーターを正常系デフォルトで束ねる。
type deps struct {
	store       *mockCredentialSource
	authorizer  *mockAuthorizer
	resolver    *mockResolver
	calendar    *mockCalendar
	titler      *mockTitler
	voiceSource *mockVoiceSource
	transcriber *mockTranscriber
	replier     *mockReplier
	metrics     *mockMetrics
}

func defaultDeps() *deps {
	return &deps{
		store: &mockCredentialSource{
			getFunc: func(ctx context.Context, userID string) (*model.Credential, error) {
				return &model.Credential{UserID: userID, AccessToken: "access"}, nil
			},
		},
		authorizer: &mockAuthorizer{
			beginFunc: func(ctx context.Context, userID string) (string, error) {
				return "https://bot.example/auth/" + userID, nil
			},
		},
		resolver: &mockResolver{
			resolveFunc: func(text string, now time.Time) (model.ResolvedSchedule, error) {
				return model.ResolvedSchedule{
					Start:    time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC),
					Duration: time.Hour,
					Location: time.UTC,
				}, nil
			},
		},
		calendar: &mockCalendar{
			insertFunc: func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
				return nil
			},
		},
		titler: &mockTitler{
			titleFunc: func(ctx context.Context, text string) (string, error) {
				return "Созвон с командой", nil
			},
		},
		voiceSource: &mockVoiceSource{
			downloadFunc: func(ctx context.Context, fileID string) ([]byte, error) {
				return []byte("ogg-bytes"), nil
			},
		},
		transcriber: &mockTranscriber{
			transcribeFunc: func(ctx context.Context, audio []byte) (string, error) {
				return "встреча завтра в 15:00", nil
			},
		},
		replier: &mockReplier{},
		metrics: newMockMetrics(),
	}
}

func (d *deps) workflow() *Workflow {
	return New(d.store, d.authorizer, d.resolver, d.calendar, d.titler,
		d.voiceSource, d.transcriber, d.replier, d.metrics)
}

func textEvent(text string) model.ChatEvent {
	return model.ChatEvent{UserID: "42", Text: text, ReceivedAt: time.Now()}
}

func lastReply(t *testing.T, r *mockReplier) string {
	t.Helper()
	if len(r.messages) == 0 {
		t.Fatal("no reply was sent")
	}
	return r.messages[len(r.messages)-1]
}

// 正常系: イベントが作成され、タイトルと日時入りの確認返信が送られることを検証
func TestHandle_Success(t *testing.T) {
	d := defaultDeps()
	var insertedTitle, insertedToken string
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		insertedToken = accessToken
		insertedTitle = title
		return nil
	}
	w := d.workflow()

	if err := w.Handle(context.Background(), textEvent("встреча завтра в 15:00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if insertedToken != "access" {
		t.Errorf("access token = %q, want %q", insertedToken, "access")
	}
	if insertedTitle != "Созвон с командой" {
		t.Errorf("title = %q, want %q", insertedTitle, "Созвон с командой")
	}

	reply := lastReply(t, d.replier)
	if !strings.Contains(reply, "✅ Событие создано") {
		t.Errorf("reply = %q, want confirmation", reply)
	}
	if !strings.Contains(reply, "12.03 15:00") {
		t.Errorf("reply = %q, want resolved start time", reply)
	}
	if d.metrics.processed != 1 {
		t.Errorf("processed = %d, want 1", d.metrics.processed)
	}
}

// 未認可ユーザーには認可リンクが返信され、カレンダー呼び出しが行われないことを検証
func TestHandle_Unauthorized(t *testing.T) {
	d := defaultDeps()
	d.store.getFunc = func(ctx context.Context, userID string) (*model.Credential, error) {
		return nil, nil
	}
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		t.Error("calendar must not be called for an unauthorized user")
		return nil
	}
	w := d.workflow()

	err := w.Handle(context.Background(), textEvent("встреча завтра в 15:00"))
	be, ok := model.AsBotError(err)
	if !ok || be.Code != model.ErrCodeUnauthorized {
		t.Fatalf("err = %v, want Unauthorized", err)
	}

	reply := lastReply(t, d.replier)
	if !strings.Contains(reply, "https://bot.example/auth/42") {
		t.Errorf("reply = %q, want authorization link", reply)
	}
	if d.metrics.failed["credential"] != 1 {
		t.Errorf("failed[credential] = %d, want 1", d.metrics.failed["credential"])
	}
}

// 日時を解決できないメッセージには明確化を促す返信が送られることを検証
func TestHandle_Unparseable(t *testing.T) {
	d := defaultDeps()
	d.resolver.resolveFunc = func(text string, now time.Time) (model.ResolvedSchedule, error) {
		return model.ResolvedSchedule{}, model.NewUnparseableError(text)
	}
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		t.Error("calendar must not be called for an unparseable message")
		return nil
	}
	w := d.workflow()

	err := w.Handle(context.Background(), textEvent("привет"))
	be, ok := model.AsBotError(err)
	if !ok || be.Code != model.ErrCodeUnparseable {
		t.Fatalf("err = %v, want Unparseable", err)
	}

	reply := lastReply(t, d.replier)
	if !strings.Contains(reply, "Не удалось распознать дату") {
		t.Errorf("reply = %q, want clarification prompt", reply)
	}
}

// タイトル抽出の失敗がイベント作成を止めず、デフォルトタイトルが使われることを検証
func TestHandle_TitlerFailureFallsBackToDefault(t *testing.T) {
	d := defaultDeps()
	d.titler.titleFunc = func(ctx context.Context, text string) (string, error) {
		return "", errors.New("summarizer down")
	}
	var insertedTitle string
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		insertedTitle = title
		return nil
	}
	w := d.workflow()

	if err := w.Handle(context.Background(), textEvent("встреча завтра в 15:00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if insertedTitle != DefaultTitle {
		t.Errorf("title = %q, want %q", insertedTitle, DefaultTitle)
	}
}

// 要約コラボレーター未設定時もデフォルトタイトルでイベントが作成されることを検証
func TestHandle_NoTitlerConfigured(t *testing.T) {
	d := defaultDeps()
	var insertedTitle string
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		insertedTitle = title
		return nil
	}
	w := New(d.store, d.authorizer, d.resolver, d.calendar, nil,
		d.voiceSource, d.transcriber, d.replier, d.metrics)

	if err := w.Handle(context.Background(), textEvent("встреча завтра в 15:00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if insertedTitle != DefaultTitle {
		t.Errorf("title = %q, want %q", insertedTitle, DefaultTitle)
	}
}

// カレンダー挿入失敗がBackendErrorとして扱われることを検証
func TestHandle_CalendarBackendError(t *testing.T) {
	d := defaultDeps()
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		return errors.New("503 backend unavailable")
	}
	w := d.workflow()

	err := w.Handle(context.Background(), textEvent("встреча завтра в 15:00"))
	be, ok := model.AsBotError(err)
	if !ok || be.Code != model.ErrCodeBackendError {
		t.Fatalf("err = %v, want BackendError", err)
	}

	reply := lastReply(t, d.replier)
	if !strings.Contains(reply, "❌") {
		t.Errorf("reply = %q, want failure reply", reply)
	}
	if d.metrics.processed != 0 {
		t.Errorf("processed = %d, want 0", d.metrics.processed)
	}
}

// 音声メッセージがダウンロード・認識を経てテキストとして処理されることを検証
func TestHandle_VoiceMessage(t *testing.T) {
	d := defaultDeps()
	var resolvedText string
	d.resolver.resolveFunc = func(text string, now time.Time) (model.ResolvedSchedule, error) {
		resolvedText = text
		return model.ResolvedSchedule{
			Start:    time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC),
			Duration: time.Hour,
			Location: time.UTC,
		}, nil
	}
	w := d.workflow()

	ev := model.ChatEvent{UserID: "42", VoiceFileID: "voice-file-1", ReceivedAt: time.Now()}
	if err := w.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolvedText != "встреча завтра в 15:00" {
		t.Errorf("resolved text = %q, want transcription output", resolvedText)
	}
}

// 音声認識の失敗が専用の返信になることを検証
func TestHandle_TranscriptionFailure(t *testing.T) {
	d := defaultDeps()
	d.transcriber.transcribeFunc = func(ctx context.Context, audio []byte) (string, error) {
		return "", errors.New("speech service unavailable")
	}
	w := d.workflow()

	ev := model.ChatEvent{UserID: "42", VoiceFileID: "voice-file-1", ReceivedAt: time.Now()}
	err := w.Handle(context.Background(), ev)
	be, ok := model.AsBotError(err)
	if !ok || be.Code != model.ErrCodeTranscriptionFailed {
		t.Fatalf("err = %v, want TranscriptionFailed", err)
	}

	reply := lastReply(t, d.replier)
	if !strings.Contains(reply, "Не удалось распознать голос") {
		t.Errorf("reply = %q, want transcription failure reply", reply)
	}
}

// 音声認識コラボレーター未設定時に音声メッセージが認識失敗として扱われることを検証
func TestHandle_VoiceWithoutTranscriber(t *testing.T) {
	d := defaultDeps()
	w := New(d.store, d.authorizer, d.resolver, d.calendar, d.titler,
		d.voiceSource, nil, d.replier, d.metrics)

	ev := model.ChatEvent{UserID: "42", VoiceFileID: "voice-file-1", ReceivedAt: time.Now()}
	err := w.Handle(context.Background(), ev)
	be, ok := model.AsBotError(err)
	if !ok || be.Code != model.ErrCodeTranscriptionFailed {
		t.Fatalf("err = %v, want TranscriptionFailed", err)
	}
}

// 返信の送信失敗がHandleの結果を変えないことを検証
func TestHandle_ReplyFailureIsNotFatal(t *testing.T) {
	d := defaultDeps()
	d.replier.err = errors.New("chat unreachable")
	w := d.workflow()

	if err := w.Handle(context.Background(), textEvent("встреча завтра в 15:00")); err != nil {
		t.Fatalf("reply failure must not fail Handle, got %v", err)
	}
}

// 実際のResolverを組み合わせた結合検証:
// 「встреча завтра в 15」が翌日15:00のイベントになる
func TestHandle_WithRealResolver(t *testing.T) {
	d := defaultDeps()
	var inserted model.ResolvedSchedule
	d.calendar.insertFunc = func(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
		inserted = sched
		return nil
	}
	w := New(d.store, d.authorizer, schedule.NewResolver(time.UTC), d.calendar, d.titler,
		d.voiceSource, d.transcriber, d.replier, d.metrics)
	w.now = func() time.Time {
		return time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	}

	if err := w.Handle(context.Background(), textEvent("встреча завтра в 15")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	if !inserted.Start.Equal(want) {
		t.Errorf("start = %v, want %v", inserted.Start, want)
	}
	if inserted.Duration != time.Hour {
		t.Errorf("duration = %v, want 1h", inserted.Duration)
	}
}
