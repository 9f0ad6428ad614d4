// Package dispatch はwebhook受付とイベント処理を分離する並行処理ブリッジを提供する。
// 受付側は決してブロックせず、処理は単一の常駐ワーカーが到着順に実行する。
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// Handler はキューから取り出した1件のChatEventを処理するインターフェース。
// 返されたエラーはユーザーへの返信に変換済みであり、ブリッジはログに残すのみ。
type Handler interface {
	Handle(ctx context.Context, ev model.ChatEvent) error
}

// QueueMetrics はブリッジが記録するキューメトリクスのインターフェース。
type QueueMetrics interface {
	RecordSubmitted()
	SetQueueDepth(depth int)
	RecordDropped(count int)
}

// Bridge は受信チャットイベントの非ブロッキングな受け渡しを行う。
//
// 受付（Submit）は上限なしの監視付きFIFOキューへの追加のみを行い、
// 処理完了を待たずに即座に戻る。処理は単一のワーカーgoroutineが
// キューを到着順に消化するため、同一ユーザーのメッセージが
// 互いに追い越すことはない。ワーカーを複数にする場合は
// この順序契約を保つためユーザーIDでのパーティションが必要になる。
type Bridge struct {
	handler Handler
	logger  *slog.Logger
	metrics QueueMetrics

	mu        sync.Mutex
	queue     []model.ChatEvent
	accepting bool

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// New はBridgeを生成する。Startを呼ぶまでSubmitは受け付けない。
func New(handler Handler, logger *slog.Logger, m QueueMetrics) *Bridge {
	return &Bridge{
		handler: handler,
		logger:  logger,
		metrics: m,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start はワーカーgoroutineを起動し、Submitの受け付けを開始する。
// Startから戻った時点でブリッジは投入可能な状態にある。
// webhookエンドポイントの受付開始は必ずStartの後に行うこと。
// ctxはイベント処理中の外部呼び出しに引き継がれる。
func (b *Bridge) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.cancel = cancel
	b.accepting = true
	b.mu.Unlock()

	go b.run(ctx)

	b.logger.Info("dispatch bridge started")
}

// Submit はChatEventをキューに追加する。処理完了を待たずに即座に戻る。
// 受け付けた場合はtrueを、シャットダウン開始後はfalseを返す。
// 拒否されたイベントは失われたものとしてログに残る。
func (b *Bridge) Submit(ev model.ChatEvent) bool {
	b.mu.Lock()
	if !b.accepting {
		b.mu.Unlock()
		b.logger.Warn("event rejected after shutdown began",
			slog.String("user_id", ev.UserID),
		)
		return false
	}
	b.queue = append(b.queue, ev)
	depth := len(b.queue)
	b.mu.Unlock()

	b.metrics.RecordSubmitted()
	b.metrics.SetQueueDepth(depth)

	// ワーカーを起床させる。既に起床通知が積まれていれば何もしない
	select {
	case b.wake <- struct{}{}:
	default:
	}

	return true
}

// Stop は新規受け付けを止め、キュー内と処理中のイベントをctxの期限まで消化する。
// 期限までに消化できなかったイベントは破棄され、件数がログとメトリクスに残る。
// プロセス終了後の再試行は行わない（永続アウトボックスは持たない設計）。
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	if !b.accepting {
		b.mu.Unlock()
		return
	}
	b.accepting = false
	b.mu.Unlock()

	close(b.stopCh)

	select {
	case <-b.done:
	case <-ctx.Done():
		// 猶予期間切れ。処理中の外部呼び出しをキャンセルしてワーカーを止める
		b.cancel()
		<-b.done
	}

	b.mu.Lock()
	remaining := len(b.queue)
	b.queue = nil
	b.mu.Unlock()

	if remaining > 0 {
		b.logger.Error("events lost at shutdown",
			slog.Int("count", remaining),
		)
		b.metrics.RecordDropped(remaining)
	}
	b.metrics.SetQueueDepth(0)

	b.logger.Info("dispatch bridge stopped")
}

// run はワーカーループ。キューを到着順に消化する。
func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)

	for {
		ev, ok := b.next()
		if !ok {
			select {
			case <-b.wake:
				continue
			case <-b.stopCh:
				// 停止要求後はキューが空になり次第終了する
				if b.depth() == 0 {
					return
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		b.process(ctx, ev)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// next はキューの先頭イベントを取り出す。キューが空の場合はok=falseを返す。
func (b *Bridge) next() (model.ChatEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return model.ChatEvent{}, false
	}

	ev := b.queue[0]
	b.queue = b.queue[1:]
	b.metrics.SetQueueDepth(len(b.queue))
	return ev, true
}

func (b *Bridge) depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// process は1件のイベントを処理する。
// ハンドラーのエラーやpanicはこのイベントに閉じ込め、後続イベントの処理を止めない。
func (b *Bridge) process(ctx context.Context, ev model.ChatEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic in event handler",
				slog.Any("panic", rec),
				slog.String("user_id", ev.UserID),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := b.handler.Handle(ctx, ev); err != nil {
		b.logger.Warn("event processing failed",
			slog.String("user_id", ev.UserID),
			slog.String("error", err.Error()),
		)
	}
}
