package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FloodLimiterConfig は送信ユーザーごとの流量制御の設定を保持する。
type FloodLimiterConfig struct {
	RatePerMin      int           // 1ユーザーが1分間に送れるメッセージ数
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultFloodLimiterConfig はデフォルトの流量制御設定を返す。
func DefaultFloodLimiterConfig() FloodLimiterConfig {
	return FloodLimiterConfig{
		RatePerMin:      20,
		Burst:           5,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// FloodLimiter は送信ユーザーごとのメッセージ受け付けを流量制御する。
// webhookハンドラーがデコード済みの送信者IDで判定するため、
// HTTPミドルウェアではなく明示的なAllow呼び出しの形を取る。
type FloodLimiter struct {
	config FloodLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*userLimiter

	stopCh chan struct{}
}

// NewFloodLimiter は新しいFloodLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewFloodLimiter(config FloodLimiterConfig) *FloodLimiter {
	fl := &FloodLimiter{
		config:   config,
		limiters: make(map[string]*userLimiter),
		stopCh:   make(chan struct{}),
	}

	go fl.cleanupLoop()

	return fl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (fl *FloodLimiter) Stop() {
	close(fl.stopCh)
}

// Allow は指定ユーザーのメッセージを受け付けてよいかを返す。
func (fl *FloodLimiter) Allow(userID string) bool {
	return fl.getOrCreate(userID).Allow()
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (fl *FloodLimiter) LimiterCount() int {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return len(fl.limiters)
}

// getOrCreate はユーザーのリミッターを取得または作成する。
func (fl *FloodLimiter) getOrCreate(userID string) *rate.Limiter {
	fl.mu.RLock()
	ul, exists := fl.limiters[userID]
	fl.mu.RUnlock()

	if exists {
		fl.mu.Lock()
		ul.lastAccess = time.Now()
		fl.mu.Unlock()
		return ul.limiter
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()

	// ダブルチェック
	if ul, exists := fl.limiters[userID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(float64(fl.config.RatePerMin)/60.0), fl.config.Burst)
	fl.limiters[userID] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (fl *FloodLimiter) cleanupLoop() {
	ticker := time.NewTicker(fl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fl.cleanup()
		case <-fl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (fl *FloodLimiter) cleanup() {
	ttl := fl.config.CleanupInterval * 2
	now := time.Now()

	fl.mu.Lock()
	for userID, ul := range fl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(fl.limiters, userID)
		}
	}
	fl.mu.Unlock()
}
