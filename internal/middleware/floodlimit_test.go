package middleware

import (
	"testing"
	"time"
)

// バースト内のメッセージは受け付けられ、超過分は拒否されることを検証
func TestFloodLimiterAllow(t *testing.T) {
	fl := NewFloodLimiter(FloodLimiterConfig{
		RatePerMin:      1,
		Burst:           3,
		CleanupInterval: time.Minute,
	})
	defer fl.Stop()

	for i := 0; i < 3; i++ {
		if !fl.Allow("42") {
			t.Fatalf("message %d within burst was rejected", i+1)
		}
	}
	if fl.Allow("42") {
		t.Error("message beyond burst was accepted")
	}
}

// 流量制御がユーザーごとに独立していることを検証
func TestFloodLimiterAllow_PerUser(t *testing.T) {
	fl := NewFloodLimiter(FloodLimiterConfig{
		RatePerMin:      1,
		Burst:           1,
		CleanupInterval: time.Minute,
	})
	defer fl.Stop()

	if !fl.Allow("42") {
		t.Fatal("first message for user 42 was rejected")
	}
	if fl.Allow("42") {
		t.Error("second message for user 42 was accepted")
	}

	// 別ユーザーは独立したバジェットを持つ
	if !fl.Allow("43") {
		t.Error("first message for user 43 was rejected")
	}

	if got := fl.LimiterCount(); got != 2 {
		t.Errorf("limiter count = %d, want 2", got)
	}
}

// 長期間アクセスのないエントリがクリーンアップで削除されることを検証
func TestFloodLimiterCleanup(t *testing.T) {
	fl := NewFloodLimiter(FloodLimiterConfig{
		RatePerMin:      1,
		Burst:           1,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer fl.Stop()

	fl.Allow("42")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fl.LimiterCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stale limiter entry was not cleaned up")
}

func TestDefaultFloodLimiterConfig(t *testing.T) {
	config := DefaultFloodLimiterConfig()

	if config.RatePerMin != 20 {
		t.Errorf("rate = %d, want 20", config.RatePerMin)
	}
	if config.Burst != 5 {
		t.Errorf("burst = %d, want 5", config.Burst)
	}
	if config.CleanupInterval != 5*time.Minute {
		t.Errorf("cleanup interval = %v, want 5m", config.CleanupInterval)
	}
}
