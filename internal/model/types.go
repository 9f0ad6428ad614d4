// Package model はドメインモデルを定義する。
package model

import "time"

// ChatEvent はチャットトランスポートから受信した1件のメッセージを表す。
// 生成後は不変であり、ワークフローによってちょうど1回消費される。
type ChatEvent struct {
	UserID      string    // 送信ユーザーの不透明な安定識別子（Telegramのchat ID）
	Text        string    // メッセージ本文。音声メッセージの場合は空
	VoiceFileID string    // 音声メッセージのファイルID。テキストメッセージの場合は空
	ReceivedAt  time.Time // 受信時刻
}

// IsVoice は音声メッセージかどうかを返す。
func (e ChatEvent) IsVoice() bool {
	return e.VoiceFileID != ""
}

// Credential はユーザーのカレンダーへの委任アクセストークンを表す。
// CredentialStoreが所有し、呼び出し元にはコピーのみが渡される。
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Expired はアクセストークンが期限切れかどうかを返す。
// 期限ぎりぎりのトークンで外部呼び出しが失敗しないよう30秒のマージンを取る。
func (c Credential) Expired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Before(c.Expiry.Add(-30 * time.Second))
}

// Refreshable はリフレッシュトークンによる再発行が可能かどうかを返す。
func (c Credential) Refreshable() bool {
	return c.RefreshToken != ""
}

// PendingAuthorization は認可リンク発行から完了までの中間状態を表す。
// ユーザーごとに高々1件であり、2回目の発行は1回目を置き換える。
type PendingAuthorization struct {
	UserID    string
	State     string // 推測不能なstateトークン
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired は有効期限切れかどうかを返す。
func (p PendingAuthorization) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// ResolvedSchedule は自然言語から解決された予定の開始時刻を表す。
// イベントの長さは常に1時間であり、本文から推測しない。
type ResolvedSchedule struct {
	Start    time.Time
	Duration time.Duration
	Location *time.Location
}

// End は予定の終了時刻を返す。
func (s ResolvedSchedule) End() time.Time {
	return s.Start.Add(s.Duration)
}
