// Package telegram はTelegram Bot APIとの連携を提供する。
// Webhook更新のデコードとメッセージ送信・ファイル取得のクライアントを含む。
package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// Update はTelegram Bot APIのwebhook更新を表す。
// このボットが扱うフィールドのみを含む。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message は受信メッセージを表す。
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Voice     *Voice `json:"voice"`
}

// Chat はメッセージの送信元チャットを表す。
type Chat struct {
	ID int64 `json:"id"`
}

// Voice は音声メッセージの添付を表す。
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

// DecodeUpdate はwebhookリクエストボディからUpdateをデコードする。
func DecodeUpdate(r io.Reader) (*Update, error) {
	var u Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}
	return &u, nil
}

// ChatEvent は更新をドメインのChatEventに変換する。
// テキストでも音声でもない更新（編集、ステッカー等）はok=falseを返す。
func (u *Update) ChatEvent(receivedAt time.Time) (model.ChatEvent, bool) {
	if u.Message == nil {
		return model.ChatEvent{}, false
	}

	ev := model.ChatEvent{
		UserID:     strconv.FormatInt(u.Message.Chat.ID, 10),
		ReceivedAt: receivedAt,
	}

	switch {
	case u.Message.Voice != nil:
		ev.VoiceFileID = u.Message.Voice.FileID
	case u.Message.Text != "":
		ev.Text = u.Message.Text
	default:
		return model.ChatEvent{}, false
	}

	return ev, true
}
