// Package calendar はカレンダーバックエンド（Google Calendar API v3）のクライアントを提供する。
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

// defaultEndpoint はGoogle Calendar API v3のイベント挿入エンドポイント。
// primaryカレンダー固定。マルチカレンダーはサポートしない。
const defaultEndpoint = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

// Client はGoogle Calendarへのイベント挿入クライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// eventDateTime はイベントの開始・終了時刻を表す。
type eventDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// eventBody はevents.insertのリクエストボディ。
type eventBody struct {
	Summary string        `json:"summary"`
	Start   eventDateTime `json:"start"`
	End     eventDateTime `json:"end"`
}

// Insert は指定ユーザーのprimaryカレンダーに1件のイベントを作成する。
// accessTokenには有効な委任アクセストークンを渡す。
func (c *Client) Insert(ctx context.Context, accessToken, title string, sched model.ResolvedSchedule) error {
	body := eventBody{
		Summary: title,
		Start: eventDateTime{
			DateTime: sched.Start.Format(time.RFC3339),
			TimeZone: sched.Location.String(),
		},
		End: eventDateTime{
			DateTime: sched.End().Format(time.RFC3339),
			TimeZone: sched.Location.String(),
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal event body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create insert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("calendar insert request failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("calendar insert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("calendar insert rejected",
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("calendar insert returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
