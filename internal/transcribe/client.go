// Package transcribe は音声認識の外部コラボレーターのクライアントを提供する。
// 音声データからテキストへの変換はブラックボックスとして扱う。
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client は外部音声認識サービスのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	language   string
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointには音声認識サービスの完全なURLを指定する。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		language:   "ru-RU",
	}
}

// transcribeResponse は音声認識サービスのレスポンスボディ。
type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe は音声データ（Telegramのogg/opus）をテキストに変換する。
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/ogg")
	req.Header.Set("Accept-Language", c.language)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("transcribe request failed",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("transcribe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcriber returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcriber response: %w", err)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse transcriber response: %w", err)
	}

	if parsed.Text == "" {
		return "", fmt.Errorf("empty transcription result")
	}

	return parsed.Text, nil
}
