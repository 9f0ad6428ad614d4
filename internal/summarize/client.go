// Package summarize はイベントタイトル抽出の外部コラボレーターのクライアントを提供する。
// 抽出はベストエフォートであり、イベント作成の成否に影響してはならない。
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// titlePrompt はタイトル抽出に使用するプロンプトの接頭辞。
const titlePrompt = "Выдели короткое название события из текста: "

// Client は外部要約サービスのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointには要約サービスの完全なURLを指定する。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// titleRequest は要約サービスへのリクエストボディ。
type titleRequest struct {
	Prompt string `json:"prompt"`
}

// titleResponse は要約サービスのレスポンスボディ。
type titleResponse struct {
	Text string `json:"text"`
}

// Title はテキストから短いイベントタイトルを抽出する。
// 失敗時はエラーを返す（呼び出し元がデフォルトタイトルへのフォールバックを判断する）。
func (c *Client) Title(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(titleRequest{Prompt: titlePrompt + text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal title request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create title request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("title request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read summarizer response: %w", err)
	}

	var parsed titleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse summarizer response: %w", err)
	}

	title := strings.TrimSpace(parsed.Text)
	if title == "" {
		return "", fmt.Errorf("empty title in summarizer response")
	}

	return title, nil
}
