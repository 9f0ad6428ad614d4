package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultAPIBase はTelegram Bot APIのベースURL。
const defaultAPIBase = "https://api.telegram.org"

// Client はTelegram Bot APIのクライアント。
// メッセージ送信と音声ファイルの取得に使用する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	token      string
	apiBase    string // テスト用にベースURLを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		token:      token,
		apiBase:    defaultAPIBase,
	}
}

// sendMessageRequest はsendMessageメソッドのリクエストボディ。
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// apiResponse はBot APIの共通レスポンスエンベロープ。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage は指定チャットにテキストメッセージを送信する。
func (c *Client) SendMessage(ctx context.Context, userID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: userID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal sendMessage request: %w", err)
	}

	resp, err := c.call(ctx, http.MethodPost, "/sendMessage", body)
	if err != nil {
		return err
	}

	if !resp.OK {
		return fmt.Errorf("sendMessage rejected: %s", resp.Description)
	}
	return nil
}

// fileResult はgetFileメソッドのレスポンス。
type fileResult struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// DownloadVoice は音声ファイルIDからファイル本体を取得する。
// getFileでファイルパスを解決し、ファイルダウンロードエンドポイントから読み取る。
func (c *Client) DownloadVoice(ctx context.Context, fileID string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"file_id": fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal getFile request: %w", err)
	}

	resp, err := c.call(ctx, http.MethodPost, "/getFile", body)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("getFile rejected: %s", resp.Description)
	}

	var file fileResult
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return nil, fmt.Errorf("failed to parse getFile result: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file_path in getFile result")
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	dlResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file download failed: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded file: %w", err)
	}
	return data, nil
}

// call はBot APIのメソッドを呼び出し、共通レスポンスをパースする。
// トークンを含むURLはログに出さない。
func (c *Client) call(ctx context.Context, method, apiMethod string, body []byte) (*apiResponse, error) {
	url := fmt.Sprintf("%s/bot%s%s", c.apiBase, c.token, apiMethod)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("telegram API call failed",
			slog.String("method", apiMethod),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read telegram response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse telegram response (status %d): %w", resp.StatusCode, err)
	}

	return &parsed, nil
}
