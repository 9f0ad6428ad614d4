// Package auth はGoogle OAuth認可フローと認可待ちエントリの管理を提供する。
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

const (
	defaultGoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"

	// calendarScope はイベント作成に必要なGoogle Calendarのスコープ。
	calendarScope = "https://www.googleapis.com/auth/calendar.events"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// GoogleOAuthProvider はGoogle OAuth 2.0によるトークンの発行・更新を提供する。
type GoogleOAuthProvider struct {
	config     GoogleOAuthConfig
	httpClient *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	return &GoogleOAuthProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// ConsentURL はGoogle OAuthの同意画面URLを生成する。
// リフレッシュトークンを確実に得るためaccess_type=offlineとprompt=consentを指定する。
func (p *GoogleOAuthProvider) ConsentURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {calendarScope},
		"state":         {state},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// googleTokenResponse はGoogleのトークンエンドポイントのレスポンス。
type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Exchange は認可コードをアクセストークンに交換する。
// 返されるCredentialのUserIDは未設定であり、呼び出し元が設定する。
func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	tokenResp, err := p.postToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	return p.toCredential(tokenResp, ""), nil
}

// Refresh はリフレッシュトークンで新しいアクセストークンを取得する。
// Googleはリフレッシュ応答にrefresh_tokenを含めないことがあるため、
// その場合は元のリフレッシュトークンを引き継ぐ。
func (p *GoogleOAuthProvider) Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	data := url.Values{
		"refresh_token": {cred.RefreshToken},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"grant_type":    {"refresh_token"},
	}

	tokenResp, err := p.postToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshed := p.toCredential(tokenResp, cred.UserID)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	return refreshed, nil
}

// postToken はトークンエンドポイントにフォームをPOSTしレスポンスをパースする。
func (p *GoogleOAuthProvider) postToken(ctx context.Context, data url.Values) (*googleTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

func (p *GoogleOAuthProvider) toCredential(resp *googleTokenResponse, userID string) *model.Credential {
	cred := &model.Credential{
		UserID:       userID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	}
	if resp.ExpiresIn > 0 {
		cred.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return cred
}

// compile-time interface check
var _ IdentityProvider = (*GoogleOAuthProvider)(nil)
