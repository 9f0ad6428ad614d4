package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stetskiy2517/calendar-bot/internal/model"
)

func newTestProvider(tokenURL string) *GoogleOAuthProvider {
	return NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://bot.example/auth/callback",
		AuthURL:      "https://idp.example/auth",
		TokenURL:     tokenURL,
	})
}

// 同意URLに必須パラメータがすべて含まれることを検証
func TestConsentURL(t *testing.T) {
	p := newTestProvider("https://idp.example/token")

	raw := p.ConsentURL("state-token")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse consent URL: %v", err)
	}

	q := u.Query()
	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "client-id"},
		{"redirect_uri", "https://bot.example/auth/callback"},
		{"response_type", "code"},
		{"scope", calendarScope},
		{"state", "state-token"},
		{"access_type", "offline"},
		{"prompt", "consent"},
	}
	for _, tt := range tests {
		if got := q.Get(tt.param); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
		}
	}
}

// 認可コード交換の正常系を検証
func TestExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code" {
			t.Errorf("code = %q, want auth-code", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "client-secret" {
			t.Errorf("client_secret = %q, want client-secret", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access",
			"token_type": "Bearer",
			"expires_in": 3600,
			"refresh_token": "refresh",
			"scope": "https://www.googleapis.com/auth/calendar.events"
		}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	cred, err := p.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "access" {
		t.Errorf("access token = %q, want %q", cred.AccessToken, "access")
	}
	if cred.RefreshToken != "refresh" {
		t.Errorf("refresh token = %q, want %q", cred.RefreshToken, "refresh")
	}
	if cred.UserID != "" {
		t.Errorf("user_id = %q, want empty (caller assigns it)", cred.UserID)
	}
	if cred.Expiry.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("expiry = %v, want roughly now+1h", cred.Expiry)
	}
}

// トークンエンドポイントのエラー応答がエラーになることを検証
func TestExchange_TokenEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// リフレッシュ応答がrefresh_tokenを省略した場合に元のトークンを引き継ぐことを検証
func TestRefresh_CarriesForwardRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "original-refresh" {
			t.Errorf("refresh_token = %q, want original-refresh", got)
		}

		// Googleのリフレッシュ応答はrefresh_tokenを含まないことがある
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	cred, err := p.Refresh(context.Background(), model.Credential{
		UserID:       "42",
		AccessToken:  "stale",
		RefreshToken: "original-refresh",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "fresh" {
		t.Errorf("access token = %q, want %q", cred.AccessToken, "fresh")
	}
	if cred.RefreshToken != "original-refresh" {
		t.Errorf("refresh token = %q, want carried-forward %q", cred.RefreshToken, "original-refresh")
	}
	if cred.UserID != "42" {
		t.Errorf("user_id = %q, want %q", cred.UserID, "42")
	}
}

// access_tokenを欠く応答がエラーになることを検証
func TestRefresh_EmptyAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type": "Bearer"}`))
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	if _, err := p.Refresh(context.Background(), model.Credential{RefreshToken: "r"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
