package pos

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenEndpoint JSON 形式的 OAuth 令牌端点（Square / Clover 均不接受表单提交）
type TokenEndpoint struct {
	TokenURL     string
	RefreshURL   string
	ClientID     string
	ClientSecret string
	Client       *http.Client
}

// TokenResponse 令牌换取结果
type TokenResponse struct {
	Token       *oauth2.Token
	MerchantRef string
}

// Exchange 用授权码换取令牌
func (e TokenEndpoint) Exchange(ctx context.Context, code, redirectURL string) (*TokenResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is required", ErrConfigInvalid)
	}
	payload := map[string]string{
		"client_id":     e.ClientID,
		"client_secret": e.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	}
	if redirectURL != "" {
		payload["redirect_uri"] = redirectURL
	}
	return e.post(ctx, e.TokenURL, payload)
}

// Refresh 刷新令牌
func (e TokenEndpoint) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: refresh token is missing", ErrConfigInvalid)
	}
	target := e.RefreshURL
	if target == "" {
		target = e.TokenURL
	}
	return e.post(ctx, target, map[string]string{
		"client_id":     e.ClientID,
		"client_secret": e.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
}

func (e TokenEndpoint) post(ctx context.Context, target string, payload map[string]string) (*TokenResponse, error) {
	body, status, err := DoJSON(ctx, NewPlainClient(e.Client), JSONRequest{
		Method: http.MethodPost,
		URL:    target,
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}
	raw, err := ExpectOK(body, status)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{
		AccessToken:  ReadString(raw, "access_token"),
		RefreshToken: ReadString(raw, "refresh_token"),
		TokenType:    ReadString(raw, "token_type"),
		Expiry:       parseTokenExpiry(raw, time.Now()),
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token missing", ErrResponseInvalid)
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	merchant := ReadString(raw, "merchant_id")
	if merchant == "" {
		merchant = ReadString(raw, "merchantId")
	}
	return &TokenResponse{Token: tok, MerchantRef: merchant}, nil
}

func parseTokenExpiry(raw map[string]interface{}, now time.Time) time.Time {
	if at := ReadString(raw, "expires_at"); at != "" {
		if parsed, err := time.Parse(time.RFC3339, at); err == nil {
			return parsed
		}
	}
	if unix := ReadInt64(raw, "access_token_expiration"); unix > 0 {
		return time.Unix(unix, 0)
	}
	if seconds := ReadInt64(raw, "expires_in"); seconds > 0 {
		return now.Add(time.Duration(seconds) * time.Second)
	}
	return time.Time{}
}

type refresher struct {
	ctx      context.Context
	endpoint TokenEndpoint
	mu       sync.Mutex
	refresh  string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.endpoint.Refresh(r.ctx, r.refresh)
	if err != nil {
		return nil, err
	}
	if resp.Token.RefreshToken == "" {
		resp.Token.RefreshToken = r.refresh
	}
	r.refresh = resp.Token.RefreshToken
	return resp.Token, nil
}

type notifyingSource struct {
	base      oauth2.TokenSource
	mu        sync.Mutex
	last      string
	onRefresh func(*oauth2.Token)
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()
	if changed && s.onRefresh != nil {
		s.onRefresh(tok)
	}
	return tok, nil
}

// NewTokenSource 构建自动刷新的令牌源，刷新后回调 onRefresh 持久化
func NewTokenSource(ctx context.Context, endpoint TokenEndpoint, initial *oauth2.Token, onRefresh func(*oauth2.Token)) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	last, refresh := "", ""
	if initial != nil {
		last, refresh = initial.AccessToken, initial.RefreshToken
	}
	base := oauth2.ReuseTokenSource(initial, &refresher{ctx: ctx, endpoint: endpoint, refresh: refresh})
	return &notifyingSource{base: base, last: last, onRefresh: onRefresh}
}

// AuthorizedClient 构建携带 Bearer 令牌的 HTTP 客户端
func AuthorizedClient(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	if ctx == nil {
		ctx = context.Background()
	}
	client := oauth2.NewClient(ctx, ts)
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	client.Timeout = timeout
	return client
}
