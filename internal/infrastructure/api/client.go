package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"commerce-admin-session/internal/domain/session"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const refreshPath = "/auth/refresh"

// SessionClearer 終局 401 時清掉共用 session 狀態。
type SessionClearer interface {
	ClearSession()
}

// PathSaver 終局 401 時記下重新登入後要回到的路徑。
type PathSaver interface {
	SaveIntendedPath(path string)
}

// Config 控制 HTTP client 的行為。
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	DefaultTTL time.Duration // 後端沒給 expires_in 且 token 不可解析時的預設
}

// Client 是所有對後端呼叫的唯一出入口：自動附帶 cookie 憑證、
// 401 時透明地 refresh 後重試一次、mutation 成功後觸發快取失效。
type Client struct {
	baseURL    string
	defaultTTL time.Duration
	httpClient *http.Client

	store       SessionClearer
	paths       PathSaver
	currentPath func() string

	refreshGroup singleflight.Group

	mu          sync.Mutex
	accessToken string
	onAuthFail  []func()
	onRefresh   []func(expiresAt time.Time)
	invalidate  []func()
}

// New 建立 HTTP client。store/paths/currentPath 可為 nil（僅測試時）。
func New(cfg Config, store SessionClearer, paths PathSaver, currentPath func() string) *Client {
	jar, _ := cookiejar.New(nil)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.DefaultTTL
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		defaultTTL:  ttl,
		httpClient:  &http.Client{Timeout: timeout, Jar: jar},
		store:       store,
		paths:       paths,
		currentPath: currentPath,
	}
}

// OnAuthFailure 註冊終局驗證失敗的通知，讓 transport 層不直接依賴
// orchestrator。
func (c *Client) OnAuthFailure(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFail = append(c.onAuthFail, fn)
}

// OnRefresh 註冊 refresh 成功的通知（含新的到期時間）。
func (c *Client) OnRefresh(fn func(expiresAt time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = append(c.onRefresh, fn)
}

// OnInvalidate 註冊 mutation 成功後的快取失效通知。
func (c *Client) OnInvalidate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidate = append(c.invalidate, fn)
}

type userDTO struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (d userDTO) toDomain() session.User {
	return session.User{
		ID:          d.ID,
		Email:       d.Email,
		Name:        d.Name,
		Role:        session.Role(d.Role),
		Permissions: d.Permissions,
	}
}

// LoginRequest 登入參數。
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// LoginResult 登入結果與換算後的絕對到期時間。
type LoginResult struct {
	User      session.User
	ExpiresAt time.Time
}

type tokenResponse struct {
	User        *userDTO `json:"user"`
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
}

// Login 呼叫 POST /auth/login。
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp, false); err != nil {
		return LoginResult{}, err
	}
	if resp.User == nil {
		return LoginResult{}, &Error{Status: 500, Message: "login response missing user"}
	}
	c.setAccessToken(resp.AccessToken)
	return LoginResult{
		User:      resp.User.toDomain(),
		ExpiresAt: c.expiryFrom(resp),
	}, nil
}

// Logout 呼叫 POST /auth/logout；best-effort，錯誤由呼叫端決定是否忽略。
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, false)
	c.setAccessToken("")
	return err
}

// Refresh 呼叫 POST /auth/refresh。併發呼叫共用同一個 in-flight
// 請求，不會重複打後端。
func (c *Client) Refresh(ctx context.Context) (time.Time, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		var resp tokenResponse
		if err := c.do(ctx, http.MethodPost, refreshPath, nil, &resp, false); err != nil {
			return time.Time{}, err
		}
		c.setAccessToken(resp.AccessToken)
		expiresAt := c.expiryFrom(resp)
		c.notifyRefresh(expiresAt)
		return expiresAt, nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

// Profile 呼叫 GET /auth/profile，用於初始驗證；401 時會經過
// 透明 refresh 重試。
func (c *Client) Profile(ctx context.Context) (session.User, error) {
	var resp struct {
		User userDTO `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &resp, false); err != nil {
		return session.User{}, err
	}
	return resp.User.toDomain(), nil
}

// Get 對後端發 GET 並解析 JSON 回應，供資料層使用。
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, false)
}

// Post 對後端發 POST；成功會觸發快取失效。
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, false)
}

// Put 對後端發 PUT；成功會觸發快取失效。
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out, false)
}

// Delete 對後端發 DELETE；成功會觸發快取失效。
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, false)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, retried bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.getAccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	// 登入本身的 401 是帳密錯誤，不屬於 refresh-retry 的範圍
	if resp.StatusCode == http.StatusUnauthorized && path != refreshPath && path != "/auth/login" && !retried {
		if _, err := c.Refresh(ctx); err != nil {
			c.failTerminal()
			return ErrUnauthorized
		}
		return c.do(ctx, method, path, body, out, true)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if isMutation(method) {
		c.notifyInvalidate()
	}
	return nil
}

// failTerminal 處理無法恢復的 401：清掉共用狀態、記下目前路徑、
// 通知訂閱者。
func (c *Client) failTerminal() {
	c.setAccessToken("")
	if c.store != nil {
		c.store.ClearSession()
	}
	if c.paths != nil && c.currentPath != nil {
		if p := c.currentPath(); p != "" {
			c.paths.SaveIntendedPath(p)
		}
	}
	c.mu.Lock()
	handlers := append([]func(){}, c.onAuthFail...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// expiryFrom 換算絕對到期時間：優先用 expires_in，其次解析 access
// token 的 exp claim（不驗簽，時效授權仍由後端把關），最後退回預設。
func (c *Client) expiryFrom(resp tokenResponse) time.Time {
	now := time.Now()
	if resp.ExpiresIn > 0 {
		return now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.AccessToken != "" {
		var claims jwt.RegisteredClaims
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(resp.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	return now.Add(c.defaultTTL)
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) notifyRefresh(expiresAt time.Time) {
	c.mu.Lock()
	handlers := append([]func(time.Time){}, c.onRefresh...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(expiresAt)
	}
}

func (c *Client) notifyInvalidate() {
	c.mu.Lock()
	handlers := append([]func(){}, c.invalidate...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func parseError(status int, data []byte) error {
	var body struct {
		Error     string            `json:"error"`
		ErrorCode string            `json:"error_code"`
		Fields    map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		log.Printf("[API] non-json error response (status %d): %s", status, data)
		return &Error{Status: status, Message: http.StatusText(status)}
	}
	return &Error{Status: status, Code: body.ErrorCode, Message: body.Error, Fields: body.Fields}
}
