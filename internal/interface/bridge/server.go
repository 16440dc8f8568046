package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	appsession "commerce-admin-session/internal/application/session"
	"commerce-admin-session/internal/infrastructure/api"

	"github.com/gin-gonic/gin"
)

const (
	errCodeBadRequest         = "BAD_REQUEST"
	errCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	errCodeUnauthorized       = "AUTH_UNAUTHORIZED"
	errCodeValidation         = "VALIDATION"
	errCodeNetwork            = "NETWORK_ERROR"
	errCodeNotFound           = "NOT_FOUND"
	errCodeInternal           = "INTERNAL_ERROR"
)

// SessionManager 是 bridge 對 session 管理端的最小依賴。
type SessionManager interface {
	Login(ctx context.Context, creds appsession.Credentials) error
	Logout(ctx context.Context) error
	ExtendSession(ctx context.Context) error
	DismissWarning()
	RecordActivity()
	State() appsession.State
	SessionWarning() appsession.Warning
}

// FormScratch 是 bridge 對表單暫存的最小依賴。
type FormScratch interface {
	BackupForm(formID string, data []byte)
	TakeFormBackup(formID string) ([]byte, bool)
}

// DataGetter 讀取後台資料（經過查詢快取），供 UI 的資料端點使用。
type DataGetter interface {
	Get(ctx context.Context, path string, out any) error
}

// Server 把 session 管理端掛上本機 HTTP 介面，給 UI 殼輪詢與操作。
type Server struct {
	engine  *gin.Engine
	mgr     SessionManager
	scratch FormScratch
	router  *Router
	board   *NoticeBoard
	data    DataGetter
}

// NewServer 建立 bridge 伺服器並註冊路由。data 可為 nil（不提供資料端點）。
func NewServer(mgr SessionManager, scratch FormScratch, router *Router, board *NoticeBoard, data DataGetter) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginLogger(), gin.Recovery(), corsMiddleware())

	s := &Server{
		engine:  engine,
		mgr:     mgr,
		scratch: scratch,
		router:  router,
		board:   board,
		data:    data,
	}
	s.registerRoutes()
	return s
}

// Handler 回傳路由處理器，供 HTTP server 掛載。
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/api/ping", s.handlePing)
	s.engine.GET("/api/session/state", s.handleState)
	s.engine.GET("/api/session/warning", s.handleWarning)
	s.engine.POST("/api/session/login", s.handleLogin)
	s.engine.POST("/api/session/logout", s.handleLogout)
	s.engine.POST("/api/session/extend", s.handleExtend)
	s.engine.POST("/api/session/dismiss-warning", s.handleDismissWarning)
	s.engine.POST("/api/session/activity", s.handleActivity)
	s.engine.POST("/api/session/navigate", s.handleNavigate)
	s.engine.POST("/api/forms/:id/backup", s.handleFormBackup)
	s.engine.GET("/api/forms/:id/restore", s.handleFormRestore)
	s.engine.GET("/api/data/*path", s.handleData)
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	st := s.mgr.State()
	resp := gin.H{
		"success":          true,
		"is_authenticated": st.IsAuthenticated,
		"is_loading":       st.IsLoading,
		"route":            s.router.CurrentPath(),
		"redirects":        s.router.TakePending(),
		"notices":          s.board.Drain(),
	}
	if st.User != nil {
		resp["user"] = gin.H{
			"id":          st.User.ID,
			"email":       st.User.Email,
			"name":        st.User.Name,
			"role":        string(st.User.Role),
			"permissions": st.User.Permissions,
		}
	}
	if !st.SessionExpiresAt.IsZero() {
		resp["session_expires_at"] = st.SessionExpiresAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWarning(c *gin.Context) {
	w := s.mgr.SessionWarning()
	resp := gin.H{
		"success": true,
		"show":    w.Show,
	}
	if w.Show {
		resp["expires_at"] = w.ExpiresAt.Format(time.RFC3339)
		resp["seconds_remaining"] = int(w.TimeRemaining.Seconds())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body", "error_code": errCodeBadRequest})
		return
	}
	if body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "email and password required", "error_code": errCodeBadRequest})
		return
	}

	err := s.mgr.Login(c.Request.Context(), appsession.Credentials{
		Email:      body.Email,
		Password:   body.Password,
		RememberMe: body.RememberMe,
	})
	if err != nil {
		s.writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	// 遠端 logout 失敗不影響本地登出結果
	_ = s.mgr.Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

func (s *Server) handleExtend(c *gin.Context) {
	if err := s.mgr.ExtendSession(c.Request.Context()); err != nil {
		s.writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDismissWarning(c *gin.Context) {
	s.mgr.DismissWarning()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleActivity(c *gin.Context) {
	s.mgr.RecordActivity()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleNavigate(c *gin.Context) {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "path required", "error_code": errCodeBadRequest})
		return
	}
	s.router.Report(body.Path)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleFormBackup(c *gin.Context) {
	formID := c.Param("id")
	data, err := io.ReadAll(c.Request.Body)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "form payload required", "error_code": errCodeBadRequest})
		return
	}
	s.scratch.BackupForm(formID, data)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleFormRestore(c *gin.Context) {
	formID := c.Param("id")
	data, ok := s.scratch.TakeFormBackup(formID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no backup for form", "error_code": errCodeNotFound})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// handleData 把 GET 轉給查詢快取，同一路徑的重複讀取不會重打後端。
func (s *Server) handleData(c *gin.Context) {
	if s.data == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "data endpoint not configured", "error_code": errCodeNotFound})
		return
	}
	var out json.RawMessage
	if err := s.data.Get(c.Request.Context(), c.Param("path"), &out); err != nil {
		s.writeAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

// writeAPIError 把後端錯誤轉成 bridge 的回應：驗證錯誤帶欄位原樣
// 透傳，網路錯誤回 502，其餘依狀態碼轉譯。
func (s *Server) writeAPIError(c *gin.Context, err error) {
	if errors.Is(err, api.ErrNetwork) {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "network error, please retry", "error_code": errCodeNetwork})
		return
	}
	if errors.Is(err, api.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "error_code": errCodeUnauthorized})
		return
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		resp := gin.H{"success": false, "error": apiErr.Message, "error_code": apiErr.Code}
		if apiErr.Code == "" {
			resp["error_code"] = errCodeInternal
		}
		if len(apiErr.Fields) > 0 {
			resp["fields"] = apiErr.Fields
		}
		status := apiErr.Status
		if status == http.StatusUnauthorized {
			resp["error_code"] = errCodeInvalidCredentials
		}
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "error_code": errCodeInternal})
}
