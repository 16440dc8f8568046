package stub

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	domain "commerce-admin-session/internal/domain/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	errCodeBadRequest         = "BAD_REQUEST"
	errCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	errCodeUnauthorized       = "AUTH_UNAUTHORIZED"
	errCodeValidation         = "VALIDATION"
	errCodeNotFound           = "NOT_FOUND"
	refreshCookieName         = "refresh_token"
)

// Config 控制 stub 後端的行為。
type Config struct {
	Secret        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberMeTTL time.Duration // remember-me 的 refresh token 存續時間
}

type account struct {
	user         domain.User
	passwordHash string
}

type product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Server 模擬電商後台的驗證與資料端點，供本機開發與整合測試。
type Server struct {
	engine *gin.Engine
	issuer *issuer
	cfg    Config

	mu       sync.Mutex
	accounts map[string]account
	products []product
}

// NewServer 建立 stub 後端並植入預設帳號與測試資料。
func NewServer(cfg Config) *Server {
	if cfg.Secret == "" {
		cfg.Secret = "dev-only-secret"
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	if cfg.RememberMeTTL == 0 {
		cfg.RememberMeTTL = 30 * 24 * time.Hour
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		issuer:   newIssuer(cfg.Secret, cfg.AccessTTL),
		cfg:      cfg,
		accounts: make(map[string]account),
	}
	s.seed()
	s.registerRoutes()
	return s
}

// Handler 回傳路由處理器，供 HTTP server 掛載。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// seed 植入預設帳號（密碼皆為 admin123）與示範商品。
func (s *Server) seed() {
	seeds := []struct {
		user     domain.User
		password string
	}{
		{
			user: domain.User{
				ID: uuid.NewString(), Email: "admin@example.com", Name: "Admin",
				Role:        domain.RoleAdmin,
				Permissions: []string{"products:write", "orders:write", "users:manage"},
			},
			password: "admin123",
		},
		{
			user: domain.User{
				ID: uuid.NewString(), Email: "staff@example.com", Name: "Staff",
				Role:        domain.RoleStaff,
				Permissions: []string{"products:read", "orders:read"},
			},
			password: "admin123",
		},
	}
	for _, sd := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(sd.password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[Stub] seed hash failed for %s: %v", sd.user.Email, err)
			continue
		}
		s.accounts[sd.user.Email] = account{user: sd.user, passwordHash: string(hash)}
	}
	s.products = []product{
		{ID: "p-1", Name: "Ceramic Mug", Price: 18.5},
		{ID: "p-2", Name: "Canvas Tote", Price: 32.0},
	}
}

func (s *Server) registerRoutes() {
	s.engine.POST("/auth/login", s.handleLogin)
	s.engine.POST("/auth/refresh", s.handleRefresh)
	s.engine.POST("/auth/logout", s.handleLogout)
	s.engine.GET("/auth/profile", s.requireAuth, s.handleProfile)

	s.engine.GET("/products", s.requireAuth, s.handleListProducts)
	s.engine.POST("/products", s.requireAuth, s.handleCreateProduct)
}

func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body", "error_code": errCodeBadRequest})
		return
	}
	if body.Email == "" || body.Password == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": "validation failed", "error_code": errCodeValidation,
			"fields": missingCredentialFields(body.Email, body.Password),
		})
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(body.Email))]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(acct.passwordHash), []byte(body.Password)) != nil {
		log.Printf("[Stub] login failed email=%s", body.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid email or password", "error_code": errCodeInvalidCredentials})
		return
	}

	access, _, err := s.issuer.issueAccess(acct.user.ID, string(acct.user.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "sign token failed"})
		return
	}
	refreshTTL := s.cfg.RefreshTTL
	if body.RememberMe {
		refreshTTL = s.cfg.RememberMeTTL
	}
	refresh, refreshExp := s.issuer.newRefresh(acct.user.ID, body.RememberMe, refreshTTL)
	s.setRefreshCookie(c, refresh, refreshExp)

	log.Printf("[Stub] login success user_id=%s role=%s", acct.user.ID, acct.user.Role)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"user":         userPayload(acct.user),
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.AccessTTL.Seconds()),
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing refresh token", "error_code": errCodeUnauthorized})
		return
	}
	sess, ok := s.issuer.takeRefresh(cookie)
	if !ok {
		log.Printf("[Stub] refresh rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "refresh token expired or invalid", "error_code": errCodeUnauthorized})
		return
	}
	acct, ok := s.accountByID(sess.userID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown user", "error_code": errCodeUnauthorized})
		return
	}

	access, _, err := s.issuer.issueAccess(acct.user.ID, string(acct.user.Role))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "sign token failed"})
		return
	}
	refreshTTL := s.cfg.RefreshTTL
	if sess.rememberMe {
		refreshTTL = s.cfg.RememberMeTTL
	}
	refresh, refreshExp := s.issuer.newRefresh(acct.user.ID, sess.rememberMe, refreshTTL)
	s.setRefreshCookie(c, refresh, refreshExp)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"user":         userPayload(acct.user),
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.AccessTTL.Seconds()),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie != "" {
		s.issuer.revoke(cookie)
	}
	s.setRefreshCookie(c, "", time.Now().Add(-time.Hour))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

func (s *Server) handleProfile(c *gin.Context) {
	userID := c.GetString("userID")
	acct, ok := s.accountByID(userID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown user", "error_code": errCodeUnauthorized})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": userPayload(acct.user)})
}

func (s *Server) handleListProducts(c *gin.Context) {
	s.mu.Lock()
	items := append([]product{}, s.products...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items, "total": len(items)})
}

func (s *Server) handleCreateProduct(c *gin.Context) {
	var body struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body", "error_code": errCodeBadRequest})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": "validation failed", "error_code": errCodeValidation,
			"fields": map[string]string{"name": "required"},
		})
		return
	}
	p := product{ID: uuid.NewString(), Name: body.Name, Price: body.Price}
	s.mu.Lock()
	s.products = append(s.products, p)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": p.ID})
}

// requireAuth 驗證 Bearer access token。
func (s *Server) requireAuth(c *gin.Context) {
	token := parseBearer(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "error_code": errCodeUnauthorized})
		c.Abort()
		return
	}
	cl, err := s.issuer.parseAccess(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token", "error_code": errCodeUnauthorized})
		c.Abort()
		return
	}
	c.Set("userID", cl.UserID)
	c.Next()
}

func (s *Server) accountByID(id string) (account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == id {
			return acct, true
		}
	}
	return account{}, false
}

func (s *Server) setRefreshCookie(c *gin.Context, token string, expires time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func userPayload(u domain.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"email":       u.Email,
		"name":        u.Name,
		"role":        string(u.Role),
		"permissions": u.Permissions,
	}
}

func parseBearer(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}

func missingCredentialFields(email, password string) map[string]string {
	fields := make(map[string]string)
	if email == "" {
		fields["email"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	return fields
}
