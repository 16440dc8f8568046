package session

import (
	"context"
	"log"
	"sync"
	"time"

	domain "commerce-admin-session/internal/domain/session"
	"commerce-admin-session/internal/infrastructure/api"
	"commerce-admin-session/internal/infrastructure/config"
)

// Credentials 登入參數。
type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
}

// AuthAPI 定義 orchestrator 需要的後端操作。
type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (domain.User, time.Time, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (time.Time, error)
	Profile(ctx context.Context) (domain.User, error)
}

// PathStore 保存強制重新登入前的目標路徑。
type PathStore interface {
	SaveIntendedPath(path string)
	TakeIntendedPath() (string, bool)
}

// Broadcaster 發布/訂閱跨分頁事件。
type Broadcaster interface {
	Broadcast(t domain.EventType, data map[string]string)
	Subscribe(t domain.EventType, handler func(domain.Event)) func()
}

// Navigator 讓 orchestrator 得知並改變 UI 目前的路由。
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// Notifier 對使用者顯示提示訊息（登出原因、延長成功等）。
type Notifier interface {
	Info(msg string)
	Warn(msg string)
}

type noopNotifier struct{}

func (noopNotifier) Info(msg string) { log.Printf("[Session] notice: %s", msg) }
func (noopNotifier) Warn(msg string) { log.Printf("[Session] warning: %s", msg) }

// State 目前分頁的登入狀態快照，IsAuthenticated 恆與 User 一致。
type State struct {
	User             *domain.User
	IsAuthenticated  bool
	IsLoading        bool
	SessionExpiresAt time.Time // 未登入時為零值
}

// Warning session 即將到期的警告投影，TimeRemaining 每秒重算。
type Warning struct {
	Show          bool
	ExpiresAt     time.Time
	TimeRemaining time.Duration
}

// Deps 是 Manager 的外部相依；由應用程式根部組裝一次、
// 以參考傳入，不透過套件層級的單例。
type Deps struct {
	Config config.SessionConfig
	API    AuthAPI
	Store  domain.Store
	Paths  PathStore
	Sync   Broadcaster
	Nav    Navigator
	Notify Notifier
}

// Manager 是 session 生命週期的協調者：持有登入狀態機、
// 串接 store/同步器/活動監測/refresh 排程，並對 UI 提供唯一的
// 整合介面。
type Manager struct {
	cfg       config.SessionConfig
	api       AuthAPI
	store     domain.Store
	paths     PathStore
	sync      Broadcaster
	nav       Navigator
	notify    Notifier
	monitor   *ActivityMonitor
	scheduler *RefreshScheduler

	now func() time.Time

	mu            sync.Mutex
	user          *domain.User
	authenticated bool
	loading       bool
	expiresAt     time.Time
	warning       Warning
	checkStop     chan struct{}
	countdownStop chan struct{}
	unsubs        []func()
	subscribed    bool
}

// NewManager 組裝 Manager；活動監測與 refresh 排程由內部建立。
func NewManager(deps Deps) *Manager {
	notify := deps.Notify
	if notify == nil {
		notify = noopNotifier{}
	}
	return &Manager{
		cfg:       deps.Config,
		api:       deps.API,
		store:     deps.Store,
		paths:     deps.Paths,
		sync:      deps.Sync,
		nav:       deps.Nav,
		notify:    notify,
		monitor:   NewActivityMonitor(deps.Store, deps.Config.Debounce),
		scheduler: NewRefreshScheduler(deps.Config.RefreshBuffer),
		now:       time.Now,
	}
}

// Initialize 在應用程式啟動時驗證既有 session。位於登入頁時整段跳過，
// 避免驗證失敗造成的轉址迴圈。
func (m *Manager) Initialize(ctx context.Context) {
	m.subscribeOnce()
	m.initialize(ctx, false)
}

// initialize 執行驗證流程。force 為 true 時（跨分頁 login 事件）
// 即使在登入頁也照跑——這個不對稱是沿用既有行為，參見測試。
func (m *Manager) initialize(ctx context.Context, force bool) {
	if !force && m.nav.CurrentPath() == m.cfg.LoginRoute {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()

	user, err := m.api.Profile(ctx)
	if err != nil && api.IsAuthError(err) {
		// 先靜默 refresh 一次再驗證
		if _, rerr := m.api.Refresh(ctx); rerr == nil {
			user, err = m.api.Profile(ctx)
		}
	}

	if err != nil {
		m.mu.Lock()
		m.user = nil
		m.authenticated = false
		m.loading = false
		m.expiresAt = time.Time{}
		m.mu.Unlock()
		return
	}

	m.becomeAuthenticated(user, time.Time{})
}

// Login 以帳密登入。失敗時原樣回傳錯誤讓 UI 顯示，狀態不變。
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	m.subscribeOnce()

	user, expiresAt, err := m.api.Login(ctx, creds)
	if err != nil {
		return err
	}

	now := m.now()
	m.store.SaveSession(domain.Info{
		ExpiresAt:    expiresAt,
		LastActivity: now,
		RememberMe:   creds.RememberMe,
	})
	m.store.SaveUser(user)

	m.becomeAuthenticated(user, expiresAt)
	m.sync.Broadcast(domain.EventLogin, map[string]string{"user_id": user.ID})

	if target, ok := m.paths.TakeIntendedPath(); ok {
		m.nav.Navigate(target)
	} else {
		m.nav.Navigate(m.cfg.DefaultRoute)
	}
	return nil
}

// Logout 使用者主動登出。遠端呼叫為 best-effort：失敗記錄後照樣
// 完成本地清理，錯誤回傳給呼叫端顯示。
func (m *Manager) Logout(ctx context.Context) error {
	err := m.api.Logout(ctx)
	if err != nil {
		log.Printf("[Session] remote logout failed (continuing local teardown): %v", err)
	}

	m.teardown()
	m.sync.Broadcast(domain.EventLogout, nil)
	m.navigateToLogin()
	return err
}

// RefreshSession 主動更新憑證並套用新的到期時間。
func (m *Manager) RefreshSession(ctx context.Context) error {
	expiresAt, err := m.api.Refresh(ctx)
	if err != nil {
		return err
	}
	m.adoptExpiry(expiresAt, true)
	return nil
}

// ExtendSession 使用者在警告上按「保持登入」。成功時重新開始計時，
// 失敗時強制登出。
func (m *Manager) ExtendSession(ctx context.Context) error {
	m.hideWarning()
	m.scheduler.Cancel()

	expiresAt, err := m.api.Refresh(ctx)
	if err != nil {
		m.forceLogout("無法延長工作階段，請重新登入")
		return err
	}

	m.adoptExpiry(expiresAt, true)
	m.notify.Info("工作階段已延長")
	return nil
}

// DismissWarning 只隱藏警告本身；到期時間不變，之後的週期檢查
// 仍會在歸零時強制登出。
func (m *Manager) DismissWarning() {
	m.hideWarning()
}

// RecordActivity 接收 UI 轉送的一筆原始互動事件。
func (m *Manager) RecordActivity() {
	m.monitor.Observe()
}

// State 回傳登入狀態快照。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	var user *domain.User
	if m.user != nil {
		u := *m.user
		user = &u
	}
	return State{
		User:             user,
		IsAuthenticated:  m.authenticated,
		IsLoading:        m.loading,
		SessionExpiresAt: m.expiresAt,
	}
}

// SessionWarning 回傳警告投影快照。
func (m *Manager) SessionWarning() Warning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warning
}

// HandleAuthFailure 接收 HTTP client 的終局 401 通知：本地清理並轉址。
// client 已清掉 store 並記下路徑，這裡不重複。
func (m *Manager) HandleAuthFailure() {
	m.teardown()
	m.sync.Broadcast(domain.EventLogout, nil)
	m.notify.Warn("登入已失效，請重新登入")
	m.navigateToLogin()
}

// HandleTransparentRefresh 接收 HTTP client 透明 refresh 成功的通知。
func (m *Manager) HandleTransparentRefresh(expiresAt time.Time) {
	m.mu.Lock()
	authenticated := m.authenticated
	m.mu.Unlock()
	if !authenticated {
		return
	}
	m.adoptExpiry(expiresAt, true)
}

// Close 釋放所有計時器與訂閱；元件卸載時必須呼叫，
// 否則殘留的 timer 會持有過期狀態。
func (m *Manager) Close() {
	m.stopChecking()
	m.stopCountdown()
	m.scheduler.Cancel()
	m.monitor.Stop()

	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.subscribed = false
	m.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// --- 內部 ---

func (m *Manager) subscribeOnce() {
	m.mu.Lock()
	if m.subscribed {
		m.mu.Unlock()
		return
	}
	m.subscribed = true
	m.mu.Unlock()

	unsubs := []func(){
		// 任何分頁登出 → 本分頁無條件登出並轉址（冪等）
		m.sync.Subscribe(domain.EventLogout, func(domain.Event) {
			m.handleRemoteLogout()
		}),
		// 其他分頁登入 → 重跑完整驗證，讓本分頁免重載即登入
		m.sync.Subscribe(domain.EventLogin, func(domain.Event) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			m.initialize(ctx, true)
		}),
		// 其他分頁 refresh → 直接採用 store 裡的新到期時間，不打網路
		m.sync.Subscribe(domain.EventRefresh, func(domain.Event) {
			if info, ok := m.store.GetSession(); ok {
				m.adoptExpiry(info.ExpiresAt, false)
			}
		}),
		// 其他分頁的活動 → 只更新本地參考；store 已由來源分頁更新
		m.sync.Subscribe(domain.EventActivity, func(ev domain.Event) {
			m.monitor.Touch(ev.Timestamp)
		}),
	}

	m.mu.Lock()
	m.unsubs = append(m.unsubs, unsubs...)
	m.mu.Unlock()
}

// becomeAuthenticated 設定登入狀態並啟動所有背景機制。
// expiresAt 為零值時改用 store 的紀錄，再不然用預設存續時間。
func (m *Manager) becomeAuthenticated(user domain.User, expiresAt time.Time) {
	now := m.now()
	if expiresAt.IsZero() {
		if info, ok := m.store.GetSession(); ok {
			expiresAt = info.ExpiresAt
		} else {
			expiresAt = now.Add(m.cfg.TTL)
			m.store.SaveSession(domain.Info{ExpiresAt: expiresAt, LastActivity: now})
		}
	}

	m.mu.Lock()
	u := user
	m.user = &u
	m.authenticated = true
	m.loading = false
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.monitor.Start(func() {
		m.sync.Broadcast(domain.EventActivity, nil)
	})
	m.startChecking()
	m.scheduleRefresh(expiresAt)
}

// adoptExpiry 套用新的到期時間。persist 為 true 時寫回 store 並
// 廣播給其他分頁；false 用於「採用其他分頁的結果」的場合。
// 同一個到期時間只套用一次：orchestrator 主動 refresh 時，HTTP client
// 的 refresh 通知會再送來一次相同的結果。
func (m *Manager) adoptExpiry(expiresAt time.Time, persist bool) {
	m.mu.Lock()
	if expiresAt.Equal(m.expiresAt) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if persist {
		if info, ok := m.store.GetSession(); ok {
			info.ExpiresAt = expiresAt
			info.LastActivity = m.now()
			m.store.SaveSession(info)
		} else {
			m.store.SaveSession(domain.Info{ExpiresAt: expiresAt, LastActivity: m.now()})
		}
	}

	m.mu.Lock()
	m.expiresAt = expiresAt
	m.mu.Unlock()

	m.hideWarning()
	m.scheduleRefresh(expiresAt)

	if persist {
		m.sync.Broadcast(domain.EventRefresh, nil)
	}
}

func (m *Manager) scheduleRefresh(expiresAt time.Time) {
	m.scheduler.Schedule(expiresAt, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return m.RefreshSession(ctx)
	})
}

// teardown 清掉本地狀態與所有計時器；冪等。
func (m *Manager) teardown() {
	m.stopChecking()
	m.stopCountdown()
	m.scheduler.Cancel()
	m.monitor.Stop()
	m.store.ClearSession()

	m.mu.Lock()
	m.user = nil
	m.authenticated = false
	m.loading = false
	m.expiresAt = time.Time{}
	m.warning = Warning{}
	m.mu.Unlock()
}

// forceLogout 用於逾時/過期等非使用者主動的登出：
// 顯示原因、記下目前路徑、清理並轉址。不打遠端 logout。
func (m *Manager) forceLogout(reason string) {
	m.notify.Warn(reason)
	m.teardown()
	m.sync.Broadcast(domain.EventLogout, nil)
	m.navigateToLogin()
}

// handleRemoteLogout 處理其他分頁的登出事件。不得再廣播，
// 否則會形成事件迴圈；即使本分頁已登出也要轉址。
func (m *Manager) handleRemoteLogout() {
	m.teardown()
	m.navigateToLogin()
}

func (m *Manager) navigateToLogin() {
	current := m.nav.CurrentPath()
	if current == m.cfg.LoginRoute {
		return
	}
	if current != "" {
		m.paths.SaveIntendedPath(current)
	}
	m.nav.Navigate(m.cfg.LoginRoute)
}

func (m *Manager) startChecking() {
	m.mu.Lock()
	if m.checkStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.checkStop = stop
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				m.checkSession()
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}

func (m *Manager) stopChecking() {
	m.mu.Lock()
	if m.checkStop != nil {
		close(m.checkStop)
		m.checkStop = nil
	}
	m.mu.Unlock()
}

// checkSession 週期檢查：閒置逾時 → 登出；進入警告區間 → 顯示倒數；
// 接近到期且（remember-me 或最近有活動）→ 靜默 refresh。
// 每次 tick 由 ticker 序列化，不會重疊。
func (m *Manager) checkSession() {
	m.mu.Lock()
	authenticated := m.authenticated
	m.mu.Unlock()
	if !authenticated {
		return
	}

	info, ok := m.store.GetSession()
	if !ok {
		m.forceLogout("工作階段已結束，請重新登入")
		return
	}

	now := m.now()

	// remember-me session 不受閒置逾時限制，只看絕對到期時間
	if !info.RememberMe && info.Inactive(now, m.cfg.InactivityTimeout) {
		m.forceLogout("閒置過久，已自動登出")
		return
	}

	if info.Expired(now) {
		m.forceLogout("工作階段已到期，請重新登入")
		return
	}

	timeUntilExpiry := info.ExpiresAt.Sub(now)
	switch {
	case timeUntilExpiry <= m.cfg.WarningBefore:
		m.showWarning(info.ExpiresAt)
	case timeUntilExpiry <= m.cfg.RefreshThreshold:
		recentlyActive := m.monitor.TimeSinceLastActivity() <= m.cfg.ActivityWindow
		if info.RememberMe || recentlyActive {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := m.RefreshSession(ctx); err != nil {
					log.Printf("[Session] proactive refresh failed: %v", err)
				}
			}()
		}
	default:
		m.hideWarning()
	}
}

func (m *Manager) showWarning(expiresAt time.Time) {
	m.mu.Lock()
	m.warning = Warning{
		Show:          true,
		ExpiresAt:     expiresAt,
		TimeRemaining: expiresAt.Sub(m.now()),
	}
	alreadyCounting := m.countdownStop != nil
	var stop chan struct{}
	if !alreadyCounting {
		stop = make(chan struct{})
		m.countdownStop = stop
	}
	m.mu.Unlock()

	if alreadyCounting {
		return
	}

	ticker := time.NewTicker(time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				if m.countdownTick() {
					ticker.Stop()
					return
				}
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}

// countdownTick 每秒重算剩餘時間；歸零時強制登出。回傳 true 表示
// 倒數結束。
func (m *Manager) countdownTick() bool {
	m.mu.Lock()
	if !m.warning.Show {
		m.mu.Unlock()
		return true
	}
	remaining := m.warning.ExpiresAt.Sub(m.now())
	if remaining > 0 {
		m.warning.TimeRemaining = remaining
		m.mu.Unlock()
		return false
	}
	m.warning = Warning{}
	m.countdownStop = nil
	m.mu.Unlock()

	m.forceLogout("工作階段已到期，請重新登入")
	return true
}

func (m *Manager) hideWarning() {
	m.mu.Lock()
	m.warning = Warning{}
	m.mu.Unlock()
	m.stopCountdown()
}

func (m *Manager) stopCountdown() {
	m.mu.Lock()
	if m.countdownStop != nil {
		close(m.countdownStop)
		m.countdownStop = nil
	}
	m.mu.Unlock()
}
