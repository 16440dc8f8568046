package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "commerce-admin-session/internal/domain/session"
	"commerce-admin-session/internal/infrastructure/api"
	"commerce-admin-session/internal/infrastructure/config"
)

type fakeAuthAPI struct {
	mu               sync.Mutex
	loginErr         error
	refreshErr       error
	profileErr       error
	recoverOnRefresh bool
	user             domain.User
	expiresAt        time.Time
	loginCalls       int32
	logoutCalls      int32
	refreshCalls     int32
	profileCalls     int32
}

func (f *fakeAuthAPI) Login(_ context.Context, _ Credentials) (domain.User, time.Time, error) {
	atomic.AddInt32(&f.loginCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return domain.User{}, time.Time{}, f.loginErr
	}
	return f.user, f.expiresAt, nil
}

func (f *fakeAuthAPI) Logout(_ context.Context) error {
	atomic.AddInt32(&f.logoutCalls, 1)
	return nil
}

func (f *fakeAuthAPI) Refresh(_ context.Context) (time.Time, error) {
	atomic.AddInt32(&f.refreshCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return time.Time{}, f.refreshErr
	}
	if f.recoverOnRefresh {
		f.profileErr = nil
	}
	return f.expiresAt, nil
}

func (f *fakeAuthAPI) Profile(_ context.Context) (domain.User, error) {
	atomic.AddInt32(&f.profileCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return domain.User{}, f.profileErr
	}
	return f.user, nil
}

type fakePathStore struct {
	mu   sync.Mutex
	path string
	has  bool
}

func (f *fakePathStore) SaveIntendedPath(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path, f.has = p, true
}

func (f *fakePathStore) TakeIntendedPath() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return "", false
	}
	p := f.path
	f.path, f.has = "", false
	return p, true
}

type fakeSync struct {
	mu       sync.Mutex
	sent     []domain.Event
	handlers map[domain.EventType][]func(domain.Event)
}

func newFakeSync() *fakeSync {
	return &fakeSync{handlers: make(map[domain.EventType][]func(domain.Event))}
}

func (f *fakeSync) Broadcast(t domain.EventType, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, domain.Event{Type: t, Data: data, Timestamp: time.Now()})
}

func (f *fakeSync) Subscribe(t domain.EventType, handler func(domain.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[t] = append(f.handlers[t], handler)
	return func() {}
}

// deliver 模擬另一個分頁送來的事件
func (f *fakeSync) deliver(ev domain.Event) {
	f.mu.Lock()
	hs := append([]func(domain.Event){}, f.handlers[ev.Type]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeSync) sentOfType(t domain.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.sent {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fakeNav struct {
	mu      sync.Mutex
	current string
	visited []string
}

func (f *fakeNav) CurrentPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeNav) Navigate(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = path
	f.visited = append(f.visited, path)
}

func (f *fakeNav) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.visited) == 0 {
		return ""
	}
	return f.visited[len(f.visited)-1]
}

type fakeNotify struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (f *fakeNotify) Info(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = append(f.infos, msg)
}

func (f *fakeNotify) Warn(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warns = append(f.warns, msg)
}

type managerFixture struct {
	m      *Manager
	api    *fakeAuthAPI
	store  *countingStore
	paths  *fakePathStore
	sync   *fakeSync
	nav    *fakeNav
	notify *fakeNotify
}

func newFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		api:    &fakeAuthAPI{user: domain.User{ID: "u-1", Email: "ops@example.com", Role: domain.RoleAdmin}},
		store:  &countingStore{},
		paths:  &fakePathStore{},
		sync:   newFakeSync(),
		nav:    &fakeNav{current: "/dashboard"},
		notify: &fakeNotify{},
	}
	cfg := defaultTestSessionConfig()
	f.m = NewManager(Deps{
		Config: cfg,
		API:    f.api,
		Store:  f.store,
		Paths:  f.paths,
		Sync:   f.sync,
		Nav:    f.nav,
		Notify: f.notify,
	})
	t.Cleanup(f.m.Close)
	return f
}

func TestManager_LoginEstablishesSession(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)

	err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	st := f.m.State()
	if !st.IsAuthenticated || st.User == nil || st.User.ID != "u-1" {
		t.Fatalf("unexpected state after login: %+v", st)
	}
	if _, ok := f.store.GetSession(); !ok {
		t.Error("expected session persisted")
	}
	if f.sync.sentOfType(domain.EventLogin) != 1 {
		t.Error("expected login broadcast to other tabs")
	}
	if f.nav.last() != "/dashboard" {
		t.Errorf("expected redirect to default route, got %q", f.nav.last())
	}
}

func TestManager_LoginRedirectsToIntendedPath(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	f.paths.SaveIntendedPath("/orders/42")

	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.nav.last() != "/orders/42" {
		t.Errorf("expected redirect to saved path, got %q", f.nav.last())
	}
	if _, ok := f.paths.TakeIntendedPath(); ok {
		t.Error("intended path must be consumed on use")
	}
}

func TestManager_LoginFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.api.loginErr = errors.New("invalid credentials")

	err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if st := f.m.State(); st.IsAuthenticated {
		t.Error("failed login must not authenticate")
	}
	if _, ok := f.store.GetSession(); ok {
		t.Error("failed login must not persist a session")
	}
	if f.sync.sentOfType(domain.EventLogin) != 0 {
		t.Error("failed login must not broadcast")
	}
}

func TestManager_LogoutClearsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	if err := f.m.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if st := f.m.State(); st.IsAuthenticated || st.User != nil {
		t.Errorf("expected unauthenticated state, got %+v", st)
	}
	if _, ok := f.store.GetSession(); ok {
		t.Error("expected session cleared")
	}
	if f.sync.sentOfType(domain.EventLogout) != 1 {
		t.Error("expected one logout broadcast")
	}
	if f.nav.last() != "/login" {
		t.Errorf("expected redirect to login, got %q", f.nav.last())
	}
	if atomic.LoadInt32(&f.api.logoutCalls) != 1 {
		t.Error("expected remote logout call")
	}
}

func TestManager_RemoteLogoutIsIdempotentAndSilent(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	broadcastsBefore := f.sync.sentOfType(domain.EventLogout)

	// 另一個分頁登出；本分頁清狀態、轉址，但不得再廣播也不得再打遠端
	f.sync.deliver(domain.Event{Type: domain.EventLogout, Origin: "other-tab"})

	if st := f.m.State(); st.IsAuthenticated {
		t.Error("remote logout must clear local state")
	}
	if f.nav.last() != "/login" {
		t.Errorf("expected redirect to login, got %q", f.nav.last())
	}
	if f.sync.sentOfType(domain.EventLogout) != broadcastsBefore {
		t.Error("remote logout must not rebroadcast")
	}
	if atomic.LoadInt32(&f.api.logoutCalls) != 0 {
		t.Error("remote logout must not call the backend again")
	}

	// 重複送達也安全
	f.sync.deliver(domain.Event{Type: domain.EventLogout, Origin: "other-tab"})
	if n := atomic.LoadInt32(&f.store.cleared); n < 2 {
		t.Errorf("expected clear on each delivery (idempotent), got %d", n)
	}
}

func TestManager_InitializeSkipsOnLoginRoute(t *testing.T) {
	f := newFixture(t)
	f.nav.current = "/login"

	f.m.Initialize(context.Background())

	if atomic.LoadInt32(&f.api.profileCalls) != 0 {
		t.Error("validation must be skipped on the login route")
	}
	if st := f.m.State(); st.IsLoading {
		t.Error("loading must settle even when skipped")
	}
}

func TestManager_RemoteLoginBypassesLoginRouteSkip(t *testing.T) {
	f := newFixture(t)
	f.nav.current = "/login"
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	f.store.SaveSession(domain.Info{ExpiresAt: f.api.expiresAt, LastActivity: time.Now()})

	f.m.Initialize(context.Background())
	if f.m.State().IsAuthenticated {
		t.Fatal("precondition: skipped initialize must not authenticate")
	}

	// 其他分頁登入 → 即使本分頁在登入頁也重新驗證
	f.sync.deliver(domain.Event{Type: domain.EventLogin, Origin: "other-tab"})

	if atomic.LoadInt32(&f.api.profileCalls) == 0 {
		t.Error("remote login must force validation")
	}
	if st := f.m.State(); !st.IsAuthenticated {
		t.Errorf("expected authenticated after remote login, got %+v", st)
	}
}

func TestManager_InitializeRecoversViaRefresh(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	f.api.profileErr = api.ErrUnauthorized
	f.api.recoverOnRefresh = true

	// Profile 401 → refresh 成功 → 重驗通過
	f.m.Initialize(context.Background())

	if atomic.LoadInt32(&f.api.refreshCalls) != 1 {
		t.Errorf("expected one recovery refresh, got %d", f.api.refreshCalls)
	}
	if atomic.LoadInt32(&f.api.profileCalls) != 2 {
		t.Errorf("expected re-validation after refresh, got %d profile calls", f.api.profileCalls)
	}
	if st := f.m.State(); !st.IsAuthenticated {
		t.Errorf("expected authenticated after recovery, got %+v", st)
	}
}

func TestManager_InitializeFailureSettlesUnauthenticated(t *testing.T) {
	f := newFixture(t)
	f.api.profileErr = api.ErrUnauthorized
	f.api.refreshErr = api.ErrUnauthorized

	f.m.Initialize(context.Background())

	st := f.m.State()
	if st.IsAuthenticated || st.IsLoading {
		t.Errorf("expected settled unauthenticated state, got %+v", st)
	}
}

func TestManager_CheckSessionInactivityLogout(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	// 最後活動在 31 分鐘前，非 remember-me → 強制登出
	f.store.SaveSession(domain.Info{
		ExpiresAt:    now.Add(30 * time.Minute),
		LastActivity: now.Add(-31 * time.Minute),
	})
	f.m.now = func() time.Time { return now }
	f.m.checkSession()

	if st := f.m.State(); st.IsAuthenticated {
		t.Error("expected inactivity logout")
	}
	if len(f.notify.warns) == 0 {
		t.Error("expected a logout reason shown to the user")
	}
	if f.nav.last() != "/login" {
		t.Errorf("expected redirect to login, got %q", f.nav.last())
	}
}

func TestManager_CheckSessionRememberMeIgnoresInactivity(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw", RememberMe: true}); err != nil {
		t.Fatal(err)
	}

	f.store.SaveSession(domain.Info{
		ExpiresAt:    now.Add(30 * time.Minute),
		LastActivity: now.Add(-2 * time.Hour),
		RememberMe:   true,
	})
	f.m.now = func() time.Time { return now }
	f.m.checkSession()

	if st := f.m.State(); !st.IsAuthenticated {
		t.Error("remember-me session must survive inactivity")
	}
}

func TestManager_CheckSessionShowsWarningInWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	expiresAt := now.Add(3 * time.Minute) // 警告區間內（5 分鐘前）
	f.store.SaveSession(domain.Info{ExpiresAt: expiresAt, LastActivity: now})
	f.m.now = func() time.Time { return now }
	f.m.checkSession()

	w := f.m.SessionWarning()
	if !w.Show {
		t.Fatal("expected warning shown inside the window")
	}
	if w.TimeRemaining <= 0 || w.TimeRemaining > 3*time.Minute {
		t.Errorf("unexpected remaining time %v", w.TimeRemaining)
	}
	if f.m.State().IsAuthenticated != true {
		t.Error("warning must not log the user out")
	}
}

func TestManager_CheckSessionProactiveRefreshWhenActive(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	refreshesBefore := atomic.LoadInt32(&f.api.refreshCalls)

	// 到期剩 8 分鐘（< 10 分鐘門檻、> 5 分鐘警告），且剛有活動 → 靜默 refresh
	f.store.SaveSession(domain.Info{ExpiresAt: now.Add(8 * time.Minute), LastActivity: now})
	f.m.monitor.Touch(now)
	f.m.now = func() time.Time { return now }
	f.m.checkSession()

	waitFor(t, 500*time.Millisecond, func() bool {
		return atomic.LoadInt32(&f.api.refreshCalls) > refreshesBefore
	}, "expected a silent refresh")

	if w := f.m.SessionWarning(); w.Show {
		t.Error("silent refresh must not surface a warning")
	}
}

func TestManager_CheckSessionNoRefreshWhenIdleWithoutRememberMe(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	refreshesBefore := atomic.LoadInt32(&f.api.refreshCalls)

	// 剩 8 分鐘但最後活動在 5 分鐘前（超出活動視窗）→ 放著讓它走向警告
	f.store.SaveSession(domain.Info{ExpiresAt: now.Add(8 * time.Minute), LastActivity: now.Add(-5 * time.Minute)})
	f.m.monitor.mu.Lock()
	f.m.monitor.lastActivity = now.Add(-5 * time.Minute)
	f.m.monitor.mu.Unlock()
	f.m.now = func() time.Time { return now }
	f.m.checkSession()

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&f.api.refreshCalls) != refreshesBefore {
		t.Error("idle non-remember-me session must not be silently refreshed")
	}
}

func TestManager_ExtendSessionSuccess(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	f.store.SaveSession(domain.Info{ExpiresAt: now.Add(2 * time.Minute), LastActivity: now})
	f.m.now = func() time.Time { return now }
	f.m.checkSession()
	if !f.m.SessionWarning().Show {
		t.Fatal("precondition: warning shown")
	}

	newExpiry := now.Add(45 * time.Minute)
	f.api.mu.Lock()
	f.api.expiresAt = newExpiry
	f.api.mu.Unlock()

	if err := f.m.ExtendSession(context.Background()); err != nil {
		t.Fatalf("extend: %v", err)
	}

	if w := f.m.SessionWarning(); w.Show {
		t.Error("warning must clear after extension")
	}
	if st := f.m.State(); !st.SessionExpiresAt.Equal(newExpiry) {
		t.Errorf("expected new expiry adopted, got %v", st.SessionExpiresAt)
	}
	if info, ok := f.store.GetSession(); !ok || !info.ExpiresAt.Equal(newExpiry) {
		t.Error("expected new expiry persisted")
	}
	if f.sync.sentOfType(domain.EventRefresh) == 0 {
		t.Error("expected refresh broadcast to other tabs")
	}
	if len(f.notify.infos) == 0 {
		t.Error("expected extension confirmation")
	}
}

func TestManager_ExtendSessionFailureForcesLogout(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	f.api.mu.Lock()
	f.api.refreshErr = errors.New("refresh token revoked")
	f.api.mu.Unlock()

	if err := f.m.ExtendSession(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := f.m.State(); st.IsAuthenticated {
		t.Error("failed extension must force logout")
	}
	if f.nav.last() != "/login" {
		t.Errorf("expected redirect to login, got %q", f.nav.last())
	}
}

func TestManager_DismissWarningHidesWithoutExtending(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	refreshesBefore := atomic.LoadInt32(&f.api.refreshCalls)

	expiresAt := now.Add(2 * time.Minute)
	f.store.SaveSession(domain.Info{ExpiresAt: expiresAt, LastActivity: now})
	f.m.now = func() time.Time { return now }
	f.m.checkSession()

	f.m.DismissWarning()

	if f.m.SessionWarning().Show {
		t.Error("dismiss must hide the warning")
	}
	if atomic.LoadInt32(&f.api.refreshCalls) != refreshesBefore {
		t.Error("dismiss must not refresh")
	}
	if info, _ := f.store.GetSession(); !info.ExpiresAt.Equal(expiresAt) {
		t.Error("dismiss must not change the expiry")
	}

	// 到期後的下一次檢查仍然強制登出
	f.m.now = func() time.Time { return expiresAt.Add(time.Second) }
	f.m.checkSession()
	if f.m.State().IsAuthenticated {
		t.Error("expired session must log out even after dismissal")
	}
}

func TestManager_LogoutSavesCurrentPathBeforeRedirect(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	f.nav.current = "/orders/42"

	if err := f.m.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// 登出前所在的頁面要留下來，下次登入直接回去
	p, ok := f.paths.TakeIntendedPath()
	if !ok || p != "/orders/42" {
		t.Fatalf("expected pre-logout path saved, got %q ok=%v", p, ok)
	}
	if f.nav.last() != "/login" {
		t.Errorf("expected redirect to login, got %q", f.nav.last())
	}
}

func TestManager_WarningCountdownForcesLogoutAtZero(t *testing.T) {
	f := newFixture(t)
	f.api.expiresAt = time.Now().Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	// 到期在 1.2 秒後：檢查顯示警告，之後由倒數自己走到歸零
	f.store.SaveSession(domain.Info{
		ExpiresAt:    time.Now().Add(1200 * time.Millisecond),
		LastActivity: time.Now(),
	})
	f.m.checkSession()
	if !f.m.SessionWarning().Show {
		t.Fatal("precondition: warning shown")
	}

	waitFor(t, 4*time.Second, func() bool {
		return !f.m.State().IsAuthenticated
	}, "expected the countdown to force logout at zero")

	if f.m.SessionWarning().Show {
		t.Error("warning must clear when the countdown ends")
	}
	if f.nav.last() != "/login" {
		t.Errorf("expected redirect to login, got %q", f.nav.last())
	}
	if len(f.notify.warns) == 0 {
		t.Error("expected a logout reason shown to the user")
	}
}

func TestManager_RemoteRefreshAdoptsStoredExpiry(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(10 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}
	refreshesBefore := atomic.LoadInt32(&f.api.refreshCalls)

	// 另一個分頁 refresh 後把新到期時間寫進共享 store 再廣播
	newExpiry := now.Add(45 * time.Minute)
	f.store.SaveSession(domain.Info{ExpiresAt: newExpiry, LastActivity: now})
	f.sync.deliver(domain.Event{Type: domain.EventRefresh, Origin: "other-tab"})

	if st := f.m.State(); !st.SessionExpiresAt.Equal(newExpiry) {
		t.Errorf("expected stored expiry adopted, got %v", st.SessionExpiresAt)
	}
	if atomic.LoadInt32(&f.api.refreshCalls) != refreshesBefore {
		t.Error("adopting a remote refresh must not hit the network")
	}
	if f.sync.sentOfType(domain.EventRefresh) != 0 {
		t.Error("adopting a remote refresh must not rebroadcast")
	}
}

func TestManager_CloseStopsBackgroundWork(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.api.expiresAt = now.Add(30 * time.Minute)
	if err := f.m.Login(context.Background(), Credentials{Email: "ops@example.com", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	f.m.Close()

	// Close 後活動事件不再寫 store
	updatesBefore := atomic.LoadInt32(&f.store.activityUpdates)
	f.m.RecordActivity()
	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&f.store.activityUpdates) != updatesBefore {
		t.Error("activity after Close must be ignored")
	}
}

func defaultTestSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TTL:               30 * time.Minute,
		WarningBefore:     5 * time.Minute,
		RefreshBuffer:     2 * time.Minute,
		RefreshThreshold:  10 * time.Minute,
		InactivityTimeout: 30 * time.Minute,
		CheckInterval:     time.Hour, // 測試直接呼叫 checkSession，不靠 ticker
		ActivityWindow:    time.Minute,
		Debounce:          20 * time.Millisecond,
		LoginRoute:        "/login",
		DefaultRoute:      "/dashboard",
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
