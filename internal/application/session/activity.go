package session

import (
	"sync"
	"time"

	domain "commerce-admin-session/internal/domain/session"
)

// ActivityMonitor 偵測使用者活動以支援閒置登出。原始互動事件經過
// 去抖動合併，每個視窗最多寫入一次 store——這是整個子系統唯一的
// 節流機制。
type ActivityMonitor struct {
	store    domain.Store
	debounce time.Duration

	mu           sync.Mutex
	started      bool
	timer        *time.Timer
	lastActivity time.Time
	onActivity   func()

	now func() time.Time
}

// NewActivityMonitor 建立活動監測器。
func NewActivityMonitor(store domain.Store, debounce time.Duration) *ActivityMonitor {
	if debounce <= 0 {
		debounce = time.Second
	}
	return &ActivityMonitor{
		store:    store,
		debounce: debounce,
		now:      time.Now,
	}
}

// Start 開始接收活動事件；重複呼叫沒有額外效果。
// onActivity 在每次去抖動後的活動記錄時被呼叫（可為 nil），
// 呼叫端用它把活動廣播給其他分頁。
func (m *ActivityMonitor) Start(onActivity func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.onActivity = onActivity
	m.lastActivity = m.now()
}

// Stop 停止接收、清掉未觸發的 timer 並釋放 callback。
func (m *ActivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.onActivity = nil
}

// Observe 接收一筆原始互動事件。視窗內的事件會合併，
// 視窗結束時才記錄一次活動。
func (m *ActivityMonitor) Observe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.flush)
}

// Touch 只更新記憶體中的最後活動時間，不寫 store。
// 用於其他分頁廣播過來的活動事件（store 已由來源分頁更新）。
func (m *ActivityMonitor) Touch(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.After(m.lastActivity) {
		m.lastActivity = at
	}
}

// TimeSinceLastActivity 回傳距離最後活動的時間。
func (m *ActivityMonitor) TimeSinceLastActivity() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastActivity)
}

// IsInactive 檢查是否超過閒置門檻。
func (m *ActivityMonitor) IsInactive(threshold time.Duration) bool {
	return m.TimeSinceLastActivity() > threshold
}

func (m *ActivityMonitor) flush() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	now := m.now()
	m.lastActivity = now
	cb := m.onActivity
	m.mu.Unlock()

	m.store.UpdateLastActivity(now)
	if cb != nil {
		cb()
	}
}
