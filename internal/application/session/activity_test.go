package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "commerce-admin-session/internal/domain/session"
)

type countingStore struct {
	mu              sync.Mutex
	session         *domain.Info
	user            *domain.User
	activityUpdates int32
	cleared         int32
}

func (s *countingStore) SaveSession(info domain.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &info
}

func (s *countingStore) GetSession() (domain.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return domain.Info{}, false
	}
	return *s.session, true
}

func (s *countingStore) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	atomic.AddInt32(&s.cleared, 1)
}

func (s *countingStore) UpdateLastActivity(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.AddInt32(&s.activityUpdates, 1)
	if s.session != nil {
		s.session.LastActivity = now
	}
}

func (s *countingStore) SaveUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

func (s *countingStore) GetUser() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func TestActivityMonitor_DebouncesBursts(t *testing.T) {
	store := &countingStore{}
	m := NewActivityMonitor(store, 30*time.Millisecond)
	m.Start(nil)
	defer m.Stop()

	// 連發 100 筆事件，視窗內全部合併成一次寫入
	for i := 0; i < 100; i++ {
		m.Observe()
	}

	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&store.activityUpdates); n != 1 {
		t.Fatalf("expected one store write for the burst, got %d", n)
	}

	// 新視窗的事件才會再寫一次
	m.Observe()
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&store.activityUpdates); n != 2 {
		t.Fatalf("expected a second write after the window, got %d", n)
	}
}

func TestActivityMonitor_StopDropsPendingFlush(t *testing.T) {
	store := &countingStore{}
	m := NewActivityMonitor(store, 30*time.Millisecond)
	m.Start(nil)

	m.Observe()
	m.Stop()

	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&store.activityUpdates); n != 0 {
		t.Fatalf("expected no writes after Stop, got %d", n)
	}

	// 停止後的事件被忽略
	m.Observe()
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&store.activityUpdates); n != 0 {
		t.Fatalf("expected observes after Stop ignored, got %d writes", n)
	}
}

func TestActivityMonitor_TouchUpdatesMemoryOnly(t *testing.T) {
	store := &countingStore{}
	m := NewActivityMonitor(store, 30*time.Millisecond)
	m.Start(nil)
	defer m.Stop()

	remote := time.Now().Add(time.Minute)
	m.Touch(remote)

	if atomic.LoadInt32(&store.activityUpdates) != 0 {
		t.Error("Touch must not write the store")
	}
	if since := m.TimeSinceLastActivity(); since > 0 {
		t.Errorf("expected last activity in the future, got %v ago", since)
	}

	// 比目前紀錄舊的時間戳不會倒退
	m.Touch(remote.Add(-2 * time.Minute))
	if since := m.TimeSinceLastActivity(); since > 0 {
		t.Errorf("stale touch must not rewind last activity, got %v ago", since)
	}
}

func TestActivityMonitor_CallbackFiresOncePerWindow(t *testing.T) {
	store := &countingStore{}
	m := NewActivityMonitor(store, 30*time.Millisecond)

	var fired int32
	m.Start(func() { atomic.AddInt32(&fired, 1) })
	defer m.Stop()

	for i := 0; i < 10; i++ {
		m.Observe()
	}
	time.Sleep(100 * time.Millisecond)

	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expected callback once per window, got %d", n)
	}
}
