package session

import (
	"log"
	"sync"
	"time"
)

// RefreshScheduler 在到期前提前觸發一次 refresh，觸發後即失效。
type RefreshScheduler struct {
	buffer time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64

	now func() time.Time
}

// NewRefreshScheduler 建立排程器；buffer 為到期前的提前量。
func NewRefreshScheduler(buffer time.Duration) *RefreshScheduler {
	return &RefreshScheduler{buffer: buffer, now: time.Now}
}

// Schedule 取消既有排程並安排新的一次性 refresh。
// 若已進入緩衝區（delay <= 0）則不排程並回傳 false，
// 呼叫端應直接立即 refresh。onRefresh 的錯誤記錄後吞掉，
// 沒有呼叫端在等它。
func (s *RefreshScheduler) Schedule(expiresAt time.Time, onRefresh func() error) bool {
	delay := expiresAt.Sub(s.now()) - s.buffer

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm()
	if delay <= 0 {
		return false
	}

	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		// timer.Stop 攔不到已經起跑的 callback，改用世代編號擋掉過時的觸發
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			return
		}
		if err := onRefresh(); err != nil {
			log.Printf("[Scheduler] scheduled refresh failed: %v", err)
		}
	})
	return true
}

// Cancel 清掉已排程的 timer；沒有排程時也可安全呼叫。
func (s *RefreshScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarm()
}

// disarm 停掉 timer 並讓在途的觸發失效。呼叫端需持有 s.mu。
func (s *RefreshScheduler) disarm() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
