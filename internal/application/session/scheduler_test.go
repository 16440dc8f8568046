package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshScheduler_FiresBeforeExpiry(t *testing.T) {
	s := NewRefreshScheduler(50 * time.Millisecond)

	var fired int32
	ok := s.Schedule(time.Now().Add(100*time.Millisecond), func() error {
		atomic.AddInt32(&fired, 1)
		return nil
	})
	if !ok {
		t.Fatal("expected schedule to arm")
	}

	time.Sleep(120 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expected exactly one fire, got %d", n)
	}
}

func TestRefreshScheduler_RescheduleCancelsPrior(t *testing.T) {
	s := NewRefreshScheduler(10 * time.Millisecond)

	var first, second int32
	s.Schedule(time.Now().Add(60*time.Millisecond), func() error {
		atomic.AddInt32(&first, 1)
		return nil
	})
	s.Schedule(time.Now().Add(80*time.Millisecond), func() error {
		atomic.AddInt32(&second, 1)
		return nil
	})

	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&first) != 0 {
		t.Error("superseded schedule must not fire")
	}
	if atomic.LoadInt32(&second) != 1 {
		t.Errorf("active schedule fired %d times", second)
	}
}

func TestRefreshScheduler_InsideBufferReturnsFalse(t *testing.T) {
	s := NewRefreshScheduler(5 * time.Minute)

	var fired int32
	// 到期只剩 1 分鐘、緩衝 5 分鐘 → 已過觸發點
	ok := s.Schedule(time.Now().Add(time.Minute), func() error {
		atomic.AddInt32(&fired, 1)
		return nil
	})
	if ok {
		t.Fatal("expected schedule refusal inside the buffer window")
	}

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("refused schedule must not fire")
	}
}

func TestRefreshScheduler_StaleFireIsNoop(t *testing.T) {
	s := NewRefreshScheduler(10 * time.Millisecond)

	var fired int32
	s.Schedule(time.Now().Add(50*time.Millisecond), func() error {
		atomic.AddInt32(&fired, 1)
		return nil
	})

	// 模擬 timer.Stop 攔不到的在途觸發：世代一換，觸發就必須失效
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("superseded schedule ran the callback %d times", n)
	}
}

func TestRefreshScheduler_CancelIsSafeWhenUnarmed(t *testing.T) {
	s := NewRefreshScheduler(time.Minute)
	s.Cancel()
	s.Cancel()

	var fired int32
	s.Schedule(time.Now().Add(40*time.Millisecond), func() error {
		atomic.AddInt32(&fired, 1)
		return nil
	})
	s.Cancel()

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("cancelled schedule must not fire")
	}
}
