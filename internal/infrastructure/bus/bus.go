package bus

import (
	"log"
	"sync"
	"time"

	"commerce-admin-session/internal/domain/session"
)

// Transport 負責把事件送到同 origin 的其他 process 並接收對方的事件。
// 傳遞為 best-effort、at-least-once，不保證跨 process 的順序。
type Transport interface {
	Publish(ev session.Event) error
	Events() <-chan session.Event
	Close() error
}

// Synchronizer 在同 origin 的所有 process 之間同步 session 事件，
// 對應瀏覽器分頁間的廣播。transport 為 nil 時（無 Redis、無 spool
// 目錄可用）所有操作皆為 no-op。
type Synchronizer struct {
	origin    string
	transport Transport

	mu       sync.Mutex
	handlers map[session.EventType]map[int]func(session.Event)
	nextID   int

	now func() time.Time
}

// New 建立 Synchronizer 並開始接收事件。
func New(origin string, transport Transport) *Synchronizer {
	s := &Synchronizer{
		origin:    origin,
		transport: transport,
		handlers:  make(map[session.EventType]map[int]func(session.Event)),
		now:       time.Now,
	}
	if transport != nil {
		go s.receiveLoop()
	}
	return s
}

// Broadcast 對其他 process 發布事件。發送端不會收到自己的事件，
// 這是刻意比照儲存層事件的平台行為，不是缺陷。
func (s *Synchronizer) Broadcast(t session.EventType, data map[string]string) {
	if s.transport == nil {
		return
	}
	ev := session.Event{
		Type:      t,
		Origin:    s.origin,
		Timestamp: s.now(),
		Data:      data,
	}
	if err := s.transport.Publish(ev); err != nil {
		log.Printf("[Sync] broadcast %s failed: %v", t, err)
	}
}

// Subscribe 註冊事件處理函式，回傳取消註冊的函式。
// 同一事件種類可以有多個訂閱者（fan-out）。
func (s *Synchronizer) Subscribe(t session.EventType, handler func(session.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers[t] == nil {
		s.handlers[t] = make(map[int]func(session.Event))
	}
	id := s.nextID
	s.nextID++
	s.handlers[t][id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[t], id)
	}
}

// Close 關閉底層傳輸。
func (s *Synchronizer) Close() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

func (s *Synchronizer) receiveLoop() {
	for ev := range s.transport.Events() {
		// Redis pub/sub 會把訊息送回發送端，這裡統一過濾
		if ev.Origin == s.origin {
			continue
		}
		s.dispatch(ev)
	}
}

func (s *Synchronizer) dispatch(ev session.Event) {
	s.mu.Lock()
	hs := make([]func(session.Event), 0, len(s.handlers[ev.Type]))
	for _, h := range s.handlers[ev.Type] {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
