package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"commerce-admin-session/internal/domain/session"

	"github.com/google/uuid"
)

const (
	defaultSpoolPoll = 200 * time.Millisecond
	spoolStaleAfter  = 5 * time.Second
)

// SpoolTransport 是沒有 Redis 時的 fallback：事件寫成 spool 目錄下的
// 一次性 JSON 檔，其他 process 輪詢讀取。寫入端不會讀回自己的檔案，
// 比照儲存層事件只通知其他執行緒環境的平台行為。檔案在所有 process
// 有機會讀到之後（逾時 5 秒）才由輪詢端清掉。
type SpoolTransport struct {
	dir    string
	origin string
	poll   time.Duration

	events chan session.Event
	stop   chan struct{}
	wg     sync.WaitGroup

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSpoolTransport 建立 spool fallback 並啟動輪詢。
// 目錄無法建立時回傳錯誤，呼叫端應視為「無可用傳輸」。
func NewSpoolTransport(dir, origin string, poll time.Duration) (*SpoolTransport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	if poll <= 0 {
		poll = defaultSpoolPoll
	}
	t := &SpoolTransport{
		dir:    dir,
		origin: origin,
		poll:   poll,
		events: make(chan session.Event, 16),
		stop:   make(chan struct{}),
		seen:   make(map[string]struct{}),
	}
	t.wg.Add(1)
	go t.pollLoop()
	return t, nil
}

// Publish 把事件寫成 spool 檔。
func (t *SpoolTransport) Publish(ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), uuid.NewString())
	tmp := filepath.Join(t.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	// rename 之後檔案才對輪詢端可見，避免讀到寫一半的內容
	return os.Rename(tmp, filepath.Join(t.dir, name))
}

// Events 回傳接收事件的 channel；Close 之後會被關閉。
func (t *SpoolTransport) Events() <-chan session.Event {
	return t.events
}

// Close 停止輪詢。
func (t *SpoolTransport) Close() error {
	close(t.stop)
	t.wg.Wait()
	close(t.events)
	return nil
}

func (t *SpoolTransport) pollLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.scan()
		case <-t.stop:
			return
		}
	}
}

func (t *SpoolTransport) scan() {
	entries, err := filepath.Glob(filepath.Join(t.dir, "*.json"))
	if err != nil {
		log.Printf("[Sync] scan spool failed: %v", err)
		return
	}
	now := time.Now()
	present := make(map[string]struct{}, len(entries))
	for _, path := range entries {
		name := filepath.Base(path)
		present[name] = struct{}{}

		t.mu.Lock()
		_, done := t.seen[name]
		t.mu.Unlock()

		if !done {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var ev session.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Printf("[Sync] drop malformed spool file %s: %v", name, err)
			} else if ev.Origin != t.origin {
				select {
				case t.events <- ev:
				case <-t.stop:
					return
				}
			}
			t.mu.Lock()
			t.seen[name] = struct{}{}
			t.mu.Unlock()
		}

		if info, err := os.Stat(path); err == nil && now.Sub(info.ModTime()) > spoolStaleAfter {
			_ = os.Remove(path)
		}
	}

	// 已被任何 process 清掉的檔案不必再記得
	t.mu.Lock()
	for name := range t.seen {
		if _, ok := present[name]; !ok {
			delete(t.seen, name)
		}
	}
	t.mu.Unlock()
}
