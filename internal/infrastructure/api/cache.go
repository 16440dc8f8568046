package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type cacheEntry struct {
	data    []byte
	fetched time.Time
}

// QueryCache 對 GET 查詢做記憶化。任何 mutation 成功後整個快取作廢，
// 對應資料層「mutation 後全面重抓」的策略。
type QueryCache struct {
	client *Client
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewQueryCache 建立查詢快取並掛上 client 的失效通知。
func NewQueryCache(client *Client, ttl time.Duration) *QueryCache {
	q := &QueryCache{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
	client.OnInvalidate(q.InvalidateAll)
	return q
}

// Get 回傳快取的查詢結果，過期或未命中時透過 client 重抓。
func (q *QueryCache) Get(ctx context.Context, path string, out any) error {
	q.mu.Lock()
	entry, ok := q.entries[path]
	fresh := ok && (q.ttl <= 0 || q.now().Sub(entry.fetched) < q.ttl)
	q.mu.Unlock()

	if fresh {
		return json.Unmarshal(entry.data, out)
	}

	var raw json.RawMessage
	if err := q.client.Get(ctx, path, &raw); err != nil {
		return err
	}

	q.mu.Lock()
	q.entries[path] = cacheEntry{data: raw, fetched: q.now()}
	q.mu.Unlock()

	return json.Unmarshal(raw, out)
}

// InvalidateAll 清空整個快取。
func (q *QueryCache) InvalidateAll() {
	q.mu.Lock()
	q.entries = make(map[string]cacheEntry)
	q.mu.Unlock()
}

// Len 回傳目前快取筆數（測試用）。
func (q *QueryCache) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
