package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"commerce-admin-session/internal/domain/session"

	"github.com/redis/go-redis/v9"
)

// RedisTransport 以 Redis pub/sub 作為主要的跨 process 廣播通道。
type RedisTransport struct {
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	events  chan session.Event
}

// NewRedisTransport 訂閱 origin 專屬頻道並啟動接收。
// 連線失敗時回傳錯誤，呼叫端應改用 spool fallback。
func NewRedisTransport(client *redis.Client, origin string) (*RedisTransport, error) {
	ctx := context.Background()
	channel := fmt.Sprintf("admin-session:%s", origin)

	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	t := &RedisTransport{
		client:  client,
		channel: channel,
		sub:     sub,
		events:  make(chan session.Event, 16),
	}
	go t.pump()
	return t, nil
}

// Publish 發布事件到共用頻道。
func (t *RedisTransport) Publish(ev session.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.client.Publish(context.Background(), t.channel, data).Err()
}

// Events 回傳接收事件的 channel；Close 之後會被關閉。
func (t *RedisTransport) Events() <-chan session.Event {
	return t.events
}

// Close 取消訂閱並停止接收。
func (t *RedisTransport) Close() error {
	return t.sub.Close()
}

func (t *RedisTransport) pump() {
	defer close(t.events)
	for msg := range t.sub.Channel() {
		var ev session.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("[Sync] drop malformed event: %v", err)
			continue
		}
		t.events <- ev
	}
}
