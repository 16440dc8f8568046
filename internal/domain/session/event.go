package session

import "time"

// EventType 定義跨分頁事件種類。
type EventType string

const (
	EventLogin    EventType = "login"
	EventLogout   EventType = "logout"
	EventRefresh  EventType = "session_refresh"
	EventActivity EventType = "activity"
)

// Event 跨分頁廣播的訊息。Origin 為發送端的 process 識別碼，
// 傳輸層用它過濾「自己發出的事件」。
type Event struct {
	Type      EventType         `json:"type"`
	Origin    string            `json:"origin"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}
