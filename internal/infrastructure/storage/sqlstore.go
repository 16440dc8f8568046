package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"commerce-admin-session/internal/domain/session"
)

// SQLStore 以 PostgreSQL 單列保存 origin 的 session 狀態。
// 同 origin 的多個 process 併發寫入採 last-write-wins，這是
// 設計上接受的取捨。所有錯誤記錄後靜默降級為「沒有 session」。
type SQLStore struct {
	db     *sql.DB
	origin string
}

// NewSQLStore 建立 PostgreSQL 型 store。origin 為共用狀態的範圍鍵
//（對應瀏覽器的同源範圍）。
func NewSQLStore(db *sql.DB, origin string) *SQLStore {
	return &SQLStore{db: db, origin: origin}
}

// SaveSession 寫入 session 中繼資料，保留既有的使用者快照。
func (s *SQLStore) SaveSession(info session.Info) {
	const q = `
INSERT INTO admin_sessions (origin, expires_at, last_activity, remember_me, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (origin) DO UPDATE
SET expires_at = EXCLUDED.expires_at,
    last_activity = EXCLUDED.last_activity,
    remember_me = EXCLUDED.remember_me,
    updated_at = NOW();
`
	if _, err := s.db.ExecContext(context.Background(), q, s.origin, info.ExpiresAt, info.LastActivity, info.RememberMe); err != nil {
		log.Printf("[Store] save session failed: %v", err)
	}
}

// GetSession 讀取 session 中繼資料；查無資料或發生錯誤時回傳 false。
func (s *SQLStore) GetSession() (session.Info, bool) {
	const q = `
SELECT expires_at, last_activity, remember_me
FROM admin_sessions
WHERE origin = $1 AND expires_at IS NOT NULL;
`
	var info session.Info
	err := s.db.QueryRowContext(context.Background(), q, s.origin).
		Scan(&info.ExpiresAt, &info.LastActivity, &info.RememberMe)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[Store] get session failed: %v", err)
		}
		return session.Info{}, false
	}
	return info, true
}

// ClearSession 移除整列（session 與使用者快照）；重複呼叫無副作用。
func (s *SQLStore) ClearSession() {
	const q = `DELETE FROM admin_sessions WHERE origin = $1;`
	if _, err := s.db.ExecContext(context.Background(), q, s.origin); err != nil {
		log.Printf("[Store] clear session failed: %v", err)
	}
}

// UpdateLastActivity 只更新最後活動時間；沒有 session 時為 no-op。
func (s *SQLStore) UpdateLastActivity(now time.Time) {
	const q = `UPDATE admin_sessions SET last_activity = $2, updated_at = NOW() WHERE origin = $1;`
	if _, err := s.db.ExecContext(context.Background(), q, s.origin, now); err != nil {
		log.Printf("[Store] update last activity failed: %v", err)
	}
}

// SaveUser 寫入使用者快照（JSON 欄位）。
func (s *SQLStore) SaveUser(u session.User) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Printf("[Store] marshal user failed: %v", err)
		return
	}
	const q = `
INSERT INTO admin_sessions (origin, user_snapshot, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (origin) DO UPDATE
SET user_snapshot = EXCLUDED.user_snapshot, updated_at = NOW();
`
	if _, err := s.db.ExecContext(context.Background(), q, s.origin, data); err != nil {
		log.Printf("[Store] save user failed: %v", err)
	}
}

// GetUser 讀取使用者快照。
func (s *SQLStore) GetUser() (session.User, bool) {
	const q = `SELECT user_snapshot FROM admin_sessions WHERE origin = $1 AND user_snapshot IS NOT NULL;`
	var data []byte
	err := s.db.QueryRowContext(context.Background(), q, s.origin).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[Store] get user failed: %v", err)
		}
		return session.User{}, false
	}
	var u session.User
	if err := json.Unmarshal(data, &u); err != nil {
		log.Printf("[Store] unmarshal user failed: %v", err)
		return session.User{}, false
	}
	return u, true
}
