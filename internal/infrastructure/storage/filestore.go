package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"commerce-admin-session/internal/domain/session"
)

// FileStore 以單一 JSON 檔保存 session 中繼資料與使用者快照，
// 供同一 origin 的多個 process 共用。寫入採 temp+rename 原子替換；
// 檔案缺失或損毀一律視為「沒有 session」，不向呼叫端回報錯誤。
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileState struct {
	Session *session.Info `json:"session,omitempty"`
	User    *session.User `json:"user,omitempty"`
}

// NewFileStore 建立檔案型 store，狀態檔位於 stateDir/session.json。
func NewFileStore(stateDir string) *FileStore {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Printf("[Store] create state dir failed, degrading to no-session: %v", err)
	}
	return &FileStore{path: filepath.Join(stateDir, "session.json")}
}

// SaveSession 寫入 session 中繼資料，保留既有的使用者快照。
func (s *FileStore) SaveSession(info session.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.read()
	st.Session = &info
	s.write(st)
}

// GetSession 讀取 session 中繼資料；不存在或損毀時回傳 false。
func (s *FileStore) GetSession() (session.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.read()
	if st.Session == nil {
		return session.Info{}, false
	}
	return *st.Session, true
}

// ClearSession 同時移除 session 與使用者快照；重複呼叫無副作用。
func (s *FileStore) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Store] clear session failed: %v", err)
	}
}

// UpdateLastActivity 只更新最後活動時間；沒有 session 時為 no-op。
func (s *FileStore) UpdateLastActivity(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.read()
	if st.Session == nil {
		return
	}
	st.Session.LastActivity = now
	s.write(st)
}

// SaveUser 寫入使用者快照。
func (s *FileStore) SaveUser(u session.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.read()
	st.User = &u
	s.write(st)
}

// GetUser 讀取使用者快照。
func (s *FileStore) GetUser() (session.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.read()
	if st.User == nil {
		return session.User{}, false
	}
	return *st.User, true
}

func (s *FileStore) read() fileState {
	var st fileState
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fileState{}
	}
	if err := json.Unmarshal(data, &st); err != nil {
		// 損毀檔案視同不存在
		return fileState{}
	}
	return st
}

func (s *FileStore) write(st fileState) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("[Store] marshal state failed: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Printf("[Store] write state failed: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("[Store] replace state failed: %v", err)
	}
}
