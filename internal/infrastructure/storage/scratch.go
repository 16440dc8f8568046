package storage

import "sync"

// Scratch 保存僅屬於本分頁（process）的一次性暫存：強制重新登入前的
// 目標路徑，以及依表單 ID 暫存的未送出表單資料。取出即清除，
// 絕不跨分頁共用。
type Scratch struct {
	mu           sync.Mutex
	intendedPath string
	hasIntended  bool
	forms        map[string][]byte
}

// NewScratch 建立空的暫存區。
func NewScratch() *Scratch {
	return &Scratch{forms: make(map[string][]byte)}
}

// SaveIntendedPath 記下重新登入後要回到的路徑，覆蓋先前的值。
func (s *Scratch) SaveIntendedPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intendedPath = path
	s.hasIntended = true
}

// TakeIntendedPath 取出並清除目標路徑。
func (s *Scratch) TakeIntendedPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasIntended {
		return "", false
	}
	p := s.intendedPath
	s.intendedPath = ""
	s.hasIntended = false
	return p, true
}

// BackupForm 依表單 ID 暫存序列化後的表單資料，覆蓋先前的備份。
func (s *Scratch) BackupForm(formID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.forms[formID] = cp
}

// TakeFormBackup 取出並清除指定表單的備份。
func (s *Scratch) TakeFormBackup(formID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.forms[formID]
	if !ok {
		return nil, false
	}
	delete(s.forms, formID)
	return data, true
}
