package bridge

import "sync"

// Router 持有 UI 的路由狀態：UI 透過 bridge 回報目前路徑，
// session 管理端要求的轉址則記在待取清單，由 UI 下次輪詢取走。
type Router struct {
	mu      sync.Mutex
	current string
	pending []string
}

// NewRouter 建立路由狀態，initial 為啟動時的路徑。
func NewRouter(initial string) *Router {
	return &Router{current: initial}
}

// CurrentPath 回傳 UI 最後回報的路徑。
func (r *Router) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate 指示 UI 轉址；立即更新目前路徑，避免後續判斷
// 仍看到舊路徑。
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = path
	r.pending = append(r.pending, path)
}

// Report 由 UI 回報使用者實際所在的路徑。
func (r *Router) Report(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = path
}

// TakePending 取出並清空待執行的轉址指示。
func (r *Router) TakePending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// Notice 一則要顯示給使用者的訊息。
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NoticeBoard 收集要顯示的訊息，UI 輪詢時一次領走。
type NoticeBoard struct {
	mu      sync.Mutex
	notices []Notice
}

// NewNoticeBoard 建立空的訊息板。
func NewNoticeBoard() *NoticeBoard {
	return &NoticeBoard{}
}

// Info 加入一般訊息。
func (b *NoticeBoard) Info(msg string) { b.add("info", msg) }

// Warn 加入警告訊息。
func (b *NoticeBoard) Warn(msg string) { b.add("warning", msg) }

func (b *NoticeBoard) add(level, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, Notice{Level: level, Message: msg})
}

// Drain 取出並清空所有訊息。
func (b *NoticeBoard) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	return out
}
