package session

import "time"

// Info 紀錄單一 origin 的 session 中繼資料，跨分頁（process）共用。
type Info struct {
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	RememberMe   bool      `json:"remember_me"`
}

// Expired 檢查 session 是否已過期（now >= ExpiresAt 視為過期）。
func (i Info) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// ExpiringSoon 檢查是否進入到期前警告區間：0 < ExpiresAt-now <= warn。
func (i Info) ExpiringSoon(now time.Time, warn time.Duration) bool {
	remain := i.ExpiresAt.Sub(now)
	return remain > 0 && remain <= warn
}

// Inactive 檢查距離最後活動是否超過閒置門檻。
func (i Info) Inactive(now time.Time, threshold time.Duration) bool {
	return now.Sub(i.LastActivity) > threshold
}

// Store 提供 session 中繼資料與使用者快照的共用持久化。
// 實作不回傳錯誤：儲存層不可用時靜默降級為「沒有 session」，
// 絕不讓呼叫端因此失敗。
type Store interface {
	SaveSession(info Info)
	GetSession() (Info, bool)
	ClearSession()
	UpdateLastActivity(now time.Time)
	SaveUser(u User)
	GetUser() (User, bool)
}
