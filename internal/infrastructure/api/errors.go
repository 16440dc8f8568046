package api

import (
	"errors"
	"fmt"
)

// ErrNetwork 包裝沒有收到任何回應的傳輸層錯誤；不影響登入狀態。
var ErrNetwork = errors.New("network error")

// ErrUnauthorized 表示 401 且 refresh 也失敗的終局驗證錯誤，
// 呼叫端（orchestrator）收到後應強制登出。
var ErrUnauthorized = errors.New("unauthorized")

// Error 對應後端回傳的結構化錯誤，欄位驗證錯誤原樣透傳給呼叫端。
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// IsAuthError 檢查錯誤是否為驗證類（401 或終局 unauthorized）。
func IsAuthError(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == 401
}
