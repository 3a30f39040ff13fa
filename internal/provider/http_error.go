package provider

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx（且不是 404/410）的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// NotFoundError 表示条目不存在：HTTP 404/410，或页面中没有视频元素。
// 这是驱动循环唯一“可继续”的失败。
type NotFoundError struct {
	URL    string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "item not found"
	}
	return "item not found: " + strings.TrimSpace(e.Reason)
}

// IsNotFound 判断 err 链中是否有 *NotFoundError。
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// BlockedError 表示请求被引导到了登录页（Lumiere 需要校园认证时会跳转 CAS）。
// 不尝试绕过，直接视为网络失败，让用户配置代理/网络环境。
type BlockedError struct {
	URL    string
	Reason string // 例如 "login"
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	if strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}
