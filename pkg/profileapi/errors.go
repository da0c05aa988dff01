package profileapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// APIError 远端返回的非 2xx 响应
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("profile api: status %d: %s", e.Status, e.Message)
}

// StatusOf 取出错误里的 HTTP 状态码，网络错误等返回 0
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// parseErrorBody 兼容 {"message"}、{"error"}、{"error":{"message"}} 三种写法
func parseErrorBody(status int, body []byte) *APIError {
	msg := ""
	for _, path := range []string{"message", "error.message", "error"} {
		res := gjson.GetBytes(body, path)
		if res.Type == gjson.String && strings.TrimSpace(res.Str) != "" {
			msg = res.Str
			break
		}
	}

	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	return &APIError{Status: status, Message: msg}
}
