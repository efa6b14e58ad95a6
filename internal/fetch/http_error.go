package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// HTTPStatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Error 是 fetch 阶段的可追溯错误。
// Code 固定为 domain.ErrCodeRequestFailed / ErrCodeResolutionFailed / ErrCodeTransferFailed 之一，
// 上层据此归类并写入错误日志。
type Error struct {
	Stage string // "resolve" 或 "transfer"
	Code  string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage=%s: %s", e.Stage, e.Code)
	}
	return fmt.Sprintf("stage=%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Humanize 把底层错误转成一行可读说明（不含 URL：签名链接很长且带凭据）。
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Err != nil {
		err = fe.Err
	}

	var hs *HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("HTTP %d（可能触发限流或链接已过期）。建议调大 --spacing 后重试。", hs.StatusCode)
		case 404:
			return "HTTP 404（资源不存在或链接已失效）。"
		default:
			return fmt.Sprintf("HTTP %d。", hs.StatusCode)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return "请求超时。建议检查网络/代理，或调大 timeout_sec。"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		// url.Error 的文本会带上完整 URL，这里只保留底层原因。
		return ue.Op + ": " + ue.Err.Error()
	}
	return err.Error()
}
