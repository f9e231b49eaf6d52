package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError 非 2xx 响应，消息中带 HTTP 状态文本
// StatusError is a non-2xx response; its message carries the HTTP status text
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	status := strings.TrimSpace(e.Status)
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Body == "" {
		return fmt.Sprintf("%s failed: %s", e.Op, status)
	}
	return fmt.Sprintf("%s failed: %s (%s)", e.Op, status, e.Body)
}

// TransportError 网络层失败（连接、超时、响应解析）
// TransportError is a network-level failure (connect, timeout, decode)
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport 判断错误是否来自网关传输（网络失败或非 2xx）
// IsTransport reports whether err came from the gateway transport (network failure or non-2xx)
func IsTransport(err error) bool {
	var statusErr *StatusError
	var transportErr *TransportError
	return errors.As(err, &statusErr) || errors.As(err, &transportErr)
}
