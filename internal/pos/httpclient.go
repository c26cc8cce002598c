package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redeemly/internal/logger"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
	defaultRetryMax    = 2
)

// retryLogger 将 retryablehttp 日志接到 zap
type retryLogger struct {
	component string
}

func (l retryLogger) Error(msg string, kv ...interface{}) {
	logger.SW("component", l.component).Errorw("pos_http_"+msgKey(msg), kv...)
}

func (l retryLogger) Warn(msg string, kv ...interface{}) {
	logger.SW("component", l.component).Warnw("pos_http_"+msgKey(msg), kv...)
}

func (l retryLogger) Info(msg string, kv ...interface{}) {
	logger.SW("component", l.component).Debugw("pos_http_"+msgKey(msg), kv...)
}

func (l retryLogger) Debug(msg string, kv ...interface{}) {
	logger.SW("component", l.component).Debugw("pos_http_"+msgKey(msg), kv...)
}

func msgKey(msg string) string {
	msg = strings.ToLower(strings.TrimSpace(msg))
	msg = strings.NewReplacer(" ", "_", ":", "", ",", "").Replace(msg)
	if msg == "" {
		return "event"
	}
	return msg
}

// NewRetryingClient 构建用于幂等请求的重试客户端（查询、带幂等键的退款）
func NewRetryingClient(base *http.Client, component string) *http.Client {
	rc := retryablehttp.NewClient()
	if base != nil {
		rc.HTTPClient = base
	} else {
		rc.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	rc.RetryMax = defaultRetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = retryLogger{component: component}
	return rc.StandardClient()
}

// NewPlainClient 构建不重试的客户端，用于非幂等写操作
func NewPlainClient(base *http.Client) *http.Client {
	if base != nil {
		return base
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// JSONRequest JSON 请求描述
type JSONRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    interface{}
}

// DoJSON 发送 JSON 请求并返回响应体
func DoJSON(ctx context.Context, client *http.Client, in JSONRequest) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if client == nil {
		client = NewPlainClient(nil)
	}
	var reader io.Reader
	if in.Body != nil {
		payload, err := json.Marshal(in.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: encode request failed", ErrRequestFailed)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, in.URL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Accept", "application/json")
	if in.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range in.Headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

// ExpectOK 校验 2xx 响应并解析为 map
func ExpectOK(body []byte, status int) (map[string]interface{}, error) {
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: http status %d: %s", ErrRequestFailed, status, truncate(string(body), 200))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]interface{}{}, nil
	}
	return DecodeRawMap(body)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
