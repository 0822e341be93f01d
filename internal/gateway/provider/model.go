package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// GenRequest 描述一次 schema 约束的生成请求。
type GenRequest struct {
	System    string
	User      string
	Schema    json.RawMessage // 期望输出符合的 JSON Schema；nil 表示自由文本
	MaxTokens int
}

// GenResult carries the raw model text plus the provider finish reason.
// A non-"stop" finish reason is a soft warning for callers, never an error.
type GenResult struct {
	Text         string
	FinishReason string
}

type ModelProvider interface {
	ID() string
	Enabled() bool

	Generate(ctx context.Context, req GenRequest) (GenResult, error)
}

// TransportError marks network/timeout/HTTP-level failures as retryable so
// callers can distinguish them from semantic validation failures.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
