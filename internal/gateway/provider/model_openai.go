package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quorum/internal/logger"
)

// OpenAIChatClient 兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口（/v1/chat/completions）。
type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// transport 层对 429/5xx 的有限重试；0 表示默认 2 次
	MaxRetries   int
	ExtraHeaders map[string]string
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *OpenAIChatClient) endpoint() string {
	// 规范化 BaseURL，避免配置里已带 /chat/completions 造成重复路径
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// Complete issues one chat completion with bounded transport retry.
// expectJSON switches the request into JSON response mode.
func (c *OpenAIChatClient) Complete(ctx context.Context, systemPrompt, userPrompt string, expectJSON bool, maxTokens int) (string, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	url := c.endpoint()

	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})

	body := map[string]any{"model": c.Model, "messages": messages, "temperature": 0.5}
	if expectJSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	b, _ := json.Marshal(body)

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return "", "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			lastErr = err
			break
		}
		if resp.StatusCode/100 == 2 {
			var r chatResponse
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				lastErr = derr
				break
			}
			if len(r.Choices) == 0 {
				lastErr = fmt.Errorf("empty choices")
				break
			}
			return r.Choices[0].Message.Content, r.Choices[0].FinishReason, nil
		}
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		retryable := resp.StatusCode == 429 || resp.StatusCode >= 500
		wait := retryAfter(resp, attempt)
		resp.Body.Close()
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if retryable && attempt < maxRetries {
			logger.Debugf("[provider] %s 重试 attempt=%d wait=%s err=%v", c.Model, attempt+1, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", "", ctx.Err()
			}
			continue
		}
		break
	}
	return "", "", lastErr
}

func retryAfter(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// 基本指数退避：0.8s, 1.6s, 3.2s ...
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

// OpenAIModelProvider 将 OpenAIChatClient 适配为 ModelProvider。
type OpenAIModelProvider struct {
	id      string
	enabled bool
	client  *OpenAIChatClient
}

func NewOpenAIModelProvider(id string, enabled bool, client *OpenAIChatClient) *OpenAIModelProvider {
	return &OpenAIModelProvider{id: id, enabled: enabled, client: client}
}

func (p *OpenAIModelProvider) ID() string    { return p.id }
func (p *OpenAIModelProvider) Enabled() bool { return p.enabled }

func (p *OpenAIModelProvider) Generate(ctx context.Context, req GenRequest) (GenResult, error) {
	user := req.User
	if len(req.Schema) > 0 {
		// schema 附在用户消息尾部；response_format 仅保证 JSON，结构由调用方校验
		user = user + "\n\nRespond with a single JSON object conforming to this JSON Schema:\n" + string(req.Schema)
	}
	text, finish, err := p.client.Complete(ctx, req.System, user, len(req.Schema) > 0, req.MaxTokens)
	if err != nil {
		return GenResult{}, &TransportError{Backend: p.id, Err: err}
	}
	if finish != "" && finish != "stop" {
		logger.Warnf("[provider] %s finish_reason=%s（非 stop，按软告警处理）", p.id, finish)
	}
	return GenResult{Text: text, FinishReason: finish}, nil
}
