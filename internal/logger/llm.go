package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

// SetLLMWriter 设置 LLM 请求/响应日志输出；传 nil 关闭。
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(on bool) {
	llmMu.Lock()
	llmDumpPayload = on
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(stage, backend, purpose string, sections []llmSection) {
	llmMu.Lock()
	l := llmLog
	dump := llmDumpPayload
	llmMu.Unlock()
	if l == nil || !dump {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, tag := range []string{stage, backend, purpose} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		body := sec.Body
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// LogLLMRequest 记录一次出站生成请求（stage 形如 analyst/debate/judge）。
func LogLLMRequest(stage, backend, purpose, systemPrompt, userPrompt string) {
	logLLM(stage, backend, purpose, []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	})
}

func LogLLMResponse(stage, backend, purpose, output string) {
	logLLM(stage, backend, purpose, []llmSection{
		{Title: "OUTPUT", Body: output},
	})
}
