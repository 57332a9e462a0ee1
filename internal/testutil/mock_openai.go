package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
)

// chatChoice mirrors the minimal OpenAI chat completions response shape.
type chatChoice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAICompatibleServer starts an httptest.Server answering
// POST /v1/chat/completions with the given assistant message body. Callers
// must register t.Cleanup(server.Close).
func NewOpenAICompatibleServer(content string) *httptest.Server {
	return NewOpenAICompatibleServerFunc(func(r *http.Request) string { return content })
}

// NewOpenAICompatibleServerFunc is like NewOpenAICompatibleServer but derives
// the assistant message from the incoming request, so tests can script
// different classifications per column.
func NewOpenAICompatibleServerFunc(reply func(r *http.Request) string) *httptest.Server {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var choice chatChoice
		choice.Message.Role = "assistant"
		choice.Message.Content = reply(r)
		choice.FinishReason = "stop"

		resp := chatResponse{
			ID:      "chatcmpl-test",
			Object:  "chat.completion",
			Model:   "gpt-4o-mini",
			Choices: []chatChoice{choice},
		}
		resp.Usage.PromptTokens = 10
		resp.Usage.CompletionTokens = 20
		resp.Usage.TotalTokens = 30

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(handler)
}
