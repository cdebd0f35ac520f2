package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"interview-agent/internal/gate"
	"interview-agent/internal/llm"
)

func TestIsGPT5(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gpt5", model: "gpt-5", want: true},
		{name: "gpt5 variant", model: "gpt-5-mini", want: true},
		{name: "gpt5 uppercase", model: " GPT-5o ", want: true},
		{name: "gpt4", model: "gpt-4o", want: false},
		{name: "glm", model: "glm-4-flash", want: false},
		{name: "empty", model: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isGPT5(tt.model); got != tt.want {
				t.Fatalf("isGPT5(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

type recordingServer struct {
	mu     sync.Mutex
	bodies []map[string]any
	paths  []string
}

func (s *recordingServer) record(t *testing.T, r *http.Request) int {
	t.Helper()
	defer r.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Errorf("decode request: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, payload)
	s.paths = append(s.paths, r.URL.Path)
	return len(s.bodies)
}

func TestGenerateSendsChatCompletion(t *testing.T) {
	rec := &recordingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		rec.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" {\"ok\":true} "}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", "glm-4-flash", WithBaseURL(server.URL+"/"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := client.Generate(context.Background(), llm.Request{
		System:      "system text",
		Prompt:      "user text",
		Temperature: llm.Temp(0.3),
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected content %q", out)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.paths[0] != "/chat/completions" {
		t.Fatalf("unexpected path %q", rec.paths[0])
	}
	body := rec.bodies[0]
	if body["model"] != "glm-4-flash" {
		t.Fatalf("unexpected model %v", body["model"])
	}
	if _, ok := body["temperature"]; !ok {
		t.Fatalf("expected temperature in request")
	}
	format, ok := body["response_format"].(map[string]any)
	if !ok || format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", body["response_format"])
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(messages))
	}
}

func TestGenerateOmitsTemperatureForDenylist(t *testing.T) {
	t.Setenv("LLM_NO_TEMP0_MODELS", "o1-mini, some-model")
	rec := &recordingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", "some-model", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "p", Temperature: llm.Temp(0)}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, ok := rec.bodies[0]["temperature"]; ok {
		t.Fatalf("expected temperature to be omitted for denylisted model")
	}
	if _, ok := rec.bodies[0]["response_format"]; ok {
		t.Fatalf("response_format must be omitted outside JSON mode")
	}
}

func TestGenerateRetriesWithoutTemperature(t *testing.T) {
	rec := &recordingServer{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := rec.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported value: 'temperature' does not support 0 with this model.","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", "gpt-4o-mini", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "p", Temperature: llm.Temp(0)}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(rec.bodies))
	}
	if _, ok := rec.bodies[1]["temperature"]; ok {
		t.Fatalf("expected retry request to omit temperature")
	}
}

func TestGenerateRateLimitIsOverload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"1302","message":"High concurrency usage of this API, please reduce concurrency"}}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", "glm-4-flash", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Generate(context.Background(), llm.Request{Prompt: "p"})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Code != "1302" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if gate.ClassifyError(err) != gate.KindOverload {
		t.Fatalf("rate limit response must classify as overload")
	}
}

func TestGenerateServerErrorWithoutJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	client, err := NewClient("test-key", "glm-4-flash", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Generate(context.Background(), llm.Request{Prompt: "p"})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
	if gate.ClassifyError(err) != gate.KindTransient {
		t.Fatalf("5xx must not be retried as overload")
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient("", "m"); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := NewClient("k", " "); err == nil {
		t.Fatalf("expected error for missing model")
	}
}
