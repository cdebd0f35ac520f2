package llm

import (
	"context"
	"fmt"
	"strings"

	"interview-agent/internal/gate"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	// Temperature overrides the provider default when set.
	Temperature *float32
	MaxTokens   int
	// JSON asks the provider for a JSON object response.
	JSON bool
}

// Temp returns a pointer for Request.Temperature.
func Temp(v float32) *float32 {
	return &v
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	StatusCode int
	Code       string
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm api error: status=%d: %s (%s)", e.StatusCode, e.Message, e.Type)
}

// HTTPStatus reports the response status for error classifiers.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// ProviderMessage is the provider's error code and text.
func (e *APIError) ProviderMessage() string {
	return strings.TrimSpace(e.Code + " " + e.Message)
}

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = gate.Fatal("llm provider not configured")

// Unconfigured is the Generator used when no API key is set.
type Unconfigured struct{}

// Generate returns ErrNotConfigured.
func (Unconfigured) Generate(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrNotConfigured
}
