package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrJSONParse matches model output that could not be decoded.
var ErrJSONParse = errors.New("llm output is not valid JSON")

const (
	systemPromptFixJSON = "You are a JSON repair tool. Return only valid JSON. No markdown."
	maxRawInError       = 300
)

// JSONParseError carries the undecodable output.
type JSONParseError struct {
	Raw string
	Err error
}

func (e *JSONParseError) Error() string {
	raw := e.Raw
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError] + "..."
	}
	return fmt.Sprintf("%v: %v (raw=%q)", ErrJSONParse, e.Err, raw)
}

func (e *JSONParseError) Unwrap() []error {
	return []error{ErrJSONParse, e.Err}
}

// GenerateJSON asks for a JSON answer and decodes it into out. Output that
// does not decode gets one repair round trip before a JSONParseError.
func GenerateJSON(ctx context.Context, g Generator, req Request, out any) error {
	req.JSON = true
	raw, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	parseErr := decodeJSON(raw, out)
	if parseErr == nil {
		return nil
	}

	log.Printf("llm json decode failed, requesting repair: %v", parseErr)
	fixed, err := g.Generate(ctx, Request{
		System:      systemPromptFixJSON,
		Prompt:      fixUserPrompt(raw),
		Temperature: Temp(0),
		JSON:        true,
	})
	if err != nil {
		return err
	}
	if err := decodeJSON(fixed, out); err != nil {
		return &JSONParseError{Raw: fixed, Err: err}
	}
	return nil
}

func decodeJSON(raw string, out any) error {
	body := ExtractJSON(raw)
	if body == "" {
		return errors.New("no JSON value found")
	}
	return json.Unmarshal([]byte(body), out)
}

func fixUserPrompt(raw string) string {
	return fmt.Sprintf("Fix this into valid JSON with the same fields. Output JSON only:\n%s", raw)
}

// ExtractJSON returns the JSON value embedded in model output, removing
// markdown fences and surrounding prose.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
