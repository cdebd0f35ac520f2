// Package extraction turns a web page into a validated structured record.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"

	"interview-agent/internal/llm"
	"interview-agent/internal/scrape"
)

const (
	MinContentChars = 50
	MaxContentChars = 10000
)

var (
	ErrContentTooShort = errors.New("page content too short")
	ErrValidation      = errors.New("extracted record failed validation")
)

// ValidationError reports a record the model could not produce in valid form.
type ValidationError struct {
	URL string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrValidation, e.URL, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// Record is an extraction target.
type Record interface {
	// ExtractionSchema describes the JSON object the model must return.
	ExtractionSchema() string
	SetSourceURL(url string)
}

// Extractor fetches pages and asks the model for one record per page.
type Extractor struct {
	Fetcher  scrape.Fetcher
	LLM      llm.Generator
	Validate *validator.Validate
	MinChars int
	MaxChars int
}

// New returns an Extractor with the default content limits.
func New(fetcher scrape.Fetcher, gen llm.Generator) *Extractor {
	return &Extractor{
		Fetcher:  fetcher,
		LLM:      gen,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		MinChars: MinContentChars,
		MaxChars: MaxContentChars,
	}
}

// Extract fills out from the page at url. The record's source URL is always
// the fetched URL, whatever the model returned.
func (e *Extractor) Extract(ctx context.Context, url string, out Record, instructions string) error {
	content, err := e.Fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if n := scrape.CharCount(content); n < e.minChars() {
		return fmt.Errorf("%w (%d chars): %s", ErrContentTooShort, n, url)
	}
	content = scrape.Truncate(content, e.maxChars())

	err = llm.GenerateJSON(ctx, e.LLM, llm.Request{
		System:      systemPrompt,
		Prompt:      userPrompt(instructions, out.ExtractionSchema(), content),
		Temperature: llm.Temp(0),
	}, out)
	if err != nil {
		if errors.Is(err, llm.ErrJSONParse) {
			return &ValidationError{URL: url, Err: err}
		}
		return err
	}

	out.SetSourceURL(url)
	if e.Validate != nil {
		if err := e.Validate.Struct(out); err != nil {
			return &ValidationError{URL: url, Err: err}
		}
	}
	log.Printf("extraction ok url=%s chars=%d", url, scrape.CharCount(content))
	return nil
}

func (e *Extractor) minChars() int {
	if e.MinChars > 0 {
		return e.MinChars
	}
	return MinContentChars
}

func (e *Extractor) maxChars() int {
	if e.MaxChars > 0 {
		return e.MaxChars
	}
	return MaxContentChars
}

const systemPrompt = `You extract structured data from text.
Follow the JSON schema exactly:
1. Every required field must have a value.
2. List fields with no content are empty arrays [].
3. Optional string fields that cannot be found are null.
4. Output JSON only, with no explanation.`

func userPrompt(instructions, schema, content string) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nJSON schema:\n")
	sb.WriteString(schema)
	sb.WriteString("\n\nExtract the information from the following text:\n\n")
	sb.WriteString(content)
	sb.WriteString("\n\nReturn JSON that follows the schema above.")
	return sb.String()
}
