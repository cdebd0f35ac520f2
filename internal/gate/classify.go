package gate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Kind is the closed set of failure classes the gate distinguishes.
type Kind int

const (
	// KindTransient covers upstream failures that are surfaced without retry.
	KindTransient Kind = iota
	// KindOverload marks upstream back-pressure (rate limit, quota, concurrency cap).
	KindOverload
	// KindFatal marks failures no retry can fix: caller cancellation, missing
	// credentials, rejected authentication.
	KindFatal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOverload:
		return "overload"
	case KindFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// ErrFatal is wrapped by errors that must never be retried.
var ErrFatal = errors.New("gate: fatal")

// Classifier maps an operation error to a Kind.
type Classifier func(err error) Kind

// overloadIndicators are matched case-insensitively against provider messages.
var overloadIndicators = []string{
	"429",
	"1302",
	"rate limit",
	"too many requests",
	"concurrent",
	"并发",
	"quota",
}

// statusCoder is implemented by errors that know their HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// providerMessager is implemented by status errors that carry the provider's
// own error text. Only that text is searched for overload indicators.
type providerMessager interface {
	ProviderMessage() string
}

// ClassifyError is the default Classifier.
//
// Errors with a structured status are decided by the status, plus the
// provider message when one is exposed. Transport errors are matched on the
// underlying cause only, never on the request URL. Everything else falls back
// to matching the error text.
func ClassifyError(err error) Kind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, ErrFatal) || errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCallTimeout) {
		return KindTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatus(); {
		case status == http.StatusTooManyRequests:
			return KindOverload
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return KindFatal
		}
		var pm providerMessager
		if errors.As(err, &pm) && hasOverloadIndicator(pm.ProviderMessage()) {
			return KindOverload
		}
		return KindTransient
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Err != nil && hasOverloadIndicator(urlErr.Err.Error()) {
			return KindOverload
		}
		return KindTransient
	}

	if hasOverloadIndicator(err.Error()) {
		return KindOverload
	}
	return KindTransient
}

func hasOverloadIndicator(msg string) bool {
	msg = strings.ToLower(msg)
	for _, indicator := range overloadIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
