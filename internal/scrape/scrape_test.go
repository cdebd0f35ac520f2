package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"interview-agent/internal/gate"
)

const samplePage = `<!doctype html>
<html><head><title>Backend Engineer</title><style>body{}</style><script>var x=1;</script></head>
<body>
<nav>Home | Jobs</nav>
<h1>Backend Engineer</h1>
<p>Build   distributed systems.</p>
<ul><li>Go</li><li>PostgreSQL</li></ul>
<pre>SELECT 1;</pre>
<footer>Copyright</footer>
</body></html>`

func TestHTMLToMarkdown(t *testing.T) {
	md, err := HTMLToMarkdown(samplePage)
	if err != nil {
		t.Fatalf("HTMLToMarkdown: %v", err)
	}
	for _, want := range []string{"# Backend Engineer", "Build distributed systems.", "- Go", "- PostgreSQL", "SELECT 1;"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	for _, unwanted := range []string{"var x", "body{}", "Home | Jobs", "Copyright"} {
		if strings.Contains(md, unwanted) {
			t.Fatalf("markdown should not contain %q:\n%s", unwanted, md)
		}
	}
	if strings.Contains(md, "\n\n\n") {
		t.Fatalf("markdown has runs of blank lines:\n%s", md)
	}
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(samplePage))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("  plain body  "))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(time.Second)
	md, err := f.Fetch(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch page: %v", err)
	}
	if !strings.Contains(md, "Build distributed systems.") {
		t.Fatalf("unexpected page text: %s", md)
	}

	plain, err := f.Fetch(context.Background(), server.URL+"/plain")
	if err != nil || plain != "plain body" {
		t.Fatalf("Fetch plain = %q, %v", plain, err)
	}

	_, err = f.Fetch(context.Background(), server.URL+"/missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.HTTPStatus() != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestGatedFetchDoesNotRetryNotFound(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		http.NotFound(w, r)
	}))
	defer server.Close()

	g := gate.New(gate.Config{
		MaxConcurrent:     2,
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		Adaptive:          true,
		OverloadThreshold: 1,
		OverloadWindow:    time.Minute,
	})
	f := &Gated{Base: NewHTTPFetcher(time.Second), Gate: g}

	for _, path := range []string{"/go-concurrent-interview", "/post/14290", "/rate-limit-quota"} {
		_, err := f.Fetch(context.Background(), server.URL+path)
		if err == nil || errors.Is(err, gate.ErrExhaustedRetries) {
			t.Fatalf("%s: expected plain 404 error, got %v", path, err)
		}
		if kind := gate.ClassifyError(err); kind != gate.KindTransient {
			t.Fatalf("%s: classified as %s", path, kind)
		}
		mu.Lock()
		n := hits[path]
		mu.Unlock()
		if n != 1 {
			t.Fatalf("%s: expected 1 request, got %d", path, n)
		}
	}

	stats := g.Stats()
	if stats.OverloadedCalls != 0 || stats.Retries != 0 || stats.Limit != 2 {
		t.Fatalf("404s must not count as overload: %+v", stats)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"面试经验分享", 2, "面试"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
	if CharCount("面试ab") != 4 {
		t.Fatalf("CharCount should count runes")
	}
}
