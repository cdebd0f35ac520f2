package scrape

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

const maxDepth = 64

// HTMLToMarkdown keeps headings, paragraphs, list items and code blocks and
// drops scripts, navigation and page chrome.
func HTMLToMarkdown(content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeNode(doc, &sb, 0)
	return cleanMarkdown(sb.String()), nil
}

func writeNode(n *html.Node, sb *strings.Builder, depth int) {
	if depth > maxDepth {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "aside", "form":
			return
		case "title":
			sb.WriteString("# ")
		case "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3":
			sb.WriteString("\n\n### ")
		case "h4", "h5", "h6":
			sb.WriteString("\n\n#### ")
		case "p", "div", "section", "article", "tr":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "pre":
			sb.WriteString("\n\n```\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "title", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "pre":
			sb.WriteString("\n```\n\n")
		}
	}
}

func cleanMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpacePattern.ReplaceAllString(line, " "))
	}
	out := strings.Join(lines, "\n")
	out = multiNewlinePattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Truncate cuts s to at most n characters (runes).
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// CharCount counts characters (runes) rather than bytes.
func CharCount(s string) int {
	return len([]rune(s))
}
