package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// loadWebPage fetches url and extracts its visible text content.
func (l *Loader) loadWebPage(ctx context.Context, url string) ([]Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &LoadError{Location: url, Err: err}
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, &LoadError{Location: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Location: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, &LoadError{Location: url, Err: err}
	}

	text := strings.TrimSpace(visibleText(root))
	if text == "" {
		return nil, nil
	}
	return []Document{{
		Text:     text,
		Metadata: map[string]string{"source": url, "kind": KindWebPage.String()},
	}}, nil
}

// visibleText walks the parse tree collecting text nodes, skipping subtrees
// that never render.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
