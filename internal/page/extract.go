package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/tabwire/internal/protocol"
)

// maxLinks bounds the link list attached to the first content window so a
// link farm cannot blow up the result payload.
const maxLinks = 100

// Extract parses raw HTML and returns the document's visible text plus its
// anchor list. Script, style and noscript subtrees are excluded from the
// text; whitespace runs are collapsed to single spaces.
func Extract(rawHTML string) (string, []protocol.Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", nil, fmt.Errorf("page: parse html: %w", err)
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	for _, node := range root.Nodes {
		collectText(node, &sb)
	}
	text := collapseWhitespace(sb.String())

	links := extractLinks(doc)
	return text, links, nil
}

// collectText walks the node tree appending text content, skipping subtrees
// that never render.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func extractLinks(doc *goquery.Document) []protocol.Link {
	var links []protocol.Link
	seen := make(map[string]bool)

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		if seen[href] {
			return true
		}
		seen[href] = true
		links = append(links, protocol.Link{
			URL:  href,
			Text: collapseWhitespace(sel.Text()),
		})
		return len(links) < maxLinks
	})

	return links
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
