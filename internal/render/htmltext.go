package render

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hiddenElements are elements whose content never contributes visible text.
var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
}

// HTMLToText extracts readable plain text from an HTML document or
// fragment: hidden elements are dropped, block elements become paragraph
// breaks, and whitespace is collapsed. Used by ingest plugins that
// receive HTML payloads (an HTML-only email body, a feed item) and need
// message text, which the hub stores as plain markdown-ish text.
func HTMLToText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return tokenizeText(raw)
	}
	var b strings.Builder
	visibleText(doc, &b)
	return collapseWhitespace(b.String())
}

// visibleText walks the DOM accumulating text, inserting paragraph breaks
// at block boundaries and line breaks after <br> and <li>.
func visibleText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if hiddenElements[n.DataAtom] {
			return
		}
		if blockElement(n.DataAtom) && b.Len() > 0 {
			b.WriteString("\n\n")
		}
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, b)
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		b.WriteString("\n")
	}
}

func blockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Hr:
		return true
	}
	return false
}

// tokenizeText is the fallback when full parsing fails: keep text tokens,
// discard everything else.
func tokenizeText(raw string) string {
	tok := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	for {
		switch tok.Next() {
		case html.ErrorToken:
			// EOF or malformed input; partial output is still better
			// than none.
			return collapseWhitespace(b.String())
		case html.TextToken:
			b.WriteString(tok.Token().Data)
			b.WriteString(" ")
		}
	}
}

// collapseWhitespace squeezes runs of spaces within lines and runs of
// blank lines down to one.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	prevBlank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
		} else {
			prevBlank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
