// Package render converts message text from the markdown the core
// stores it in to the presentation formats notify sinks need: an HTML
// document fragment for rich clients (email, websocket/web feeds) and a
// formatting-stripped plain-text fallback. It lives in its own package
// so every notify plugin shares one implementation instead of each
// reimplementing goldmark wiring and regex stripping.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// ToHTML renders md to a minimal standalone HTML document with inline
// styling and no external resources, safe to embed in a message body
// with no further sanitization step available downstream.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown to HTML: %w", err)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String())

	return html, nil
}

// Fragment renders md to a bare HTML fragment (no document envelope),
// for sinks that embed the result in their own page or message shell
// (e.g. mailnotify's HTML part) rather than sending a standalone document.
func Fragment(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown fragment: %w", err)
	}
	return buf.String(), nil
}

var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.+?)\*`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCodeBlock  = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
)

// ToPlain strips markdown formatting while preserving structure, for
// sinks (SMS, plain-text email fallback, push notification bodies) that
// can't render HTML.
func ToPlain(md string) string {
	s := md

	s = mdCodeBlock.ReplaceAllString(s, "$1")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")

	return strings.TrimSpace(s)
}
