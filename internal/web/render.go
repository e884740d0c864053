package web

import (
	"bytes"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	renderOnce sync.Once
	md         goldmark.Markdown
	sanitizer  *bluemonday.Policy
)

// renderMarkdown converts briefing markdown to a sanitized HTML
// fragment. Model-generated markdown is untrusted, so the output is
// always run through the sanitizer.
func renderMarkdown(source string) ([]byte, error) {
	renderOnce.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
		sanitizer = bluemonday.UGCPolicy()
	})

	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return nil, err
	}
	return sanitizer.SanitizeBytes(buf.Bytes()), nil
}
