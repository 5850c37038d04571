package site

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

// markdown renders GitHub-flavoured Markdown with smart punctuation.
// Raw HTML passes through.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Markdown converts a Markdown string to an HTML fragment.
var Markdown = build.NewService("Markdown", true, func(_ context.Context, in value.Value, _ *build.RunContext) (value.Value, error) {
	src, ok := value.AsString(in)
	if !ok {
		return nil, fmt.Errorf("input: want string, got %T", in)
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return nil, err
	}
	return value.String(buf.String()), nil
})
