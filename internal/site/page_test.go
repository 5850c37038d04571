package site

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

func call(t *testing.T, svc *build.Service, in value.Value) *build.Result {
	t.Helper()
	res, err := build.NewRunner().Call(context.Background(), svc, in)
	require.NoError(t, err)
	return res
}

func preprocess(t *testing.T, html string) *build.Result {
	t.Helper()
	return call(t, PreprocessPage, value.NewObject(
		value.P("html", value.String(html)),
		value.P("pagesURL", value.String("/pages")),
	))
}

func TestMarkdown(t *testing.T) {
	res := call(t, Markdown, value.String("# Hi\n\nSome *text* and ~~old~~.\n"))
	require.Equal(t, build.StatusOK, res.Status, res.Logs)
	assert.Equal(t, value.String("<h1>Hi</h1>\n<p>Some <em>text</em> and <del>old</del>.</p>\n"), res.Value)
}

func TestMarkdownPassesRawHTML(t *testing.T) {
	res := call(t, Markdown, value.String("<div class=\"x\">raw</div>\n"))
	assert.Equal(t, value.String("<div class=\"x\">raw</div>\n"), res.Value)
}

func TestMarkdownRejectsNonString(t *testing.T) {
	res := call(t, Markdown, value.Number(1))
	assert.Equal(t, build.StatusFailed, res.Status)
}

func TestPreprocessLinks(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"page", "/pages/about.md", "/about"},
		{"page with fragment", "/pages/about.md#team", "/about#team"},
		{"index", "/pages/index.md", "/"},
		{"nested index", "/pages/blog/index.md#top", "/blog#top"},
		{"nested page", "/pages/blog/first.md", "/blog/first"},
		{"external", "https://example.com/a.md", "https://example.com/a.md"},
		{"mail", "mailto:me@example.com", "mailto:me@example.com"},
		{"fragment", "#local", "#local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := preprocess(t, `<p><a href="`+tt.href+`">x</a></p>`)
			require.Equal(t, build.StatusOK, res.Status, res.Logs)
			assert.Equal(t, value.String(`<p><a href="`+tt.want+`" class="link">x</a></p>`), res.Value)
		})
	}
}

func TestPreprocessWarnsOnUnknownLink(t *testing.T) {
	res := preprocess(t, `<p><a href="/nope">x</a><a class="btn">y</a></p>`)
	assert.Equal(t, build.StatusWarned, res.Status)
	assert.Contains(t, res.Logs, `link "/nope" does not match`)
	assert.Equal(t, value.String(`<p><a href="/nope" class="link">x</a><a class="btn link">y</a></p>`), res.Value)
}

func TestPreprocessHeadings(t *testing.T) {
	res := preprocess(t, `<h1>Title</h1><h2>Hello <em>World</em>!</h2><h6>Deep</h6>`)
	require.Equal(t, build.StatusOK, res.Status, res.Logs)
	assert.Equal(t, value.String(
		`<h1>Title</h1>`+
			`<h2 id="hello-world"><a href="#hello-world">Hello <em>World</em>!</a></h2>`+
			`<h6 id="deep"><a href="#deep">Deep</a></h6>`,
	), res.Value)
}

func TestPreprocessBlockquoteSelector(t *testing.T) {
	res := preprocess(t, `<blockquote><p><code>aside.note.wide#tip</code></p><p>Body</p></blockquote>`)
	require.Equal(t, build.StatusOK, res.Status, res.Logs)
	assert.Equal(t, value.String(`<aside id="tip" class="note wide"><p>Body</p></aside>`), res.Value)
}

func TestPreprocessPlainBlockquote(t *testing.T) {
	in := `<blockquote><p>Just <code>code</code> in text</p></blockquote>`
	res := preprocess(t, in)
	require.Equal(t, build.StatusOK, res.Status, res.Logs)
	assert.Equal(t, value.String(in), res.Value)
}

func TestPreprocessBadSelector(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		warning  string
	}{
		{"not a selector", "two words", "is not a tag"},
		{"two ids", "div#a#b", "more than one id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := `<blockquote><p><code>` + tt.selector + `</code></p></blockquote>`
			res := preprocess(t, in)
			assert.Equal(t, build.StatusWarned, res.Status)
			assert.Contains(t, res.Logs, tt.warning)
			assert.Equal(t, value.String(in), res.Value)
		})
	}
}

func TestApplyLayout(t *testing.T) {
	layout := `<!DOCTYPE html><html><head><title>Site</title></head><body><nav>n</nav><main>placeholder</main></body></html>`
	res := call(t, ApplyLayout, value.NewObject(
		value.P("layout", value.String(layout)),
		value.P("content", value.String(`<h2>A</h2><p>b</p>`)),
	))
	require.Equal(t, build.StatusOK, res.Status, res.Logs)
	assert.Equal(t, value.String(
		`<!DOCTYPE html><html><head><title>Site</title></head><body><nav>n</nav><main><h2>A</h2><p>b</p></main></body></html>`,
	), res.Value)
}

func TestApplyLayoutWithoutMain(t *testing.T) {
	res := call(t, ApplyLayout, value.NewObject(
		value.P("layout", value.String(`<html><body></body></html>`)),
		value.P("content", value.String(`<p>x</p>`)),
	))
	assert.Equal(t, build.StatusFailed, res.Status)
	assert.Contains(t, res.Logs, "no <main> element")
}
