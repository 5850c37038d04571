package site

import (
	"context"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/value"
)

// ReadConfig configures a ReadTextFileRule target.
type ReadConfig struct {
	Allow Allow
	Path  string
}

// ReadTextFileRule targets read one file. Reset them when the file changes.
var ReadTextFileRule = build.DefineRule(ReadTextFile, func(_ context.Context, c ReadConfig, _ *build.InputContext) (value.Value, error) {
	return value.NewObject(
		value.P("allow", c.Allow.Value()),
		value.P("path", value.String(c.Path)),
	), nil
})

// WriteConfig configures a WriteTextFileRule target.
type WriteConfig struct {
	Allow Allow
	Path  string
	Data  *build.Target
}

// Targets implements build.Referrer.
func (c WriteConfig) Targets() []*build.Target { return []*build.Target{c.Data} }

// WriteTextFileRule targets write the value of Data to Path. Resetting one
// deletes the file.
var WriteTextFileRule = build.DefineRuleWithReset(WriteTextFile,
	func(ctx context.Context, c WriteConfig, in *build.InputContext) (value.Value, error) {
		data, err := in.TryBuild(ctx, c.Data)
		if err != nil {
			return nil, err
		}
		return value.NewObject(
			value.P("allow", c.Allow.Value()),
			value.P("path", value.String(c.Path)),
			value.P("data", data),
		), nil
	},
	DeleteFile,
	func(_ context.Context, c WriteConfig) (value.Value, error) {
		return value.NewObject(
			value.P("allow", c.Allow.Value()),
			value.P("path", value.String(c.Path)),
		), nil
	},
)

// CopyConfig configures a CopyFileRule target.
type CopyConfig struct {
	Allow Allow
	Src   string
	Dest  string
}

// CopyFileRule targets copy Src to Dest. Resetting one deletes Dest.
var CopyFileRule = build.DefineRuleWithReset(CopyFile,
	func(_ context.Context, c CopyConfig, _ *build.InputContext) (value.Value, error) {
		return value.NewObject(
			value.P("allow", c.Allow.Value()),
			value.P("src", value.String(c.Src)),
			value.P("dest", value.String(c.Dest)),
		), nil
	},
	DeleteFile,
	func(_ context.Context, c CopyConfig) (value.Value, error) {
		return value.NewObject(
			value.P("allow", c.Allow.Value()),
			value.P("path", value.String(c.Dest)),
		), nil
	},
)

// MarkdownRule targets render the Markdown produced by their config target.
var MarkdownRule = build.DefineRule(Markdown, func(ctx context.Context, src *build.Target, in *build.InputContext) (value.Value, error) {
	return in.TryBuild(ctx, src)
})

// PreprocessConfig configures a PreprocessRule target.
type PreprocessConfig struct {
	Content  *build.Target
	PagesURL string
}

// Targets implements build.Referrer.
func (c PreprocessConfig) Targets() []*build.Target { return []*build.Target{c.Content} }

// PreprocessRule targets run PreprocessPage over Content.
var PreprocessRule = build.DefineRule(PreprocessPage, func(ctx context.Context, c PreprocessConfig, in *build.InputContext) (value.Value, error) {
	html, err := in.TryBuild(ctx, c.Content)
	if err != nil {
		return nil, err
	}
	return value.NewObject(
		value.P("html", html),
		value.P("pagesURL", value.String(c.PagesURL)),
	), nil
})

// LayoutConfig configures a LayoutRule target.
type LayoutConfig struct {
	Layout  *build.Target
	Content *build.Target
}

// Targets implements build.Referrer.
func (c LayoutConfig) Targets() []*build.Target { return []*build.Target{c.Layout, c.Content} }

// LayoutRule targets place Content into Layout.
var LayoutRule = build.DefineRule(ApplyLayout, func(ctx context.Context, c LayoutConfig, in *build.InputContext) (value.Value, error) {
	parts, err := in.TryBuildMap(ctx, map[string]*build.Target{
		"layout":  c.Layout,
		"content": c.Content,
	})
	if err != nil {
		return nil, err
	}
	return value.Object(parts), nil
})
