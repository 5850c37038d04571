package site

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/kiln/internal/build"
	"github.com/roach88/kiln/internal/config"
)

// Project is the target graph of one site.
type Project struct {
	cfg     *config.Config
	allow   Allow
	outputs []*build.Target
	sources map[string]*build.Target
}

// NewProject discovers the sources under cfg and builds their targets.
// cfg must come from config.Load, so every path is absolute.
//
// Each Markdown file under Pages becomes one HTML page: "index.md" maps to
// "index.html" and "about.md" to "about/index.html". Files under Static are
// copied to Output, files under Styles to Output/assets.
func NewProject(cfg *config.Config) (*Project, error) {
	p := &Project{
		cfg: cfg,
		allow: Allow{
			ReadPrefixes:  cfg.ReadPrefixes,
			WritePrefixes: []string{cfg.Output},
		},
		sources: make(map[string]*build.Target),
	}

	layout := ReadTextFileRule("ReadTextFile:"+p.rel(cfg.Layout), ReadConfig{Allow: p.allow, Path: cfg.Layout})
	p.sources[cfg.Layout] = layout

	pagesURL := "/" + filepath.ToSlash(p.rel(cfg.Pages))
	pages, err := listFiles(cfg.Pages)
	if err != nil {
		return nil, err
	}
	for _, path := range pages {
		if filepath.Ext(path) != ".md" {
			continue
		}
		p.addPage(path, layout, pagesURL)
	}

	for _, dir := range []struct{ src, dest string }{
		{cfg.Static, cfg.Output},
		{cfg.Styles, filepath.Join(cfg.Output, "assets")},
	} {
		if dir.src == "" {
			continue
		}
		files, err := listFiles(dir.src)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			rel, _ := filepath.Rel(dir.src, path)
			p.addCopy(path, filepath.Join(dir.dest, rel))
		}
	}

	slices.SortFunc(p.outputs, func(a, b *build.Target) int { return strings.Compare(a.ID(), b.ID()) })
	return p, nil
}

func (p *Project) addPage(path string, layout *build.Target, pagesURL string) {
	name := p.rel(path)
	read := ReadTextFileRule("ReadTextFile:"+name, ReadConfig{Allow: p.allow, Path: path})
	md := MarkdownRule("Markdown:"+name, read)
	pre := PreprocessRule("PreprocessPage:"+name, PreprocessConfig{Content: md, PagesURL: pagesURL})
	page := LayoutRule("ApplyLayout:"+name, LayoutConfig{Layout: layout, Content: pre})

	dest := filepath.Join(p.cfg.Output, pageOutput(p.cfg.Pages, path))
	out := WriteTextFileRule("WriteTextFile:"+p.rel(dest), WriteConfig{Allow: p.allow, Path: dest, Data: page})

	p.sources[path] = read
	p.outputs = append(p.outputs, out)
}

func (p *Project) addCopy(src, dest string) {
	t := CopyFileRule("CopyFile:"+p.rel(dest), CopyConfig{Allow: p.allow, Src: src, Dest: dest})
	p.sources[src] = t
	p.outputs = append(p.outputs, t)
}

// pageOutput maps a page source to its output path relative to Output.
func pageOutput(pagesDir, path string) string {
	rel, _ := filepath.Rel(pagesDir, path)
	rel = strings.TrimSuffix(rel, ".md")
	if filepath.Base(rel) == "index" {
		return rel + ".html"
	}
	return filepath.Join(rel, "index.html")
}

// rel renders path relative to Root for target ids.
func (p *Project) rel(path string) string {
	r, err := filepath.Rel(p.cfg.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

// Register adds every output, and through them the whole graph, to r.
func (p *Project) Register(r *build.Runner) error {
	for _, t := range p.outputs {
		if _, err := r.Target(t); err != nil {
			return fmt.Errorf("register %s: %w", t.ID(), err)
		}
	}
	return nil
}

// Outputs returns the targets that write into Output, sorted by id.
func (p *Project) Outputs() []*build.Target {
	return slices.Clone(p.outputs)
}

// SourceFor returns the target to reset when the file at path changes.
func (p *Project) SourceFor(path string) (*build.Target, bool) {
	t, ok := p.sources[filepath.Clean(path)]
	return t, ok
}

// WatchDirs returns the existing directories whose changes matter.
func (p *Project) WatchDirs() []string {
	var dirs []string
	for _, d := range []string{p.cfg.Pages, filepath.Dir(p.cfg.Layout), p.cfg.Static, p.cfg.Styles} {
		if d == "" || slices.Contains(dirs, d) {
			continue
		}
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// listFiles returns the regular files under dir in lexical order. A missing
// dir yields no files.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return files, nil
}
