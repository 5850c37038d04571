// Package site provides the static-site plug-ins that run on the build
// engine: file services guarded by path allow-lists, Markdown rendering,
// page preprocessing and layout, the rules that turn them into targets, and
// Project, which builds the target graph for a configured site.
//
// Services are package-level values. A Runner identifies services by
// pointer, so every project registered with one Runner shares them.
package site
