// Package watch drives a site project: it builds every output, then waits
// for file changes, resets the targets reading the changed files and
// builds again.
package watch
