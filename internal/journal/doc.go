// Package journal persists runner events to SQLite.
//
// Events are grouped into runs. A run is one pass of the driving loop: the
// initial build, or one batch of file changes and the rebuild that follows.
// Recorder subscribes to a build.Runner and hands events to a single writer
// goroutine, so listeners never wait on disk.
//
// The database uses WAL mode and a single connection. Schema changes are
// tracked with PRAGMA user_version.
package journal
