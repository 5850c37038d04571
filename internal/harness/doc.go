// Package harness records runner event traces and checks them in tests.
//
// A Recorder subscribes to every event of a build.Runner and keeps them in
// sequence order. Traces are compared against golden files with goldie; each
// golden line is the canonical encoding of one event:
//
//	{"seq":1,"target":"A","type":"targetResetStart"}
//	{"cached":false,"obsolete":false,"seq":4,"status":"ok","target":"A","type":"targetResetEnd"}
//
// Golden files live in testdata/golden/{name}.golden relative to the test.
// Regenerate with:
//
//	go test ./internal/build -update
//
// Checks return an *AssertionError that carries the full trace so failures
// can be read without rerunning.
package harness
