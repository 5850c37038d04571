package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kiln/internal/value"
)

// Render encodes a trace as one canonical JSON object per line.
func Render(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		line, err := value.Encode(ev.toValue())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// AssertGolden compares trace against testdata/golden/{name}.golden.
//
// To regenerate golden files, run the test with -update.
func AssertGolden(t *testing.T, name string, trace []TraceEvent) {
	t.Helper()

	data, err := Render(trace)
	if err != nil {
		t.Fatalf("render trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
