package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// PipeFlowYAML is a two-program flow whose first program feeds the second.
const PipeFlowYAML = `title: Pipe
programs:
  - binary: bin1
    stdout: true
    parameters:
      - keyword: params1
        type: flag
        value: "true"
  - binary: bin2
    stdin: true
    parameters:
      - keyword: params2
        type: flag
        value: "true"
`

// WriteFlow writes a flow document below dir and returns its path.
func WriteFlow(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
