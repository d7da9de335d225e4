// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FakeWorker writes a shell script that speaks the worker line protocol.
type FakeWorker struct {
	Dir string
	// Lines is the number of "line N" lines written to stdout.
	Lines int
	// Exit makes the script exit after its last line instead of
	// reading acknowledgments until stdin closes.
	Exit bool
}

// NewFakeWorker creates a fake worker generator rooted at dir.
func NewFakeWorker(dir string, lines int) *FakeWorker {
	return &FakeWorker{Dir: dir, Lines: lines}
}

// ScriptPath is where Create writes the worker.
func (f *FakeWorker) ScriptPath() string {
	return filepath.Join(f.Dir, "worker.sh")
}

// AckPath is the file the worker appends every stdin line to.
func (f *FakeWorker) AckPath() string {
	return filepath.Join(f.Dir, "acks.log")
}

// Create writes the executable script and returns its path.
func (f *FakeWorker) Create() (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("i=1\n")
	fmt.Fprintf(&b, "while [ $i -le %d ]; do\n", f.Lines)
	b.WriteString("  echo \"line $i\"\n")
	b.WriteString("  i=$((i+1))\n")
	b.WriteString("done\n")
	if f.Exit {
		b.WriteString("exit 0\n")
	} else {
		fmt.Fprintf(&b, "while IFS= read -r ack; do echo \"$ack\" >> %q; done\n", f.AckPath())
	}

	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(f.ScriptPath(), []byte(b.String()), 0755); err != nil {
		return "", err
	}
	return f.ScriptPath(), nil
}

// Acks returns the acknowledgments the worker has received so far.
func (f *FakeWorker) Acks() []string {
	data, err := os.ReadFile(f.AckPath())
	if err != nil {
		return nil
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// MissingBinary returns a path under dir that does not exist.
func MissingBinary(dir string) string {
	return filepath.Join(dir, "no-such-worker")
}
