package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles per-test fixtures.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a helper whose debug logger writes through t.Log, so
// log lines show up only for failing or verbose tests.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	w := &testWriter{t: t}
	t.Cleanup(func() { w.done.Store(true) })
	logger.SetOutput(w)
	return &TestHelper{T: t, Logger: logger}
}

// testWriter drops lines written after the test finished; t.Log panics then.
type testWriter struct {
	t    *testing.T
	done atomic.Bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	if w.done.Load() {
		return len(p), nil
	}
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// ProjectFile reads a file relative to the module root (the directory
// holding go.mod).
func ProjectFile(relPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return "", fmt.Errorf("could not find project root (go.mod not found)")
		}
		root = parent
	}

	path := filepath.Join(root, relPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(data), nil
}

// WriteTempFile writes content to a file in a per-test directory and returns its path.
func (h *TestHelper) WriteTempFile(name, content string) string {
	h.T.Helper()
	path := filepath.Join(h.T.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		h.T.Fatalf("write %s: %v", path, err)
	}
	return path
}
