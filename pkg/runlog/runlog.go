// Package runlog writes per-run diagnostic artifacts: prompts, raw LLM
// responses, parse failures, and the final graph summary. Artifact writes
// are best-effort; failures are logged and never fail the run.
package runlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseDir is where runs land relative to the working directory.
const DefaultBaseDir = ".onemcp/runs"

// Run is one indexing run's artifact directory.
type Run struct {
	ID     string
	dir    string
	logger *slog.Logger
	// disabled marks a run whose directory could not be created; writes
	// become no-ops.
	disabled bool
}

// New creates a run directory under baseDir. The run id embeds a timestamp
// plus a random suffix so concurrent runs never collide.
func New(baseDir string, logger *slog.Logger) *Run {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	dir := filepath.Join(baseDir, id)

	r := &Run{ID: id, dir: dir, logger: logger}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("failed to create run artifact directory", "dir", dir, "error", err)
		r.disabled = true
	}
	return r
}

// Dir returns the run's artifact directory.
func (r *Run) Dir() string {
	return r.dir
}

// Prompt records the rendered prompt for one extraction call.
func (r *Run) Prompt(chunkID string, content string) {
	r.write("prompt", chunkID, "txt", []byte(content))
}

// Response records one raw LLM response.
func (r *Run) Response(chunkID string, content string) {
	r.write("response", chunkID, "txt", []byte(content))
}

// ParseFailure records a malformed response together with the parser
// diagnostics and the caller's stack, for offline debugging.
func (r *Run) ParseFailure(chunkID string, raw string, diagnostics []string) {
	var b strings.Builder
	b.WriteString("diagnostics:\n")
	for _, d := range diagnostics {
		b.WriteString("  - ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("\nstack:\n")
	b.Write(debug.Stack())
	b.WriteString("\nraw response:\n")
	b.WriteString(raw)
	r.write("llm-malformed", chunkID, "txt", []byte(b.String()))
}

// Summary records the final per-run summary as JSON.
func (r *Run) Summary(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.Warn("failed to marshal run summary", "run", r.ID, "error", err)
		return
	}
	r.write("summary", "", "json", data)
}

func (r *Run) write(kind, label, ext string, data []byte) {
	if r.disabled {
		return
	}
	name := kind
	if label != "" {
		name += "-" + sanitize(label)
	}
	name += "-" + uuid.NewString()[:8] + "." + ext

	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn("failed to write run artifact", "path", path, "error", err)
	}
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// List returns the artifact file names currently in the run directory,
// mostly for tests and the CLI's run inspection output.
func (r *Run) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list run artifacts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
