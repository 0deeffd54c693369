package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWritesArtifacts(t *testing.T) {
	base := t.TempDir()
	run := New(base, nil)
	require.NotEmpty(t, run.ID)

	run.Prompt("sales-api#1/2", "system: extract\nuser: spec")
	run.Response("sales-api#1/2", `{"entities":[]}`)
	run.ParseFailure("sales-api#2/2", "garbled", []string{"no JSON object found"})
	run.Summary(map[string]int{"entities": 3})

	names, err := run.List()
	require.NoError(t, err)
	require.Len(t, names, 4)

	var kinds []string
	for _, n := range names {
		kinds = append(kinds, strings.SplitN(n, "-", 2)[0])
	}
	assert.Contains(t, kinds, "prompt")
	assert.Contains(t, kinds, "response")
	assert.Contains(t, kinds, "llm")
	assert.Contains(t, kinds, "summary")
}

func TestParseFailureArtifactCarriesRawAndDiagnostics(t *testing.T) {
	base := t.TempDir()
	run := New(base, nil)
	run.ParseFailure("c1", "raw body here", []string{"first-pass repair insufficient"})

	names, err := run.List()
	require.NoError(t, err)
	require.Len(t, names, 1)

	data, err := os.ReadFile(filepath.Join(run.Dir(), names[0]))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "raw body here")
	assert.Contains(t, content, "first-pass repair insufficient")
	assert.Contains(t, content, "stack:")
}

func TestConcurrentRunsGetDistinctDirectories(t *testing.T) {
	base := t.TempDir()
	a := New(base, nil)
	b := New(base, nil)
	assert.NotEqual(t, a.Dir(), b.Dir())
}

func TestUnwritableBaseIsNotFatal(t *testing.T) {
	run := New(filepath.Join(t.TempDir(), "file-in-the-way", "x"), nil)
	// Force the failure path by pointing at an uncreatable location.
	run.disabled = true
	run.Prompt("c", "never written")
}

func TestLabelSanitization(t *testing.T) {
	run := New(t.TempDir(), nil)
	run.Prompt("sales api#1/2", "p")

	names, err := run.List()
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "prompt-sales_api_1_2-"))
}
