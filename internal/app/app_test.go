package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/common"
)

const jobTOML = `
name = "taste-survey"

[[models]]
provider = "test"
model = "test-model"

[[agents]]
name = "sam"
instruction = "Answer tersely."
[agents.traits]
age = 30

[[scenarios]]
food = "pizza"

[[scenarios]]
food = "sushi"

[[survey.questions]]
name = "likes"
type = "yes_no"
text = "Do you like {{ food }}?"

[[survey.questions]]
name = "why"
type = "free_text"
text = "Why is that?"

[run]
iterations = 1
`

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	return cfg
}

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJobParsesDefinition(t *testing.T) {
	cfg := testConfig(t)
	def, err := LoadJob(writeJobFile(t, jobTOML), cfg.Run)
	require.NoError(t, err)

	assert.Equal(t, "taste-survey", def.Name)
	require.Len(t, def.Models, 1)
	assert.Equal(t, "test", def.Models[0].Provider)
	assert.Len(t, def.Survey.Questions, 2)
	assert.Len(t, def.Scenarios, 2)
	// The [run] section inherits unnamed settings from the application.
	assert.Equal(t, cfg.Run.MaxConcurrent, def.Run.MaxConcurrent)
}

func TestLoadJobRejectsMissingModels(t *testing.T) {
	cfg := testConfig(t)
	content := `
[[survey.questions]]
name = "q"
type = "free_text"
text = "Q?"
`
	_, err := LoadJob(writeJobFile(t, content), cfg.Run)
	assert.Error(t, err, "job without models must fail validation")
}

func TestRunJobEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	output := filepath.Join(t.TempDir(), "results.json")
	def, err := LoadJob(writeJobFile(t, jobTOML), cfg.Run)
	require.NoError(t, err)
	def.Output = output

	collected, err := a.RunJob(context.Background(), def)
	require.NoError(t, err)

	// 1 agent x 2 scenarios x 1 model x 1 iteration.
	assert.Equal(t, 2, collected.Len())
	assert.False(t, collected.HasExceptions(), "unexpected exceptions: %v", collected.TaskHistory.Entries)
	assert.FileExists(t, output)
}

func TestRunJobResponsesAreCachedAcrossRuns(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	def, err := LoadJob(writeJobFile(t, jobTOML), cfg.Run)
	require.NoError(t, err)

	_, err = a.RunJob(context.Background(), def)
	require.NoError(t, err)
	entries := a.Cache.Len()
	assert.Equal(t, 4, entries, "2 questions x 2 scenarios")

	_, err = a.RunJob(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, entries, a.Cache.Len(), "second run must hit the cache, not grow it")
}
