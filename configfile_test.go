package taskgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithConfigFileAppliesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskgraph.toml")
	contents := `
window = 2048
dep_pool_capacity = 8192
trace_path = "trace.json"

[[workers]]
kind = 0
count = 3

[[workers]]
kind = 1
count = 1
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := resolveConfig([]Option{
		WithKernel(noopKernel),
		WithConfigFile(path),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), cfg.window)
	assert.Equal(t, uint32(8192), cfg.depPoolCapacity)
	assert.Equal(t, "trace.json", cfg.tracePath)
	assert.Equal(t, 3, cfg.workerCounts[KindCube])
	assert.Equal(t, 1, cfg.workerCounts[KindVector])
}

func TestWithConfigFileMissingFileIsConfigInvalid(t *testing.T) {
	_, err := resolveConfig([]Option{
		WithKernel(noopKernel),
		WithWorkers(KindCube, 1),
		WithConfigFile("/nonexistent/path/taskgraph.toml"),
	})
	require.Error(t, err)
	var ci *ConfigInvalid
	require.ErrorAs(t, err, &ci)
}
