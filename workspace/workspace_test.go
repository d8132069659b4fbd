package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djzelenak/espa-worker/config"
)

func TestCheckWorkDir(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, CheckWorkDir(dir, nil))

	created := filepath.Join(dir, "new", "sandbox")
	assert.Equal(t, created, CheckWorkDir(created, nil))
	assert.DirExists(t, created)
}

func TestCheckWorkDir_Fallbacks(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	original := FallbackWorkDir
	defer func() { FallbackWorkDir = original }()

	FallbackWorkDir = t.TempDir()
	assert.Equal(t, FallbackWorkDir, CheckWorkDir(file, nil))

	FallbackWorkDir = ""
	cwd, _ := os.Getwd()
	assert.Equal(t, cwd, CheckWorkDir("", nil))
}

func TestInitialize_Local(t *testing.T) {
	cfg := config.Default()
	cfg.Set("espa_work_dir", t.TempDir())
	cfg.Set("espa_distribution_dir", "/output_product_cache")

	leftover := filepath.Join(cfg.WorkDir(), "o1-p1", "work", "old.img")
	require.NoError(t, os.MkdirAll(filepath.Dir(leftover), 0755))
	require.NoError(t, os.WriteFile(leftover, nil, 0644))

	dirs, err := Initialize(cfg, "o1", "p1", nil)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.WorkDir(), "o1-p1"), dirs.Product)
	assert.DirExists(t, dirs.Stage)
	assert.DirExists(t, dirs.Work)
	assert.NoFileExists(t, leftover)
	assert.Equal(t, "/output_product_cache", dirs.Output)

	dirs.Remove()
	assert.NoDirExists(t, dirs.Product)
}

func TestInitialize_Remote(t *testing.T) {
	cfg := config.Default()
	cfg.Set("espa_work_dir", t.TempDir())
	cfg.Set("espa_distribution_method", "remote")

	dirs, err := Initialize(cfg, "o1", "p1", nil)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dirs.Product, "output"), dirs.Output)
	assert.DirExists(t, dirs.Output)
}
