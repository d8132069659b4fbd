// Package workspace lays out the directories a product is processed in.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/config"
)

// FallbackWorkDir is tried when the configured work directory is unusable
var FallbackWorkDir = "/home/espa"

// Directories of a single product request
type Directories struct {
	Product string
	Stage   string
	Work    string
	// Output is the distribution directory itself for local distribution
	Output string
}

// CreateDirectory makes path, and its parents, with mode 0755. An existing
// directory is fine.
func CreateDirectory(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Chmod(path, 0755))
}

func usable(path string) bool {
	if path == "" {
		return false
	}
	if info, err := os.Stat(path); err == nil {
		return info.IsDir()
	}
	return os.MkdirAll(path, 0755) == nil
}

// CheckWorkDir returns an absolute base work directory. The configured path
// is used when it exists or can be created, then FallbackWorkDir, then the
// current directory.
func CheckWorkDir(path string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !usable(path) {
		path = FallbackWorkDir
		logger.Warn("Processing work directory not found, trying " + path)
	}
	if !usable(path) {
		cwd, _ := os.Getwd()
		logger.Warn("Fallback working directory option is not valid, setting to " + cwd)
		return cwd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	logger.Info("Working directory is set to " + abs)
	return abs
}

// Initialize creates <work>/<order>-<product> with its stage and work
// directories. Anything left over from an earlier attempt is removed first.
func Initialize(cfg *config.Config, orderID, productID string, logger *zap.Logger) (Directories, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := CheckWorkDir(cfg.WorkDir(), logger)

	dirs := Directories{Product: filepath.Join(base, orderID+"-"+productID)}
	os.RemoveAll(dirs.Product)

	dirs.Stage = filepath.Join(dirs.Product, "stage")
	if err := CreateDirectory(dirs.Stage); err != nil {
		return dirs, err
	}
	logger.Info("Created directory [" + dirs.Stage + "]")

	dirs.Work = filepath.Join(dirs.Product, "work")
	if err := CreateDirectory(dirs.Work); err != nil {
		return dirs, err
	}
	logger.Info("Created directory [" + dirs.Work + "]")

	if cfg.DistributionMethod() == config.DistributionMethodLocal {
		dirs.Output = cfg.DistributionDir()
		return dirs, nil
	}
	dirs.Output = filepath.Join(dirs.Product, "output")
	return dirs, CreateDirectory(dirs.Output)
}

// Remove deletes the product directory, ignoring errors
func (d Directories) Remove() {
	if d.Product != "" {
		os.RemoveAll(d.Product)
	}
}
