// Package metadata locates and edits product metadata files.
package metadata

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FixMTL rewrites an MTL file without the binary garbage some historical
// files carry, renaming a .TIF extension to .txt. It returns the path to use.
func FixMTL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WithStack(err)
	}

	fixed := bytes.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f || r == 0xfffd:
			return -1
		}
		return r
	}, data)

	newPath := path
	if strings.HasSuffix(path, ".TIF") {
		newPath = strings.TrimSuffix(path, ".TIF") + ".txt"
	}
	if err := os.WriteFile(newPath, fixed, 0644); err != nil {
		return "", errors.WithStack(err)
	}
	if newPath != path {
		if err := os.Remove(path); err != nil {
			return "", errors.WithStack(err)
		}
	}
	return newPath, nil
}

// LandsatMTLFilename finds the MTL file for productID in workDir, fixes it,
// and returns its name relative to workDir.
func LandsatMTLFilename(workDir, productID string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	matches, err := filepath.Glob(filepath.Join(workDir, productID+"_MTL.*"))
	if err != nil {
		return "", errors.WithStack(err)
	}

	filename := ""
	for _, match := range matches {
		name := filepath.Base(match)
		if !strings.Contains(name, "old") && !strings.HasPrefix(name, "lnd") {
			filename = name
			break
		}
	}
	if filename == "" {
		return "", errors.Errorf("Unable to locate the MTL file in [%s]", workDir)
	}
	logger.Info("Located MTL file: [" + filename + "]")

	fixed, err := FixMTL(filepath.Join(workDir, filename))
	if err != nil {
		return "", err
	}
	filename = filepath.Base(fixed)
	logger.Info("Using MTL file: [" + filename + "]")
	return filename, nil
}
