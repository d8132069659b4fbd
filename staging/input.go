package staging

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/transfer"
)

// DownloadInput fetches the product input to <stageDir>/<productID><ext>
func (s *Stager) DownloadInput(ctx context.Context, downloadURL, stageDir, productID, ext string) (string, error) {
	staged := filepath.Join(stageDir, productID+ext)
	if err := s.Transfer.DownloadFileURL(ctx, downloadURL, staged); err != nil {
		return "", err
	}
	return staged, nil
}

// StageArchive downloads a product archive and unpacks it into workDir.
// The downloaded archive is removed afterwards.
func (s *Stager) StageArchive(ctx context.Context, downloadURL, stageDir, workDir, productID, ext string) error {
	staged, err := s.DownloadInput(ctx, downloadURL, stageDir, productID, ext)
	if err != nil {
		return err
	}
	if err := UntarData(staged, workDir, s.Config.PigzThreads(), s.logger()); err != nil {
		return err
	}
	return RemoveFile(staged)
}

// StageFile downloads a single product file and moves it into workDir. It
// returns the path of the file in workDir.
func (s *Stager) StageFile(ctx context.Context, downloadURL, stageDir, workDir, productID, ext string) (string, error) {
	staged, err := s.DownloadInput(ctx, downloadURL, stageDir, productID, ext)
	if err != nil {
		return "", err
	}
	workFile := filepath.Join(workDir, filepath.Base(staged))
	if err := transfer.CopyFile(staged, workFile); err != nil {
		return "", err
	}
	return workFile, RemoveFile(staged)
}

// FlattenSAFE moves the contents of every *.SAFE directory in workDir up
// into workDir and removes the emptied directories.
func FlattenSAFE(workDir string, logger *zap.Logger) error {
	safes, err := filepath.Glob(filepath.Join(workDir, "*.SAFE"))
	if err != nil {
		return errors.WithStack(err)
	}

	var errs error
	for _, safe := range safes {
		entries, err := os.ReadDir(safe)
		if err != nil {
			errs = multierr.Append(errs, errors.WithStack(err))
			continue
		}
		for _, entry := range entries {
			target := filepath.Join(workDir, entry.Name())
			if err := os.Rename(filepath.Join(safe, entry.Name()), target); err != nil {
				errs = multierr.Append(errs, errors.WithStack(err))
			}
		}
		errs = multierr.Append(errs, errors.WithStack(os.RemoveAll(safe)))
	}
	if errs == nil && logger != nil {
		logger.Info("Completed staging Sentinel-2 files in working directory")
	}
	return errs
}
