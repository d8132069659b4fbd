// Package distribution packages finished products and delivers them to the
// online cache.
package distribution

import (
	"archive/tar"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/transfer"
)

// Package is a product archive and its checksum file
type Package struct {
	ProductFile string
	CksumFile   string
	// CksumValue is the checksum line, "<md5>  <archive name>"
	CksumValue string
}

// Distributor packages products and hands them to the configured
// distribution method.
type Distributor struct {
	Config   *config.Config
	Transfer *transfer.Client
	Runner   command.Runner
	Logger   *zap.Logger
	// RetryInterval is the wait between attempts, config.DefaultSleep when zero
	RetryInterval time.Duration
}

func (d *Distributor) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Distributor) retry(ctx context.Context, attempts int, what string, operation func() error) error {
	interval := d.RetryInterval
	if interval == 0 {
		interval = config.DefaultSleep
	}
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err != nil {
			d.logger().Warn(fmt.Sprintf("%s attempt %d of %d failed", what, attempt, attempts), zap.Error(err))
		}
		return err
	}, policy)
}

// setImmutable toggles the immutable attribute on the files that exist
func (d *Distributor) setImmutable(ctx context.Context, on bool, paths ...string) error {
	flag := "-i"
	if on {
		flag = "+i"
	}
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	_, err := d.Runner.Run(ctx, "", "chattr", append([]string{flag}, existing...)...)
	return err
}

// PackageProduct writes <destDir>/<name>.tar.gz holding everything in
// sourceDir, and <destDir>/<name>.md5 holding its checksum line.
func (d *Distributor) PackageProduct(ctx context.Context, immutable bool, sourceDir, destDir, name string) (Package, error) {
	pkg := Package{
		ProductFile: filepath.Join(destDir, name+".tar.gz"),
		CksumFile:   filepath.Join(destDir, name+"."+config.ChecksumExtension),
	}

	err := d.retry(ctx, config.MaxPackagingAttempts, "Packaging", func() error {
		if err := os.MkdirAll(destDir, 0755); err != nil {
			return errors.WithStack(err)
		}
		if immutable {
			if err := d.setImmutable(ctx, false, pkg.ProductFile, pkg.CksumFile); err != nil {
				return err
			}
		}

		d.logger().Info("Packaging product", zap.String("source", sourceDir), zap.String("product", pkg.ProductFile))
		if err := TarDirectory(sourceDir, pkg.ProductFile, d.Config.PigzThreads()); err != nil {
			return err
		}

		sum, err := MD5File(pkg.ProductFile)
		if err != nil {
			return err
		}
		pkg.CksumValue = fmt.Sprintf("%s  %s", sum, filepath.Base(pkg.ProductFile))
		if err := os.WriteFile(pkg.CksumFile, []byte(pkg.CksumValue+"\n"), 0644); err != nil {
			return errors.WithStack(err)
		}

		for _, path := range []string{pkg.ProductFile, pkg.CksumFile} {
			if err := os.Chmod(path, 0644); err != nil {
				return errors.WithStack(err)
			}
		}
		if immutable {
			return d.setImmutable(ctx, true, pkg.ProductFile, pkg.CksumFile)
		}
		return nil
	})
	if err != nil {
		return Package{}, errors.Wrap(err, "Failed to package product")
	}
	return pkg, nil
}

// TarDirectory archives every entry under sourceDir, with paths relative to
// it, into a gzip compressed tarball.
func TarDirectory(sourceDir, archivePath string, threads int) (err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	gz := pgzip.NewWriter(out)
	if threads > 0 {
		if err := gz.SetConcurrency(1<<20, threads); err != nil {
			return errors.WithStack(err)
		}
	}
	tw := tar.NewWriter(gz)

	walkErr := filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil || rel == "." {
			return err
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if walkErr != nil {
		return errors.Wrapf(walkErr, "archiving %s", sourceDir)
	}
	return errors.WithStack(multierr.Append(tw.Close(), gz.Close()))
}

func createDirectory(path string) error {
	return errors.WithStack(os.MkdirAll(path, 0755))
}

// MD5File returns the hex md5 digest of a file
func MD5File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", errors.WithStack(err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
