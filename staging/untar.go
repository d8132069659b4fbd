// Package staging places input and statistics data in a product's
// processing directories.
package staging

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var gzipMagic = []byte{0x1f, 0x8b}

// UntarData extracts a .tar or .tar.gz archive into dest. Compressed
// archives are inflated with up to threads blocks in flight.
func UntarData(source, dest string, threads int, logger *zap.Logger) (err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Unpacking", zap.String("source", source), zap.String("destination", dest))

	file, err := os.Open(source)
	if err != nil {
		return errors.Wrap(err, "Failed to unpack data")
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	var stream io.Reader = buffered
	if magic, _ := buffered.Peek(len(gzipMagic)); bytes.Equal(magic, gzipMagic) {
		if threads < 1 {
			threads = 1
		}
		gz, err := pgzip.NewReaderN(buffered, 1<<20, threads)
		if err != nil {
			return errors.Wrapf(err, "Failed to unpack data from %s", source)
		}
		defer func() {
			err = multierr.Append(err, gz.Close())
		}()
		stream = gz
	}

	if err = extract(tar.NewReader(stream), dest, logger); err != nil {
		return errors.Wrapf(err, "Failed to unpack data from %s", source)
	}
	return nil
}

// within resolves name under root, refusing anything that would escape it
func within(root, name string) (string, error) {
	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("archive entry %s is outside %s", name, root)
	}
	return target, nil
}

// noSymlinkParents refuses a path under root whose existing parent
// directories include a symlink
func noSymlinkParents(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return errors.WithStack(err)
	}
	if rel == "." {
		return nil
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.Errorf("archive entry %s passes through symlink %s", target, current)
		}
	}
	return nil
}

// removeSymlink clears a symlink at target so a new entry does not write through it
func removeSymlink(target string) error {
	info, err := os.Lstat(target)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(target)
}

func extract(reader *tar.Reader, dest string, logger *zap.Logger) error {
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := within(dest, header.Name)
		if err != nil {
			return err
		}
		if err := noSymlinkParents(dest, target); err != nil {
			return err
		}
		logger.Debug(header.Name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()|0700); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := removeSymlink(target); err != nil {
				return err
			}
			if err := writeEntry(reader, target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) {
				return errors.Errorf("archive symlink %s points to absolute path %s", header.Name, header.Linkname)
			}
			relTarget, err := filepath.Rel(dest, filepath.Join(filepath.Dir(target), header.Linkname))
			if err != nil {
				return errors.WithStack(err)
			}
			if _, err := within(dest, relTarget); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}

		case tar.TypeLink:
			source, err := within(dest, header.Linkname)
			if err != nil {
				return err
			}
			if err := noSymlinkParents(dest, source); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return err
			}

		default:
			logger.Warn("Skipping unsupported archive entry", zap.String("name", header.Name))
		}
	}
}

func writeEntry(reader io.Reader, target string, mode os.FileMode) (err error) {
	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()
	_, err = io.Copy(out, reader)
	return err
}
