// Package transfer moves files between the worker, remote hosts and object
// storage.
package transfer

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/config"
)

// Localhost is the host name meaning "this machine"
const Localhost = "localhost"

// Client performs transfers. Commands such as scp and ssh go through Runner
// so tests can script them.
type Client struct {
	Runner command.Runner
	Logger *zap.Logger
	// HTTP replaces the Earthdata aware client built by HTTPTransferFile
	HTTP *http.Client

	URSMachine  string
	URSLogin    string
	URSPassword string
}

// New returns a client configured for the Earthdata host in cfg
func New(cfg *config.Config, runner command.Runner, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	machine, login, password := cfg.URSCredentials()
	return &Client{
		Runner:      runner,
		Logger:      logger,
		URSMachine:  machine,
		URSLogin:    login,
		URSPassword: password,
	}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Client) run(ctx context.Context, name string, args ...string) (string, error) {
	output, err := c.Runner.Run(ctx, "", name, args...)
	if len(output) > 0 {
		c.logger().Info(output)
	}
	return output, err
}

// CopyFile copies src to dst on the local machine, keeping the file mode
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	if info.IsDir() {
		return errors.Errorf("%s is a directory", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copying %s to %s", src, dst)
	}
	return errors.WithStack(os.Chmod(dst, info.Mode().Perm()))
}

// CopyFilesToDirectory copies each file into dir
func (c *Client) CopyFilesToDirectory(sources []string, dir string) error {
	for _, source := range sources {
		if err := CopyFile(source, filepath.Join(dir, filepath.Base(source))); err != nil {
			c.logger().Error("Failed to copy file", zap.String("file", source))
			return err
		}
	}
	c.logger().Info("Transfer complete - CP")
	return nil
}

// MoveFilesToDirectory renames each file into dir
func (c *Client) MoveFilesToDirectory(sources []string, dir string) error {
	for _, source := range sources {
		if err := os.Rename(source, filepath.Join(dir, filepath.Base(source))); err != nil {
			return errors.WithStack(err)
		}
	}
	c.logger().Info("Transfer complete - MOVE")
	return nil
}

// RemoteCopyFileToFile copies a file to another place on the same remote host
func (c *Client) RemoteCopyFileToFile(ctx context.Context, host, src, dst string) error {
	if _, err := c.run(ctx, "ssh", "-q", "-o", "StrictHostKeyChecking=no", host, "cp", src, dst); err != nil {
		c.logger().Error("Failed to copy file")
		return err
	}
	c.logger().Info("Transfer complete - SSH-CP")
	return nil
}

func hostPath(host, path string) string {
	if host == Localhost {
		return path
	}
	return host + ":" + path
}

func (c *Client) scp(ctx context.Context, recursive bool, srcHost, src, dstHost, dst string) error {
	if srcHost == dstHost {
		msg := "source and destination host match unable to scp"
		c.logger().Error(msg)
		return errors.New(msg)
	}

	args := []string{"-q", "-o", "StrictHostKeyChecking=no", "-C"}
	if recursive {
		args = append([]string{"-r"}, args...)
	}
	args = append(args, hostPath(srcHost, src), hostPath(dstHost, dst))

	if _, err := c.run(ctx, "scp", args...); err != nil {
		c.logger().Error("Failed to transfer data")
		return err
	}
	c.logger().Info("Transfer complete - SCP")
	return nil
}

// SCPTransferFile copies a file between hosts with scp. Wildcards in src
// require dst to be a directory.
func (c *Client) SCPTransferFile(ctx context.Context, srcHost, src, dstHost, dst string) error {
	return c.scp(ctx, false, srcHost, src, dstHost, dst)
}

// SCPTransferDirectory copies a directory tree between hosts with scp
func (c *Client) SCPTransferDirectory(ctx context.Context, srcHost, srcDir, dstHost, dstDir string) error {
	return c.scp(ctx, true, srcHost, srcDir, dstHost, dstDir)
}

// Credentials are the FTP login details supplied with an order
type Credentials struct {
	Username string
	Password string
}

func (cred *Credentials) usable() bool {
	return cred != nil && cred.Username != "" && cred.Password != ""
}

// TransferFile picks the cheapest way to move a file: a local copy, a copy
// on the remote host, FTP when credentials were given, and scp otherwise.
// FTP failures fall back to scp.
func (c *Client) TransferFile(ctx context.Context, srcHost, src, dstHost, dst string, srcCred, dstCred *Credentials) error {
	c.logger().Info("Transferring", zap.String("source", srcHost+":"+src), zap.String("destination", dstHost+":"+dst))

	if srcHost == Localhost && dstHost == Localhost {
		return CopyFile(src, dst)
	}

	if srcHost == dstHost {
		return c.RemoteCopyFileToFile(ctx, srcHost, src, dst)
	}

	var ftpErr error
	switch {
	case srcCred.usable():
		ftpErr = c.FTPFromRemoteLocation(ctx, srcCred.Username, srcCred.Password, srcHost, src, dst)
	case dstCred.usable():
		ftpErr = c.FTPToRemoteLocation(ctx, dstCred.Username, dstCred.Password, src, dstHost, dst)
	default:
		return c.SCPTransferFile(ctx, srcHost, src, dstHost, dst)
	}
	if ftpErr == nil {
		return nil
	}
	c.logger().Warn("FTP failures will attempt transfer using SCP", zap.Error(ftpErr))

	return c.SCPTransferFile(ctx, srcHost, src, dstHost, dst)
}

// ChangeOwnership runs chown on path. Nothing happens unless both user and
// group are known.
func (c *Client) ChangeOwnership(ctx context.Context, path, user, group string, recursive bool) error {
	if user == "" || group == "" {
		return nil
	}
	args := []string{user + ":" + group, path}
	if recursive {
		args = append([]string{"-R"}, args...)
	}
	_, err := c.run(ctx, "chown", args...)
	return err
}
