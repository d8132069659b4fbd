package transfer

import (
	"context"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FTPTimeout bounds the FTP dial and every command after it
var FTPTimeout = 60 * time.Second

func ftpAddress(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "21")
}

func absoluteRemote(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func dialFTP(ctx context.Context, username, password, host string) (*ftp.ServerConn, error) {
	unquoted, err := url.PathUnescape(password)
	if err != nil {
		unquoted = password
	}
	conn, err := ftp.Dial(ftpAddress(host), ftp.DialWithTimeout(FTPTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to ftp://%s", host)
	}
	if err := conn.Login(username, unquoted); err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "logging in to ftp://%s", host), conn.Quit())
	}
	return conn, nil
}

// FTPFromRemoteLocation retrieves remoteFile from host into localFile. The
// password may be URL quoted.
func (c *Client) FTPFromRemoteLocation(ctx context.Context, username, password, host, remoteFile, localFile string) (err error) {
	remoteFile = absoluteRemote(remoteFile)
	c.logger().Info("Transferring file", zap.String("from", "ftp://"+host+remoteFile), zap.String("to", localFile))

	out, err := os.Create(localFile)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	conn, err := dialFTP(ctx, username, password, host)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, conn.Quit())
	}()

	response, err := conn.Retr(remoteFile)
	if err != nil {
		return errors.Wrapf(err, "RETR %s", remoteFile)
	}
	defer func() {
		err = multierr.Append(err, response.Close())
	}()
	if _, err = out.ReadFrom(response); err != nil {
		return errors.Wrapf(err, "RETR %s", remoteFile)
	}

	c.logger().Info("Transfer complete - FTP")
	return nil
}

// FTPToRemoteLocation stores localFile on host as remoteFile. The remote
// directories must already exist.
func (c *Client) FTPToRemoteLocation(ctx context.Context, username, password, localFile, host, remoteFile string) (err error) {
	remoteFile = absoluteRemote(remoteFile)
	c.logger().Info("Transferring file", zap.String("from", localFile), zap.String("to", "ftp://"+host+remoteFile))

	in, err := os.Open(localFile)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	conn, err := dialFTP(ctx, username, password, host)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, conn.Quit())
	}()

	if err = conn.Stor(remoteFile, in); err != nil {
		return errors.Wrapf(err, "STOR %s", remoteFile)
	}

	c.logger().Info("Transfer complete - FTP")
	return nil
}
