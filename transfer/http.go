package transfer

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

// HTTPTimeout bounds a whole HTTP download
var HTTPTimeout = 300 * time.Second

// ErrConnectionTimedOut is returned by HTTPTransferFile after any failure
var ErrConnectionTimedOut = errors.New("Connection timed out")

// failureDelay is how long a failed HTTP download waits before giving up,
// so a struggling server is not hammered by every worker at once.
var failureDelay = func() time.Duration {
	return time.Duration(60+rand.Intn(540)) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: HTTPTimeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			c.authorize(req)
			return nil
		},
	}
}

// authorize adds the Earthdata login to requests bound for the login host
func (c *Client) authorize(req *http.Request) {
	if c.URSMachine != "" && req.URL.Hostname() == c.URSMachine {
		req.SetBasicAuth(c.URSLogin, c.URSPassword)
	}
}

// HTTPTransferFile downloads downloadURL into dst. On any failure it waits
// a random one to ten minutes and returns ErrConnectionTimedOut.
func (c *Client) HTTPTransferFile(ctx context.Context, downloadURL, dst string) error {
	c.logger().Info(downloadURL)

	err := c.httpGet(ctx, downloadURL, dst)
	if err == nil {
		c.logger().Info("Transfer Complete - HTTP")
		return nil
	}

	c.logger().Error("Transfer Issue - HTTP - "+downloadURL, zap.Error(err))
	delay := failureDelay()
	c.logger().Debug("Transfer Issue - Sleeping", zap.Duration("delay", delay))
	sleepContext(ctx, delay)
	return ErrConnectionTimedOut
}

func (c *Client) httpGet(ctx context.Context, downloadURL, dst string) error {
	client := c.httpClient()

	var response *http.Response
	// One retry on connection problems
	operation := func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.authorize(request)
		response, err = client.Do(request)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		c.logger().Error("Transfer Failed - HTTP")
		return errors.Errorf("%d %s for url: %s", response.StatusCode, http.StatusText(response.StatusCode), downloadURL)
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = out.ReadFrom(response.Body)
	return multierr.Append(errors.WithStack(err), out.Close())
}

// DownloadFileURL fetches a product input by URL. http(s), file and any
// registered gocloud bucket scheme are understood.
func (c *Client) DownloadFileURL(ctx context.Context, downloadURL, dst string) error {
	if unquoted, err := url.PathUnescape(downloadURL); err == nil {
		downloadURL = unquoted
	}

	switch {
	case strings.HasPrefix(downloadURL, "http"):
		return c.HTTPTransferFile(ctx, downloadURL, dst)
	case strings.HasPrefix(downloadURL, "file://"):
		return c.TransferFile(ctx, Localhost, strings.TrimPrefix(downloadURL, "file://"), Localhost, dst, nil, nil)
	}

	if parsed, err := url.Parse(downloadURL); err == nil && blob.DefaultURLMux().ValidBucketScheme(parsed.Scheme) {
		bucketURL, key, err := SplitBlobURL(downloadURL)
		if err != nil {
			return err
		}
		return c.DownloadBlob(ctx, bucketURL, key, dst)
	}

	return errors.Errorf("Transfer Failed - Unknown URL transport protocol [%s]", downloadURL)
}
