package transfer

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	defaultPickHost = rand.Intn
	pickHost        = defaultPickHost
)

// ErrNoCacheHosts is returned when none of the online cache hosts answer
var ErrNoCacheHosts = errors.New("No online cache hosts available...")

// GetCacheHostname picks a random cache host that answers a ping. Hosts
// that do not answer are dropped before picking again.
func (c *Client) GetCacheHostname(ctx context.Context, hosts []string) (string, error) {
	candidates := append([]string(nil), hosts...)
	for len(candidates) > 0 {
		i := pickHost(len(candidates))
		host := candidates[i]
		if _, err := c.Runner.Run(ctx, "", "ping", "-q", "-c", "1", host); err == nil {
			return host, nil
		}
		c.logger().Warn("Cache host is not reachable", zap.String("host", host))
		candidates = append(candidates[:i], candidates[i+1:]...)
	}
	return "", ErrNoCacheHosts
}

// BuildNetrc writes the Earthdata login into <home>/.netrc. An empty home
// means the current user's home directory.
func (c *Client) BuildNetrc(home string) (string, error) {
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", errors.Wrap(err, "No home directory found!")
		}
	}
	if c.URSMachine == "" || c.URSLogin == "" || c.URSPassword == "" {
		return "", errors.New("URS credentials not found!")
	}

	path := filepath.Join(home, ".netrc")
	contents := fmt.Sprintf("machine %s\nlogin %s\npassword %s", c.URSMachine, c.URSLogin, c.URSPassword)
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		return "", errors.Wrap(err, "Exception encountered creating .netrc")
	}
	return path, nil
}
