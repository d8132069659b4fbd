package staging

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/transfer"
)

// Stager brings previously distributed statistics back for plotting
type Stager struct {
	Config   *config.Config
	Transfer *transfer.Client
	Logger   *zap.Logger
}

func (s *Stager) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// StageLocalStatisticsData copies <outputDir>/<orderID>/stats/* into workDir
func (s *Stager) StageLocalStatisticsData(outputDir, workDir, orderID string) error {
	cacheDir := filepath.Join(outputDir, config.LocalCacheDirectory, orderID, "stats")
	files, err := filepath.Glob(filepath.Join(cacheDir, "*"))
	if err != nil {
		return errors.WithStack(err)
	}
	return s.Transfer.CopyFilesToDirectory(files, workDir)
}

// StageRemoteStatisticsData pulls the order's stats directory from an online
// cache host into stageDir, then moves the files into workDir.
func (s *Stager) StageRemoteStatisticsData(ctx context.Context, stageDir, workDir, orderID string) error {
	cacheHost, err := s.Transfer.GetCacheHostname(ctx, s.Config.CacheHosts())
	if err != nil {
		return err
	}
	cacheDir := filepath.Join(config.RemoteCacheDirectory, orderID, "stats")

	if err := s.Transfer.SCPTransferDirectory(ctx, cacheHost, cacheDir, transfer.Localhost, stageDir); err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(stageDir, "stats", "*"))
	if err != nil {
		return errors.WithStack(err)
	}
	return s.Transfer.MoveFilesToDirectory(files, workDir)
}

// StageBlobStatisticsData downloads every object under <orderID>/stats/
func (s *Stager) StageBlobStatisticsData(ctx context.Context, bucketURL, workDir, orderID string) error {
	prefix := transfer.JoinBlobKey(orderID, "stats") + "/"
	keys, err := s.Transfer.ListBlobs(ctx, bucketURL, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Transfer.DownloadBlob(ctx, bucketURL, key, filepath.Join(workDir, filepath.Base(key))); err != nil {
			return err
		}
	}
	s.logger().Info("Staged statistics", zap.Int("files", len(keys)), zap.String("bucket", bucketURL))
	return nil
}

// StageStatisticsData stages statistics from wherever the distribution
// method put them.
func (s *Stager) StageStatisticsData(ctx context.Context, outputDir, stageDir, workDir, orderID string) error {
	switch s.Config.DistributionMethod() {
	case config.DistributionMethodRemote:
		return s.StageRemoteStatisticsData(ctx, stageDir, workDir, orderID)
	case config.DistributionMethodBlob:
		return s.StageBlobStatisticsData(ctx, s.Config.DistributionBucket(), workDir, orderID)
	}
	return s.StageLocalStatisticsData(outputDir, workDir, orderID)
}

// RemoveFile deletes path, ignoring a file that is already gone
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}
