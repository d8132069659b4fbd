package distribution

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/djzelenak/espa-worker/config"
	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/transfer"
)

// DistributeProduct packages the contents of sourceDir as name and delivers
// it using the configured distribution method. packagingDir holds the
// package for the remote and blob methods.
func (d *Distributor) DistributeProduct(ctx context.Context, immutable bool, name, sourceDir, packagingDir, orderID string) (model.Delivery, error) {
	var delivery model.Delivery
	err := d.retry(ctx, config.MaxDistributionAttempts, "Distribution", func() error {
		var err error
		switch d.Config.DistributionMethod() {
		case config.DistributionMethodRemote:
			delivery, err = d.distributeRemote(ctx, immutable, name, sourceDir, packagingDir, orderID)
		case config.DistributionMethodBlob:
			delivery, err = d.distributeBlob(ctx, immutable, name, sourceDir, packagingDir, orderID)
		default:
			delivery, err = d.distributeLocal(ctx, immutable, name, sourceDir, orderID)
		}
		return err
	})
	if err != nil {
		return model.FailedDelivery, err
	}
	return delivery, nil
}

func (d *Distributor) distributeLocal(ctx context.Context, immutable bool, name, sourceDir, orderID string) (model.Delivery, error) {
	orderDir := filepath.Join(d.Config.DistributionDir(), orderID)

	pkg, err := d.PackageProduct(ctx, immutable, sourceDir, orderDir, name)
	if err != nil {
		return model.Delivery{}, err
	}
	if err := d.Transfer.ChangeOwnership(ctx, orderDir, d.Config.User(), d.Config.Group(), true); err != nil {
		return model.Delivery{}, err
	}
	return model.Delivery{ProductFile: pkg.ProductFile, CksumFile: pkg.CksumFile, CksumValue: pkg.CksumValue}, nil
}

func (d *Distributor) distributeRemote(ctx context.Context, immutable bool, name, sourceDir, packagingDir, orderID string) (model.Delivery, error) {
	pkg, err := d.PackageProduct(ctx, immutable, sourceDir, packagingDir, name)
	if err != nil {
		return model.Delivery{}, err
	}

	cacheHost, err := d.Transfer.GetCacheHostname(ctx, d.Config.CacheHosts())
	if err != nil {
		return model.Delivery{}, err
	}
	cacheDir := filepath.Join(config.RemoteCacheDirectory, orderID)
	if _, err := d.Runner.Run(ctx, "", "ssh", "-q", "-o", "StrictHostKeyChecking=no", cacheHost, "mkdir", "-p", cacheDir); err != nil {
		return model.Delivery{}, err
	}

	delivery := model.Delivery{
		ProductFile: filepath.Join(cacheDir, filepath.Base(pkg.ProductFile)),
		CksumFile:   filepath.Join(cacheDir, filepath.Base(pkg.CksumFile)),
		CksumValue:  pkg.CksumValue,
	}
	err = d.retry(ctx, config.MaxDeliveryAttempts, "Delivery", func() error {
		if err := d.Transfer.SCPTransferFile(ctx, transfer.Localhost, pkg.ProductFile, cacheHost, delivery.ProductFile); err != nil {
			return err
		}
		if err := d.Transfer.SCPTransferFile(ctx, transfer.Localhost, pkg.CksumFile, cacheHost, delivery.CksumFile); err != nil {
			return err
		}
		return d.verifyRemote(ctx, cacheHost, delivery.ProductFile, pkg.CksumValue)
	})
	if err != nil {
		return model.Delivery{}, err
	}
	return delivery, nil
}

// verifyRemote compares the checksum of the delivered archive with the local one
func (d *Distributor) verifyRemote(ctx context.Context, host, remoteFile, localCksum string) error {
	output, err := d.Runner.Run(ctx, "", "ssh", "-q", "-o", "StrictHostKeyChecking=no", host, config.ChecksumTool, remoteFile)
	if err != nil {
		return err
	}
	remote := strings.Fields(output)
	local := strings.Fields(localCksum)
	if len(remote) == 0 || len(local) == 0 || remote[0] != local[0] {
		return errors.Errorf("Error comparing checksums for %s: local [%s] remote [%s]", remoteFile, localCksum, output)
	}
	return nil
}

func (d *Distributor) distributeBlob(ctx context.Context, immutable bool, name, sourceDir, packagingDir, orderID string) (model.Delivery, error) {
	bucketURL := d.Config.DistributionBucket()
	if bucketURL == "" {
		return model.Delivery{}, errors.New("espa_distribution_bucket is required for blob distribution")
	}

	pkg, err := d.PackageProduct(ctx, immutable, sourceDir, packagingDir, name)
	if err != nil {
		return model.Delivery{}, err
	}

	productKey := transfer.JoinBlobKey(orderID, filepath.Base(pkg.ProductFile))
	cksumKey := transfer.JoinBlobKey(orderID, filepath.Base(pkg.CksumFile))
	err = d.retry(ctx, config.MaxDeliveryAttempts, "Delivery", func() error {
		if err := d.Transfer.UploadBlob(ctx, bucketURL, productKey, pkg.ProductFile); err != nil {
			return err
		}
		return d.Transfer.UploadBlob(ctx, bucketURL, cksumKey, pkg.CksumFile)
	})
	if err != nil {
		return model.Delivery{}, err
	}

	base := strings.TrimRight(bucketURL, "/")
	return model.Delivery{
		ProductFile: base + "/" + productKey,
		CksumFile:   base + "/" + cksumKey,
		CksumValue:  pkg.CksumValue,
	}, nil
}

// DistributeStatistics delivers <workDir>/stats next to where the order's
// products go.
func (d *Distributor) DistributeStatistics(ctx context.Context, immutable bool, workDir, orderID string) error {
	statsDir := filepath.Join(workDir, "stats")
	files, err := filepath.Glob(filepath.Join(statsDir, "*"))
	if err != nil {
		return errors.WithStack(err)
	}

	return d.retry(ctx, config.MaxDistributionAttempts, "Statistics distribution", func() error {
		switch d.Config.DistributionMethod() {
		case config.DistributionMethodRemote:
			cacheHost, err := d.Transfer.GetCacheHostname(ctx, d.Config.CacheHosts())
			if err != nil {
				return err
			}
			cacheDir := filepath.Join(config.RemoteCacheDirectory, orderID)
			if _, err := d.Runner.Run(ctx, "", "ssh", "-q", "-o", "StrictHostKeyChecking=no", cacheHost, "mkdir", "-p", cacheDir); err != nil {
				return err
			}
			return d.Transfer.SCPTransferDirectory(ctx, transfer.Localhost, statsDir, cacheHost, cacheDir)

		case config.DistributionMethodBlob:
			for _, file := range files {
				key := transfer.JoinBlobKey(orderID, "stats", filepath.Base(file))
				if err := d.Transfer.UploadBlob(ctx, d.Config.DistributionBucket(), key, file); err != nil {
					return err
				}
			}
			return nil
		}

		destDir := filepath.Join(d.Config.DistributionDir(), orderID, "stats")
		if err := createDirectory(destDir); err != nil {
			return err
		}
		var copied []string
		for _, file := range files {
			copied = append(copied, filepath.Join(destDir, filepath.Base(file)))
		}
		if immutable {
			if err := d.setImmutable(ctx, false, copied...); err != nil {
				return err
			}
		}
		if err := d.Transfer.CopyFilesToDirectory(files, destDir); err != nil {
			return err
		}
		if immutable {
			if err := d.setImmutable(ctx, true, copied...); err != nil {
				return err
			}
		}
		d.logger().Info("Distributed statistics", zap.Int("files", len(files)), zap.String("destination", destDir))
		return d.Transfer.ChangeOwnership(ctx, destDir, d.Config.User(), d.Config.Group(), true)
	})
}
