package transfer

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

// SplitBlobURL turns s3://bucket/path/key?region=x into the bucket URL
// s3://bucket?region=x and the key path/key.
func SplitBlobURL(raw string) (bucketURL, key string, err error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.WithStack(err)
	}
	key = strings.TrimPrefix(parsed.Path, "/")
	if key == "" {
		return "", "", errors.Errorf("No object key in %s", raw)
	}
	parsed.Path = ""
	return parsed.String(), key, nil
}

// JoinBlobKey joins key parts with the "/" separator buckets use
func JoinBlobKey(parts ...string) string {
	var cleaned []string
	for _, part := range parts {
		if part = strings.Trim(part, "/"); part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "/")
}

// DownloadBlob copies one object out of a bucket into dst
func (c *Client) DownloadBlob(ctx context.Context, bucketURL, key, dst string) (err error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return errors.Wrapf(err, "opening bucket %s", bucketURL)
	}
	defer func() {
		err = multierr.Append(err, bucket.Close())
	}()

	reader, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return errors.Wrapf(err, "reading %s from %s", key, bucketURL)
	}
	defer reader.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err = io.Copy(out, reader); err != nil {
		out.Close()
		return errors.Wrapf(err, "reading %s from %s", key, bucketURL)
	}
	if err = out.Close(); err != nil {
		return errors.WithStack(err)
	}

	c.logger().Info("Transfer complete - BLOB", zap.String("key", key))
	return nil
}

// UploadBlob writes src into the bucket under key
func (c *Client) UploadBlob(ctx context.Context, bucketURL, key, src string) (err error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return errors.Wrapf(err, "opening bucket %s", bucketURL)
	}
	defer func() {
		err = multierr.Append(err, bucket.Close())
	}()

	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	writer, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return errors.Wrapf(err, "writing %s to %s", key, bucketURL)
	}
	if _, err = io.Copy(writer, in); err != nil {
		writer.Close()
		return errors.Wrapf(err, "writing %s to %s", key, bucketURL)
	}
	if err = writer.Close(); err != nil {
		return errors.Wrapf(err, "writing %s to %s", key, bucketURL)
	}

	c.logger().Info("Transfer complete - BLOB", zap.String("key", key))
	return nil
}

// ListBlobs returns every key under prefix
func (c *Client) ListBlobs(ctx context.Context, bucketURL, prefix string) (keys []string, err error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bucket %s", bucketURL)
	}
	defer func() {
		err = multierr.Append(err, bucket.Close())
	}()

	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s in %s", prefix, bucketURL)
		}
		if !obj.IsDir {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}
