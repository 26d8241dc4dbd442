// Package storage syncs strategy files from object storage to local disk.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// SyncResult reports one sync pass
type SyncResult struct {
	Downloaded int
	Skipped    int
}

// S3Syncer downloads .clj strategy files from an S3 bucket prefix into the
// local strategies directory. Objects are compared by size before download;
// unchanged files are skipped.
type S3Syncer struct {
	client   *s3.Client
	bucket   string
	prefix   string
	localDir string
	log      zerolog.Logger
}

// NewS3Syncer creates a syncer for bucket/prefix targeting localDir
func NewS3Syncer(ctx context.Context, region, bucket, prefix, localDir string, log zerolog.Logger) (*S3Syncer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return &S3Syncer{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		prefix:   prefix,
		localDir: localDir,
		log:      log.With().Str("component", "s3_sync").Logger(),
	}, nil
}

// Sync lists the bucket prefix and downloads new or changed strategy files
func (s *S3Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	if err := os.MkdirAll(s.localDir, 0o755); err != nil {
		return nil, err
	}

	result := &SyncResult{}
	downloader := manager.NewDownloader(s.client)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return result, err
		}

		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if !strings.HasSuffix(key, ".clj") {
				continue
			}

			localPath := filepath.Join(s.localDir, filepath.Base(key))
			if info, err := os.Stat(localPath); err == nil && info.Size() == aws.ToInt64(object.Size) {
				result.Skipped++
				continue
			}

			if err := s.download(ctx, downloader, key, localPath); err != nil {
				s.log.Error().Err(err).Str("key", key).Msg("Failed to download strategy file")
				continue
			}
			result.Downloaded++
			s.log.Info().Str("key", key).Str("path", localPath).Msg("Downloaded strategy file")
		}
	}

	return result, nil
}

func (s *S3Syncer) download(ctx context.Context, downloader *manager.Downloader, key, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
