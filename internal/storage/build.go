package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// Options select and configure the archive backend.
type Options struct {
	Bucket   string
	Region   string
	Endpoint string
	Profile  string
	LocalDir string
}

// Build returns an S3 archive, or a local directory when no bucket is set.
func Build(ctx context.Context, opts Options, logger logrus.FieldLogger) (Archive, error) {
	if opts.Bucket == "" {
		if opts.LocalDir == "" {
			return nil, fmt.Errorf("storage bucket or local directory is required")
		}
		logger.WithField("dir", opts.LocalDir).Info("archiving statements locally")
		return NewLocalArchive(opts.LocalDir), nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(opts.Region),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(opts.Profile))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.WithFields(logrus.Fields{"bucket": opts.Bucket, "region": opts.Region}).Info("archiving statements in s3")
	return NewS3Archive(client, opts.Bucket), nil
}
