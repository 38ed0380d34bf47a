// Package services holds integrations with external systems.
package services

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/paperminder/paperminder/internal/config"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/platform"
	"gorm.io/gorm"
)

// Firmware objects live under {channel}/{platform}/FW{version}.bin.
var firmwareKeyRegex = regexp.MustCompile(`^(stable|beta|canary)/([a-z0-9_-]+)/FW([0-9.]+)\.bin$`)

// S3FirmwareImporter syncs firmware binaries from an S3 bucket into the
// store. Only (version, platform) pairs not already present are fetched.
type S3FirmwareImporter struct {
	client   *s3.Client
	bucket   string
	firmware *database.FirmwareService
	maxSize  int64
}

// NewS3FirmwareImporter builds an importer from S3_FIRMWARE_BUCKET,
// S3_REGION, optional S3_ENDPOINT (MinIO) and optional static credentials
// S3_ACCESS_KEY / S3_SECRET_KEY. Returns an error when no bucket is
// configured.
func NewS3FirmwareImporter(ctx context.Context, db *gorm.DB) (*S3FirmwareImporter, error) {
	bucket := config.Get("S3_FIRMWARE_BUCKET", "")
	if bucket == "" {
		return nil, errors.New("S3 firmware import is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Get("S3_REGION", "us-east-1")),
	}
	if accessKey := config.Get("S3_ACCESS_KEY", ""); accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, config.Get("S3_SECRET_KEY", ""), ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := config.Get("S3_ENDPOINT", ""); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3FirmwareImporter{
		client:   client,
		bucket:   bucket,
		firmware: database.NewFirmwareService(db),
		maxSize:  config.GetInt64("MAX_FIRMWARE_SIZE", 5*1024*1024),
	}, nil
}

// Import lists the bucket and pulls every firmware object the store does not
// have yet. Returns the imported (version, platform) pairs.
func (imp *S3FirmwareImporter) Import(ctx context.Context) ([]string, error) {
	var imported []string

	paginator := s3.NewListObjectsV2Paginator(imp.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(imp.bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return imported, fmt.Errorf("failed to list bucket %s: %w", imp.bucket, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			m := firmwareKeyRegex.FindStringSubmatch(key)
			if m == nil {
				continue
			}
			channel, plat, version := m[1], platform.Normalize(m[2]), strings.TrimSuffix(m[3], ".")

			exists, err := imp.firmware.Exists(version, plat)
			if err != nil {
				return imported, err
			}
			if exists {
				continue
			}
			if size := aws.ToInt64(obj.Size); size > imp.maxSize {
				logging.WarnWithComponent(logging.ComponentS3Import, "Skipping oversized firmware object",
					"key", key, "size", size)
				continue
			}

			if err := imp.importObject(ctx, key, version, plat, channel); err != nil {
				logging.ErrorWithComponent(logging.ComponentS3Import, "Failed to import firmware object",
					"key", key, "error", err)
				continue
			}
			imported = append(imported, fmt.Sprintf("%s (%s)", version, plat))
		}
	}

	logging.InfoWithComponent(logging.ComponentS3Import, "S3 firmware import finished",
		"bucket", imp.bucket, "imported", len(imported))
	return imported, nil
}

func (imp *S3FirmwareImporter) importObject(ctx context.Context, key, version, plat, channel string) error {
	out, err := imp.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(imp.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, imp.maxSize+1))
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	if int64(len(data)) > imp.maxSize {
		return fmt.Errorf("object exceeds %d byte limit", imp.maxSize)
	}

	md5Sum := md5.Sum(data)
	sha256Sum := sha256.Sum256(data)

	return imp.firmware.Create(&database.FirmwareVersion{
		Version:  version,
		Platform: plat,
		Channel:  channel,
		Data:     data,
		FileSize: int64(len(data)),
		MD5:      hex.EncodeToString(md5Sum[:]),
		SHA256:   hex.EncodeToString(sha256Sum[:]),
	})
}
