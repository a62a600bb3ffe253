// Package artifacts provides optional S3/MinIO archival of stage output
// artifacts. Archival is best-effort and runs after a stage succeeds; a
// failed upload is logged and never fails the stage.
package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/finsight/etl-orchestrator/internal/config"
)

// Archiver uploads stage artifacts to an S3-compatible store.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	root   string
	log    *slog.Logger
}

// NewArchiver builds an archiver from the artifact_store config section.
// root is the project root artifacts are read from.
func NewArchiver(cfg config.ArtifactStore, root string, log *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		root:   root,
		log:    log,
	}, nil
}

// Archive uploads the named artifacts (paths relative to the project root)
// under <prefix>/<runID>/<stage>/. It returns the first upload error but
// attempts every artifact.
func (a *Archiver) Archive(ctx context.Context, runID, stage string, relPaths []string) error {
	var firstErr error
	for _, rel := range relPaths {
		key := path.Join(a.prefix, runID, stage, filepath.Base(rel))
		checksum, size, err := a.upload(ctx, filepath.Join(a.root, rel), key)
		if err != nil {
			a.log.Warn("artifact upload failed", "stage", stage, "artifact", rel, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.log.Info("artifact archived",
			"stage", stage, "artifact", rel,
			"uri", fmt.Sprintf("s3://%s/%s", a.bucket, key),
			"size", size, "sha256", checksum)
	}
	return firstErr
}

func (a *Archiver) upload(ctx context.Context, localPath, key string) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return "", 0, fmt.Errorf("read artifact: %w", err)
	}
	hash := sha256.Sum256(content)
	checksum := hex.EncodeToString(hash[:])

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String("application/octet-stream"),
		ContentLength: aws.Int64(int64(len(content))),
		Metadata:      map[string]string{"sha256": checksum},
	})
	if err != nil {
		return "", 0, fmt.Errorf("put object: %w", err)
	}
	return checksum, int64(len(content)), nil
}
