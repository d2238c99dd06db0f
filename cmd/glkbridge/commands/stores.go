package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/glkbridge/cmd/glkbridge/internal/config"
	"github.com/haivivi/glkbridge/pkg/kv"
	"github.com/haivivi/glkbridge/pkg/storage"
)

// openFileStore returns the store selected by cfg: an S3 bucket, a local
// directory, or memory when neither is set.
func openFileStore(cfg config.FilesConfig) (storage.FileStore, string, error) {
	switch {
	case cfg.S3 != nil && cfg.S3.Bucket != "":
		return storage.NewS3(newS3Client(cfg.S3), cfg.S3.Bucket, cfg.S3.Prefix),
			fmt.Sprintf("s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix), nil
	case cfg.Dir != "":
		local, err := storage.NewLocal(cfg.Dir)
		if err != nil {
			return nil, "", err
		}
		return local, local.Root(), nil
	}
	return storage.NewMemory(), "memory", nil
}

func newS3Client(cfg *config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "glkbridge config",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return s3.New(opts)
}

// openLedger opens the file-reference ledger. An empty dir keeps it in
// memory for the life of the process.
func openLedger(dir string) (kv.Store, error) {
	if dir == "" {
		return kv.NewMemory(), nil
	}
	return kv.OpenBadger(dir, kv.WithLogger(slog.Default()))
}
