// Package archivesvc stores generated documents on the local disk or on S3.
package archivesvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
)

// NewStore returns the archive store selected by conf.Driver.
func NewStore(ctx context.Context, conf core.ArchiveConfig) (core.ArchiveStore, error) {
	switch conf.Driver {
	case "", "local":
		return NewLocalStore(conf.Dir), nil
	case "s3":
		if conf.Bucket == "" {
			return nil, errors.New("archive: s3 bucket is required")
		}
		client, err := NewS3Client(ctx, conf)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, conf.Bucket), nil
	default:
		return nil, errors.Errorf("archive: unknown driver %q", conf.Driver)
	}
}
