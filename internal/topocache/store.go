package topocache

import (
	"context"
	"fmt"

	"github.com/NathDevAU/ravendb/internal/config"
	"github.com/NathDevAU/ravendb/pkg/types"
)

// NewStore builds the snapshot store selected by the configuration. Mode
// "none" returns a nil store; callers must treat nil as "no persistence".
func NewStore(ctx context.Context, cfg config.SnapshotConfig) (types.TopologyStore, error) {
	switch cfg.Mode {
	case "none":
		return nil, nil
	case "file", "":
		return NewFileStore(cfg.Directory)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown snapshot mode: %q", cfg.Mode)
	}
}
