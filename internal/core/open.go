package core

import (
	"context"
	"fmt"

	"classledger/internal/blob"
	"classledger/internal/config"
	"classledger/internal/infra/persistence/file"
	"classledger/internal/infra/persistence/memory"
	"classledger/internal/infra/persistence/postgres"
	"classledger/internal/infra/persistence/redis"
	"classledger/internal/infra/persistence/sqlite"
	"classledger/internal/store"
	"classledger/pkg/domain"
)

// OpenSlot constructs the snapshot slot named by cfg.Driver.
func OpenSlot(ctx context.Context, cfg config.StorageConfig) (domain.Slot, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "file":
		return file.New(cfg.FilePath)
	case "", "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, cfg.SlotKey)
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDSN, cfg.SlotKey)
	case "redis":
		return redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.SlotKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenBlob constructs the artifact store named by cfg.Driver.
func OpenBlob(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Driver),
		FSRoot: cfg.FSRoot,
		S3: blob.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		},
	})
}

// Open wires a Service from configuration: slot, artifact store, cascade
// mode, then the initial load. Options are applied after the configured ones.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	mode, err := store.ParseCascadeMode(cfg.CascadeMode)
	if err != nil {
		return nil, err
	}
	slot, err := OpenSlot(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s slot: %w", cfg.Storage.Driver, err)
	}
	blobs, err := OpenBlob(ctx, cfg.Blob)
	if err != nil {
		if c, ok := slot.(domain.Closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("open %s artifact store: %w", cfg.Blob.Driver, err)
	}
	base := []Option{WithBlobStore(blobs), WithCascadeMode(mode)}
	if c, ok := slot.(domain.Closer); ok {
		base = append(base, WithCloser(c))
	}
	return New(ctx, slot, append(base, opts...)...), nil
}
