// Package assets wraps the asset store backends and exposes the asset-loader
// capability handed to rules. It is the only package allowed to import
// internal/infra/assets.
package assets

import (
	"context"
	"fmt"

	"carerules/internal/assets/store"
	"carerules/internal/config"
	"carerules/internal/infra/assets/fs"
	"carerules/internal/infra/assets/memory"
	"carerules/internal/infra/assets/s3"
)

type (
	// Driver identifies an asset backend driver.
	Driver = store.Driver
	// PutOptions configures an asset write.
	PutOptions = store.PutOptions
	// Info describes stored asset metadata.
	Info = store.Info
	// Store is the interface for asset storage backends.
	Store = store.Store
)

const (
	DriverFilesystem = store.DriverFilesystem
	DriverS3         = store.DriverS3
	DriverMemory     = store.DriverMemory
)

// Open selects a Store implementation from configuration.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch Driver(cfg.AssetDriver) {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.AssetFSRoot)
	case DriverS3:
		return NewS3(ctx, s3.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
			PathStyle:       cfg.S3.PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown asset driver %s", cfg.AssetDriver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewS3 constructs an S3-backed Store.
func NewS3(ctx context.Context, cfg s3.Config) (Store, error) { return s3.New(ctx, cfg) }

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memory.New() }

// NewMockS3ForTests exposes the in-process fake bucket for cross-package tests.
func NewMockS3ForTests(ctx context.Context) (Store, error) { return s3.NewMock(ctx, "") }
