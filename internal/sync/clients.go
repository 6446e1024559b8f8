package sync

import (
	"context"
	"fmt"

	"progress-sync-service/internal/config"
	"progress-sync-service/internal/database"
	"progress-sync-service/internal/store"
	"progress-sync-service/internal/store/firebase"
	"progress-sync-service/internal/store/httpapi"
	"progress-sync-service/internal/store/s3store"
)

// newPrimary builds the versioned store named by cfg.Type. The returned
// close func releases any connection it opened.
func newPrimary(ctx context.Context, cfg config.PrimaryConfig) (store.Client, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case config.StoreHTTP:
		return httpapi.New(httpapi.Config{
			BaseURL:  cfg.BaseURL,
			SavePath: cfg.SavePath,
			LoadPath: cfg.LoadPath,
			Timeout:  cfg.Timeout,
		}), noop, nil
	case config.StoreMySQL:
		db, err := database.NewDatabase(ctx, cfg.MySQL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to primary db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, err
		}
		s := store.NewMySQLStore(db)
		return s, s.Close, nil
	case config.StoreMemory:
		return store.NewMemoryStore(true), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown primary store type %q", cfg.Type)
	}
}

func newSecondary(ctx context.Context, cfg config.SecondaryConfig) (store.Client, error) {
	switch cfg.Type {
	case config.StoreFirebase:
		return firebase.New(firebase.Config{
			BaseURL:   cfg.Firebase.BaseURL,
			AuthToken: cfg.Firebase.AuthToken,
			Timeout:   cfg.Firebase.Timeout,
		}), nil
	case config.StoreS3:
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		return store.NewMemoryStore(false), nil
	default:
		return nil, fmt.Errorf("unknown secondary store type %q", cfg.Type)
	}
}
