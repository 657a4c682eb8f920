package cache

import (
	"context"
)

// StageStore is the database side of DBCache. *postgres.Store implements it.
type StageStore interface {
	LoadStage(ctx context.Context, name string) ([]byte, bool, error)
	SaveStage(ctx context.Context, name string, blob []byte) error
}

// DBCache stores stage blobs in the stage_cache table.
type DBCache struct {
	Stages StageStore
	// Namespace separates caches of different factories or chains sharing one database.
	Namespace string
}

func (c *DBCache) key(stage string) string {
	if c.Namespace == "" {
		return stage
	}
	return c.Namespace + "/" + stage
}

func (c *DBCache) Load(ctx context.Context, stage string) ([]byte, bool, error) {
	if c == nil || c.Stages == nil {
		return nil, false, nil
	}
	return c.Stages.LoadStage(ctx, c.key(stage))
}

func (c *DBCache) Store(ctx context.Context, stage string, blob []byte) error {
	if c == nil || c.Stages == nil {
		return nil
	}
	return c.Stages.SaveStage(ctx, c.key(stage), blob)
}
