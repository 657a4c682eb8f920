package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileCache stores one JSON file per stage under Dir.
type FileCache struct {
	Dir string
}

type fileRecord struct {
	Stage     string          `json:"stage"`
	UpdatedAt string          `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

func (c *FileCache) path(stage string) string {
	return filepath.Join(c.Dir, stage+".json")
}

func (c *FileCache) Load(ctx context.Context, stage string) ([]byte, bool, error) {
	if c == nil || c.Dir == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(c.path(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("parse cache: %w", err)
	}
	if rec.Stage != stage {
		return nil, false, fmt.Errorf("cache file holds stage %q", rec.Stage)
	}
	return rec.Data, true, nil
}

func (c *FileCache) Store(ctx context.Context, stage string, blob []byte) error {
	if c == nil || c.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	rec := fileRecord{
		Stage:     stage,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      blob,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	path := c.path(stage)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}
