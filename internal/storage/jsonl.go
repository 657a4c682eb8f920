package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tvlScope/internal/model"
)

// JsonlStorage appends records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// snapshotLine is one ranked pair of a snapshot, flattened for line-oriented tools.
type snapshotLine struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	ChainID      uint64         `json:"chain_id"`
	BlockNumber  uint64         `json:"block_number"`
	Anchor       common.Address `json:"anchor"`
	AnchorSymbol string         `json:"anchor_symbol"`
	Mode         string         `json:"mode"`
	Rank         int            `json:"rank"`
	Label        string         `json:"label"`
	Value        float64        `json:"value"`
	Pair         model.Pair     `json:"pair"`
}

// PutSnapshot appends one line per ranked pair.
func (s *JsonlStorage) PutSnapshot(_ context.Context, snap model.Snapshot) error {
	lines := make([]any, 0, len(snap.Pairs))
	for _, p := range snap.Pairs {
		lines = append(lines, snapshotLine{
			GeneratedAt:  snap.GeneratedAt,
			ChainID:      snap.ChainID,
			BlockNumber:  snap.BlockNumber,
			Anchor:       snap.Anchor,
			AnchorSymbol: snap.AnchorSymbol,
			Mode:         snap.Mode,
			Rank:         p.Rank,
			Label:        p.Label,
			Value:        p.Value,
			Pair:         p.Pair,
		})
	}
	return s.appendLines(lines)
}

// PutActivityBatch appends raw activity events as JSON lines.
func (s *JsonlStorage) PutActivityBatch(events []model.ActivityEvent) error {
	lines := make([]any, 0, len(events))
	for _, ev := range events {
		lines = append(lines, ev)
	}
	return s.appendLines(lines)
}

func (s *JsonlStorage) appendLines(records []any) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
