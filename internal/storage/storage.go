// Package storage defines the sinks ranking snapshots are written to.
package storage

import (
	"context"

	"tvlScope/internal/model"
)

// Sink persists a finished ranking run.
type Sink interface {
	PutSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Multi fans a snapshot out to every sink, stopping at the first error.
type Multi []Sink

func (m Multi) PutSnapshot(ctx context.Context, snap model.Snapshot) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}
