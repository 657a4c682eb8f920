// Package postgres persists pairs, ranking snapshots and the stage cache in Postgres.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tvlScope/internal/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store provides Postgres persistence for ranking runs.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema files in lexical order. They are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(schemaFS, "schema/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// UpsertPairs inserts or updates pair reserves and activity.
func (s *Store) UpsertPairs(ctx context.Context, chainID uint64, pairs []model.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pair := range pairs {
		batch.Queue(`
			INSERT INTO pairs (
				chain_id, pair_address, token0, token1, reserve0, reserve1, activity, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pair_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				activity = EXCLUDED.activity,
				updated_at = now()
		`,
			int64(chainID),
			pair.Address.Hex(),
			pair.Token0.Hex(),
			pair.Token1.Hex(),
			integer(pair.Reserve0),
			integer(pair.Reserve1),
			int64(pair.Activity),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pairs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutSnapshot stores a ranking run with its ranked pairs and token prices in one transaction.
func (s *Store) PutSnapshot(ctx context.Context, snap model.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO snapshots (generated_at, chain_id, block_number, anchor, anchor_symbol, mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		snap.GeneratedAt,
		int64(snap.ChainID),
		int64(snap.BlockNumber),
		snap.Anchor.Hex(),
		snap.AnchorSymbol,
		snap.Mode,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range snap.Pairs {
		batch.Queue(`
			INSERT INTO tvl_snapshots (snapshot_id, rank, pair_address, label, tvl)
			VALUES ($1, $2, $3, $4, $5)
		`, id, p.Rank, p.Pair.Address.Hex(), p.Label, number(p.Value))
	}
	for _, price := range snap.Prices {
		batch.Queue(`
			INSERT INTO token_prices (snapshot_id, token, symbol, price, hops)
			VALUES ($1, $2, $3, $4, $5)
		`, id, price.Token.Hex(), price.Symbol, number(price.Price), price.Hops)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert snapshot rows: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// LoadStage returns the cached blob for a stage name.
func (s *Store) LoadStage(ctx context.Context, name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("stage name required")
	}
	var data []byte
	row := s.pool.QueryRow(ctx, `SELECT data FROM stage_cache WHERE name=$1`, name)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// SaveStage upserts the cached blob for a stage name.
func (s *Store) SaveStage(ctx context.Context, name string, blob []byte) error {
	if name == "" {
		return fmt.Errorf("stage name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stage_cache (name, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()
	`, name, blob)
	return err
}

func integer(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

func number(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
