// Package postgres persists rank snapshots in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

const defaultTablePrefix = "rank"

var validTablePrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for snapshots.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Regions resolves stored region codes back to display names.
	Regions []rank.Region
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

type tables struct {
	snapshots string
	products  string
	positions string
}

// SnapshotStore writes crawl snapshots and answers history queries.
type SnapshotStore struct {
	pool    pool
	tables  tables
	regions []rank.Region
}

// NewSnapshotStore connects a pool using cfg.
func NewSnapshotStore(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSnapshotStoreWithPool(p, cfg.TablePrefix, cfg.Regions)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewSnapshotStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSnapshotStoreWithPool(p pool, prefix string, regions []rank.Region) (*SnapshotStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if prefix == "" {
		prefix = defaultTablePrefix
	}
	if !validTablePrefix.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	if len(regions) == 0 {
		regions = rank.DefaultRegions
	}
	return &SnapshotStore{
		pool: p,
		tables: tables{
			snapshots: prefix + "_snapshots",
			products:  prefix + "_products",
			positions: prefix + "_positions",
		},
		regions: regions,
	}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the snapshot tables when they are missing.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           text PRIMARY KEY,
	query        text NOT NULL,
	primary_id   text NOT NULL,
	reference_id text,
	regions      text[] NOT NULL,
	created_at   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_created_at_idx ON %[1]s (created_at DESC);
CREATE TABLE IF NOT EXISTS %[2]s (
	article       text PRIMARY KEY,
	name          text NOT NULL,
	price         integer NOT NULL,
	image         text NOT NULL,
	brand         text NOT NULL,
	is_competitor boolean NOT NULL,
	updated_at    timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS %[3]s (
	snapshot_id text NOT NULL REFERENCES %[1]s (id) ON DELETE CASCADE,
	region      text NOT NULL,
	article     text NOT NULL,
	page        integer NOT NULL,
	rank        integer NOT NULL,
	synthesized boolean NOT NULL,
	PRIMARY KEY (snapshot_id, region, article)
);`, s.tables.snapshots, s.tables.products, s.tables.positions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveSnapshot writes the snapshot, its products and its found positions in one transaction.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap rank.Snapshot) (id string, err error) {
	if snap.ID == "" {
		return "", fmt.Errorf("snapshot id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	codes := make([]string, len(snap.Regions))
	for i, rr := range snap.Regions {
		codes[i] = rr.Region.Code
	}
	insertSnapshot := fmt.Sprintf(`
INSERT INTO %s (id, query, primary_id, reference_id, regions, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, s.tables.snapshots)
	if _, err = tx.Exec(ctx, insertSnapshot,
		snap.ID, snap.Query, snap.PrimaryID, nullable(snap.ReferenceID), codes, snap.CreatedAt,
	); err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	if err = s.upsertProduct(ctx, tx, snap.Products.Primary, false, snap.CreatedAt); err != nil {
		return "", err
	}
	if ref := snap.Products.Reference; ref != nil {
		if err = s.upsertProduct(ctx, tx, *ref, true, snap.CreatedAt); err != nil {
			return "", err
		}
	}

	insertPosition := fmt.Sprintf(`
INSERT INTO %s (snapshot_id, region, article, page, rank, synthesized)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (snapshot_id, region, article) DO NOTHING`, s.tables.positions)
	targets := snap.Targets().All()
	for _, rr := range snap.Regions {
		for _, t := range targets {
			rec := rr.Ranks.For(t.Role)
			if !rec.Found() {
				continue
			}
			if _, err = tx.Exec(ctx, insertPosition,
				snap.ID, rr.Region.Code, t.ID, rec.Page, rec.Rank, rr.Synthesized,
			); err != nil {
				return "", fmt.Errorf("insert position: %w", err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit snapshot: %w", err)
	}
	return snap.ID, nil
}

func (s *SnapshotStore) upsertProduct(ctx context.Context, tx pgx.Tx, info rank.ProductInfo, competitor bool, at time.Time) error {
	article := info.ArticleID
	if article == "" {
		article = info.ID
	}
	query := fmt.Sprintf(`
INSERT INTO %s (article, name, price, image, brand, is_competitor, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (article) DO UPDATE
SET name = EXCLUDED.name,
	price = EXCLUDED.price,
	image = EXCLUDED.image,
	brand = EXCLUDED.brand,
	is_competitor = EXCLUDED.is_competitor,
	updated_at = EXCLUDED.updated_at`, s.tables.products)
	if _, err := tx.Exec(ctx, query, article, info.Name, info.Price, info.Image, info.Brand, competitor, at); err != nil {
		return fmt.Errorf("upsert product %s: %w", article, err)
	}
	return nil
}

// ListSnapshots returns matching snapshots, newest first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context, filter rank.HistoryFilter) ([]rank.Snapshot, error) {
	filter = filter.Normalize()
	query := fmt.Sprintf(`
SELECT id, query, primary_id, COALESCE(reference_id, ''), regions, created_at
FROM %s
WHERE ($1 = '' OR primary_id = $1 OR reference_id = $1)
	AND ($2 = '' OR lower(query) = lower($2))
ORDER BY created_at DESC
LIMIT $3`, s.tables.snapshots)
	rows, err := s.pool.Query(ctx, query, filter.ArticleID, strings.TrimSpace(filter.Query), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var (
		snaps    []rank.Snapshot
		codes    [][]string
		ids      []string
		articles []string
	)
	for rows.Next() {
		var (
			snap        rank.Snapshot
			regionCodes []string
		)
		if err := rows.Scan(&snap.ID, &snap.Query, &snap.PrimaryID, &snap.ReferenceID, &regionCodes, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
		codes = append(codes, regionCodes)
		ids = append(ids, snap.ID)
		articles = append(articles, snap.PrimaryID)
		if snap.ReferenceID != "" {
			articles = append(articles, snap.ReferenceID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	positions, err := s.positions(ctx, ids)
	if err != nil {
		return nil, err
	}
	products, err := s.products(ctx, articles)
	if err != nil {
		return nil, err
	}
	for i := range snaps {
		snaps[i].Regions = s.assembleRegions(snaps[i], codes[i], positions[snaps[i].ID])
		snaps[i].Products = assembleProducts(snaps[i], products)
	}
	return snaps, nil
}

type positionRow struct {
	region  string
	article string
	page    int
	rank    int
}

func (s *SnapshotStore) positions(ctx context.Context, ids []string) (map[string][]positionRow, error) {
	query := fmt.Sprintf(`
SELECT snapshot_id, region, article, page, rank
FROM %s
WHERE snapshot_id = ANY($1)`, s.tables.positions)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]positionRow, len(ids))
	for rows.Next() {
		var (
			snapshotID string
			row        positionRow
		)
		if err := rows.Scan(&snapshotID, &row.region, &row.article, &row.page, &row.rank); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out[snapshotID] = append(out[snapshotID], row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

func (s *SnapshotStore) products(ctx context.Context, articles []string) (map[string]rank.ProductInfo, error) {
	query := fmt.Sprintf(`
SELECT article, name, price, image, brand
FROM %s
WHERE article = ANY($1)`, s.tables.products)
	rows, err := s.pool.Query(ctx, query, articles)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]rank.ProductInfo, len(articles))
	for rows.Next() {
		var info rank.ProductInfo
		if err := rows.Scan(&info.ArticleID, &info.Name, &info.Price, &info.Image, &info.Brand); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		info.ID = info.ArticleID
		out[info.ArticleID] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// assembleRegions rebuilds per-region ranks in stored order. Regions without
// rows had no target found; every region after the first was synthesized.
func (s *SnapshotStore) assembleRegions(snap rank.Snapshot, codes []string, rows []positionRow) []rank.RegionRanks {
	out := make([]rank.RegionRanks, len(codes))
	for i, code := range codes {
		region, ok := rank.RegionByCode(s.regions, code)
		if !ok {
			region = rank.Region{Name: code, Code: code}
		}
		rr := rank.RegionRanks{Region: region, Synthesized: i > 0}
		for _, row := range rows {
			if row.region != code {
				continue
			}
			rec := rank.RankRecord{Rank: row.rank, Page: row.page}
			switch row.article {
			case snap.PrimaryID:
				rr.Ranks.Primary = rec
			case snap.ReferenceID:
				rr.Ranks.Reference = rec
			}
		}
		out[i] = rr
	}
	return out
}

func assembleProducts(snap rank.Snapshot, products map[string]rank.ProductInfo) rank.Products {
	lookup := func(id string) rank.ProductInfo {
		if info, ok := products[id]; ok {
			return info
		}
		return rank.ProductInfo{ID: id, ArticleID: id}
	}
	out := rank.Products{Primary: lookup(snap.PrimaryID)}
	if snap.ReferenceID != "" {
		ref := lookup(snap.ReferenceID)
		out.Reference = &ref
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
