// Package db stores embedded chunks in Postgres with the pgvector extension.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docqa/internal/config"
	"docqa/internal/models"
)

const (
	DriverPgdriver = "pgdriver"
	DriverPQ       = "pq"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Chunk struct {
	bun.BaseModel `bun:"table:retrieval_chunks,alias:c"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Source        string          `bun:"source,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

// Store is the pgvector backend. The table is created on first Add and
// dropped by Reset and at startup, so rows never outlive the process.
type Store struct {
	db    *bun.DB
	table string

	mu      sync.Mutex
	ensured bool
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver. No
// connection is made until the first query.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "", DriverPgdriver:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", models.ErrInvalidConfig, cfg.Driver)
	}
}

func newStore(bdb *bun.DB, table string) *Store {
	if table == "" {
		table = "retrieval_chunks"
	}
	return &Store{db: bdb, table: table}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, sqldb *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqldb, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// NewStore connects, migrates, and drops any table left by a previous run.
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, sqldb); err != nil {
		sqldb.Close()
		return nil, err
	}
	s := newStore(NewDB(sqldb, cfg.Debug), cfg.Table)
	if err := s.dropTable(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("drop stale table %s: %w", s.table, err)
	}
	log.Info().Str("table", s.table).Str("driver", cfg.Driver).Msg("pgvector store ready")
	return s, nil
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	_, err := s.db.NewCreateTable().
		Model((*Chunk)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	s.ensured = true
	return nil
}

func (s *Store) isEnsured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensured
}

// Add inserts all chunks in one transaction.
func (s *Store) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	rows := make([]Chunk, len(chunks))
	for i, ch := range chunks {
		if !ch.HasEmbedding() {
			return fmt.Errorf("chunk %d from %q has no embedding", i, ch.SourceName)
		}
		rows[i] = Chunk{Source: ch.SourceName, Content: ch.Text, Embedding: pgvector.NewVector(ch.Embedding)}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&rows).
			ModelTableExpr("?", bun.Ident(s.table)).
			Exec(ctx)
		return err
	})
}

func (s *Store) searchQuery(rows *[]Chunk, vec []float32, k int) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS c", bun.Ident(s.table)).
		Column("id", "source", "content").
		ColumnExpr("embedding <-> ?::vector AS distance", pgvector.NewVector(vec)).
		OrderExpr("distance ASC, id ASC").
		Limit(k)
}

// Query orders rows by L2 distance and maps distance d to 1/(1+d).
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 || !s.isEnsured() {
		return nil, nil
	}
	var rows []Chunk
	if err := s.searchQuery(&rows, vec, k).Scan(ctx); err != nil {
		return nil, fmt.Errorf("search %s: %w", s.table, err)
	}

	out := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SearchResult{
			Text:       r.Content,
			Score:      DistanceToScore(r.Distance),
			SourceName: r.Source,
		})
	}
	return out, nil
}

// Reset drops the table; the next Add recreates it.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.dropTable(ctx); err != nil {
		return fmt.Errorf("drop table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) dropTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.NewDropTable().
		Model((*Chunk)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return err
	}
	s.ensured = false
	return nil
}

// DistanceToScore maps a non-negative distance into (0,1].
func DistanceToScore(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}
