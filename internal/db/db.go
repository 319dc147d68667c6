package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
)

// DocumentRecord is one ingested filename. Re-uploading a filename replaces its row.
type DocumentRecord struct {
	bun.BaseModel `bun:"table:documents_meta,alias:dm"`
	Filename      string    `bun:"filename,pk"`
	ChunkCount    int       `bun:"chunk_count,notnull"`
	UploadedAt    time.Time `bun:"uploaded_at,notnull"`
}

// Ledger is the durable filename -> chunk count table.
type Ledger struct {
	db  *bun.DB
	now func() time.Time
}

// ConnectDB opens the ledger database for the configured driver.
func ConnectDB(cfg *config.LedgerConfig) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case config.LedgerSQLite, "":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := helper.CreateFolder(dir); err != nil {
				return nil, err
			}
		}
		sqldb, err := sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case config.LedgerPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", cfg.Driver)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

// NewLedger wraps db and creates the table if needed.
func NewLedger(ctx context.Context, db *bun.DB) (*Ledger, error) {
	if _, err := db.NewCreateTable().Model((*DocumentRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create ledger table: %w", err)
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// OpenLedger connects and initialises the ledger in one step.
func OpenLedger(ctx context.Context, cfg *config.LedgerConfig) (*Ledger, error) {
	db, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedger(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

// Record stores (filename, chunkCount, now), replacing any previous row for filename.
func (l *Ledger) Record(ctx context.Context, filename string, chunkCount int) error {
	rec := &DocumentRecord{
		Filename:   filename,
		ChunkCount: chunkCount,
		UploadedAt: l.now(),
	}
	_, err := l.db.NewInsert().
		Model(rec).
		On("CONFLICT (filename) DO UPDATE").
		Set("chunk_count = EXCLUDED.chunk_count").
		Set("uploaded_at = EXCLUDED.uploaded_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", filename, err)
	}
	return nil
}

// List returns filenames, most recent upload first.
func (l *Ledger) List(ctx context.Context) ([]string, error) {
	var filenames []string
	err := l.db.NewSelect().
		Model((*DocumentRecord)(nil)).
		Column("filename").
		OrderExpr("uploaded_at DESC, filename ASC").
		Scan(ctx, &filenames)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return filenames, nil
}

// Get returns the record for filename, or sql.ErrNoRows.
func (l *Ledger) Get(ctx context.Context, filename string) (*DocumentRecord, error) {
	rec := new(DocumentRecord)
	err := l.db.NewSelect().Model(rec).Where("filename = ?", filename).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Clear deletes every row.
func (l *Ledger) Clear(ctx context.Context) error {
	if _, err := l.db.NewDelete().Model((*DocumentRecord)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
