package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/logger"
	"market-analytics/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
	tables tableRegistry
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) *SQLiteStore {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize(datasets []models.MDatasetConfig) error {
	tables, err := newTableRegistry(datasets)
	if err != nil {
		return err
	}
	d.tables = tables

	dsn := d.Config.Storage.DBPath
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return helpers.NewDatabaseError("open sqlite", err)
	}
	if strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return helpers.NewDatabaseError("ping sqlite", err)
	}
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("failed to set synchronous mode: %v", err)
	}

	for _, table := range d.tables {
		if err := d.createTable(table); err != nil {
			return err
		}
	}
	d.Logger.Info("sqlite store ready at %s (%d dataset tables)", dsn, len(d.tables))
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) createTable(table string) error {
	// Raw rows may repeat (symbol, trade_date); there is no primary key on purpose
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			name TEXT,
			trade_date TEXT NOT NULL,
			open_price REAL,
			high_price REAL,
			low_price REAL,
			close_price REAL,
			volume INTEGER,
			sector TEXT,
			industry TEXT
		);
	`, table)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}
	for _, idx := range []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_symbol_date ON %s (symbol, trade_date)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_date ON %s (trade_date)", table, table),
	} {
		if _, err := d.DB.Exec(idx); err != nil {
			return fmt.Errorf("failed to index %s: %w", table, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) ReadHistory(ctx context.Context, dataset string) ([]models.MRawRow, error) {
	table, err := d.tables.table(dataset)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY symbol, trade_date", rowColumns, table)
	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewDatabaseError("read history of "+dataset, err)
	}
	return scanRawRows(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) ReadLatest(ctx context.Context, dataset string) ([]models.MRawRow, error) {
	table, err := d.tables.table(dataset)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s AND trade_date = (SELECT MAX(trade_date) FROM %s WHERE %s) ORDER BY symbol",
		rowColumns, table, usableClose, table, usableClose)
	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewDatabaseError("read latest of "+dataset, err)
	}
	return scanRawRows(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) AppendRows(ctx context.Context, dataset string, rows []models.MRawRow) error {
	if len(rows) == 0 {
		return nil
	}
	table, err := d.tables.table(dataset)
	if err != nil {
		return err
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", table, rowColumns))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx, r.Symbol, r.Name, r.TradeDate.Format(time.DateOnly),
			r.Open, r.High, r.Low, r.Close, r.Volume,
			r.Sector, r.Industry)
		if err != nil {
			return helpers.NewDatabaseError("insert into "+table, err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
