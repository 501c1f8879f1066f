package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/logger"
	"market-analytics/src/models"

	"github.com/lib/pq"
)

var schemaUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// -----------------------------------------------------------------------------

type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
	tables tableRegistry
}

// -----------------------------------------------------------------------------

// NewPostgresStore keeps every dataset table inside one schema named after
// the service (config name, else the executable name)
func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	name := cfg.Name
	if name == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable name: %w", err)
		}
		name = filepath.Base(exe)
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	schema := schemaUnsafe.ReplaceAllString(strings.ToLower(name), "_")
	if !identifierPattern.MatchString(schema) {
		return nil, fmt.Errorf("cannot derive a schema name from %q", name)
	}

	return &PostgresStore{
		Config: cfg,
		Schema: schema,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize(datasets []models.MDatasetConfig) error {
	tables, err := newTableRegistry(datasets)
	if err != nil {
		return err
	}
	d.tables = tables

	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return helpers.NewDatabaseError("open postgres", err)
	}
	if err := db.Ping(); err != nil {
		return helpers.NewDatabaseError("ping postgres", err)
	}
	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(d.Schema))); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	for _, table := range d.tables {
		if err := d.createTable(table); err != nil {
			return err
		}
	}
	d.Logger.Info("postgres store ready in schema %s (%d dataset tables)", d.Schema, len(d.tables))
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) qualified(table string) string {
	return pq.QuoteIdentifier(d.Schema) + "." + pq.QuoteIdentifier(table)
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) createTable(table string) error {
	name := d.qualified(table)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol VARCHAR(32) NOT NULL,
			name TEXT,
			trade_date DATE NOT NULL,
			open_price DOUBLE PRECISION,
			high_price DOUBLE PRECISION,
			low_price DOUBLE PRECISION,
			close_price DOUBLE PRECISION,
			volume BIGINT,
			sector TEXT,
			industry TEXT
		);
	`, name)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (symbol, trade_date)`,
		pq.QuoteIdentifier(table+"_symbol_date"), name)
	if _, err := d.DB.Exec(idx); err != nil {
		return fmt.Errorf("failed to index %s: %w", name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// pgSelectColumns renders trade_date as text so both backends share scanRawRows
const pgSelectColumns = "symbol, name, to_char(trade_date, 'YYYY-MM-DD'), open_price, high_price, low_price, close_price, volume, sector, industry"

func (d *PostgresStore) ReadHistory(ctx context.Context, dataset string) ([]models.MRawRow, error) {
	table, err := d.tables.table(dataset)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY symbol, trade_date", pgSelectColumns, d.qualified(table))
	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewDatabaseError("read history of "+dataset, err)
	}
	return scanRawRows(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) ReadLatest(ctx context.Context, dataset string) ([]models.MRawRow, error) {
	table, err := d.tables.table(dataset)
	if err != nil {
		return nil, err
	}
	name := d.qualified(table)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s AND trade_date = (SELECT MAX(trade_date) FROM %s WHERE %s) ORDER BY symbol",
		pgSelectColumns, name, usableClose, name, usableClose)
	rows, err := d.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewDatabaseError("read latest of "+dataset, err)
	}
	return scanRawRows(rows)
}

// -----------------------------------------------------------------------------

// AppendRows streams the batch through COPY inside one transaction
func (d *PostgresStore) AppendRows(ctx context.Context, dataset string, rows []models.MRawRow) error {
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

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(d.Schema, table,
		"symbol", "name", "trade_date", "open_price", "high_price", "low_price",
		"close_price", "volume", "sector", "industry"))
	if err != nil {
		return err
	}

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Symbol, r.Name, r.TradeDate.Format(time.DateOnly),
			r.Open, r.High, r.Low, r.Close, r.Volume, r.Sector, r.Industry); err != nil {
			stmt.Close()
			return helpers.NewDatabaseError("copy into "+table, err)
		}
	}
	// flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return helpers.NewDatabaseError("copy into "+table, err)
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
