package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"market-analytics/src/helpers"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/models"
)

// Only plain lower-case identifiers are ever interpolated into SQL
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// rowColumns is the column order used by every read and write
const rowColumns = "symbol, name, trade_date, open_price, high_price, low_price, close_price, volume, sector, industry"

// usableClose filters the latest-date lookup to rows normalization would keep
const usableClose = "close_price IS NOT NULL AND close_price > 0"

// -----------------------------------------------------------------------------

// NewDurableStore picks the backend named by storage.db_type
func NewDurableStore(cfg *models.MConfig, log *logger.Logger) (interfaces.IDurableStore, error) {
	switch cfg.Storage.DBType {
	case "sqlite":
		return NewSQLiteStore(cfg, log), nil
	case "postgres":
		return NewPostgresStore(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Storage.DBType)
	}
}

// -----------------------------------------------------------------------------

// tableRegistry maps dataset keys to validated table names
type tableRegistry map[string]string

func newTableRegistry(datasets []models.MDatasetConfig) (tableRegistry, error) {
	reg := make(tableRegistry, len(datasets))
	for _, ds := range datasets {
		table := strings.ToLower(ds.Table)
		if table == "" {
			table = ds.Key + "_stocks"
		}
		if !identifierPattern.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q for dataset %s", table, ds.Key)
		}
		reg[ds.Key] = table
	}
	return reg, nil
}

func (r tableRegistry) table(dataset string) (string, error) {
	t, ok := r[dataset]
	if !ok {
		return "", helpers.NewInvalidParameterError("unknown dataset %q", dataset)
	}
	return t, nil
}

// -----------------------------------------------------------------------------

// scanRawRows reads rows selected with rowColumns; trade_date must come back
// as YYYY-MM-DD text
func scanRawRows(rows *sql.Rows) ([]models.MRawRow, error) {
	defer rows.Close()

	var out []models.MRawRow
	for rows.Next() {
		var (
			r    models.MRawRow
			name sql.NullString
			date string
			vol  sql.NullInt64
		)
		if err := rows.Scan(&r.Symbol, &name, &date, &r.Open, &r.High, &r.Low, &r.Close, &vol, &r.Sector, &r.Industry); err != nil {
			return nil, err
		}
		t, err := parseTradeDate(date)
		if err != nil {
			return nil, err
		}
		r.Name = name.String
		r.TradeDate = t
		r.Volume = vol.Int64
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseTradeDate(s string) (time.Time, error) {
	if len(s) >= len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid trade_date %q: %w", s, err)
	}
	return t, nil
}
