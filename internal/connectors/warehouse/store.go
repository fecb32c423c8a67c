package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"churn-ops-dashboard/internal/config"
	"churn-ops-dashboard/internal/customer"
)

var ErrNotFound = errors.New("customer not found")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type columnKind int

const (
	kindText columnKind = iota
	kindBool
	kindInt
	kindFloat
)

// legacyKinds gives the scan type of each customer.LegacyColumns entry.
var legacyKinds = map[string]columnKind{
	"senior_citizen":    kindBool,
	"partner":           kindBool,
	"dependents":        kindBool,
	"tenure":            kindInt,
	"phone_service":     kindBool,
	"paperless_billing": kindBool,
	"monthly_charges":   kindFloat,
	"total_charges":     kindFloat,
	"churn":             kindBool,
	"notified":          kindBool,
}

// Store reads customer rows straight from the backend database. It only
// issues SELECTs.
type Store struct {
	db           *sql.DB
	table        string
	queryTimeout time.Duration
}

func NewStore(cfg config.Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s, err := NewFromDB(db, cfg.DBTable, cfg.DBQueryTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an open handle. table must be a plain identifier.
func NewFromDB(db *sql.DB, table string, queryTimeout time.Duration) (*Store, error) {
	if table == "" {
		table = "customers"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid customers table name %q", table)
	}
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Store{db: db, table: table, queryTimeout: queryTimeout}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) selectSQL() string {
	cols := make([]string, 0, len(customer.LegacyColumns))
	for _, c := range customer.LegacyColumns {
		cols = append(cols, "`"+c+"`")
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM `" + s.table + "`"
}

// FetchCustomers returns {"customers": [row, ...]} with every row in legacy
// positional order.
func (s *Store) FetchCustomers(ctx context.Context) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.selectSQL()+" ORDER BY `customer_id`;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]any, 0, 256)
	for rows.Next() {
		row, err := scanLegacyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]any{"customers": out}, nil
}

// FetchCustomer returns one positional row or ErrNotFound.
func (s *Store) FetchCustomer(ctx context.Context, id customer.ID) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.selectSQL()+" WHERE `customer_id` = ? LIMIT 1;", id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return scanLegacyRow(rows)
}

func scanLegacyRow(rows *sql.Rows) ([]any, error) {
	dest := make([]any, len(customer.LegacyColumns))
	for i, col := range customer.LegacyColumns {
		switch legacyKinds[col] {
		case kindBool:
			dest[i] = &flexBool{}
		case kindInt:
			dest[i] = &sql.NullInt64{}
		case kindFloat:
			dest[i] = &sql.NullFloat64{}
		default:
			dest[i] = &sql.NullString{}
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	out := make([]any, len(dest))
	for i, d := range dest {
		switch v := d.(type) {
		case *flexBool:
			if v.Valid {
				out[i] = v.Bool
			}
		case *sql.NullInt64:
			if v.Valid {
				out[i] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				out[i] = v.Float64
			}
		case *sql.NullString:
			if v.Valid {
				out[i] = v.String
			}
		}
	}
	return out, nil
}

// flexBool scans tinyint, boolean and yes/no text columns.
type flexBool struct {
	Bool  bool
	Valid bool
}

func (b *flexBool) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		b.Bool, b.Valid = false, false
		return nil
	case bool:
		b.Bool, b.Valid = v, true
		return nil
	case int64:
		b.Bool, b.Valid = v != 0, true
		return nil
	case float64:
		b.Bool, b.Valid = v != 0, true
		return nil
	case []byte:
		return b.scanText(string(v))
	case string:
		return b.scanText(v)
	default:
		return fmt.Errorf("cannot scan %T into bool", src)
	}
}

func (b *flexBool) scanText(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		b.Bool, b.Valid = false, false
		return nil
	case "yes", "y", "t":
		b.Bool, b.Valid = true, true
		return nil
	case "no", "n", "f":
		b.Bool, b.Valid = false, true
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		b.Bool, b.Valid = n != 0, true
		return nil
	}
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("cannot scan %q into bool", s)
	}
	b.Bool, b.Valid = parsed, true
	return nil
}

// ServiceStats contains lightweight DB health and volume counters.
type ServiceStats struct {
	PingMS         int64  `json:"ping_ms"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Table          string `json:"table"`
	CustomersTotal int64  `json:"customers_total"`
	ChurnedTotal   int64  `json:"churned_total"`
	NotifiedTotal  int64  `json:"notified_total"`
}

// ServiceStats returns database health and customer counters.
func (s *Store) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}

	out := &ServiceStats{
		PingMS: time.Since(start).Milliseconds(),
		Table:  s.table,
	}

	var statusName string
	var statusValue sql.NullString
	if err := s.db.QueryRowContext(ctx, `SHOW GLOBAL STATUS LIKE 'Uptime';`).Scan(&statusName, &statusValue); err == nil && statusValue.Valid {
		if v, err := strconv.ParseInt(statusValue.String, 10, 64); err == nil {
			out.UptimeSeconds = v
		}
	}

	from := " FROM `" + s.table + "`"
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+";").Scan(&out.CustomersTotal); err != nil {
		return nil, err
	}
	var churned, notified sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT SUM(CASE WHEN `churn` THEN 1 ELSE 0 END), SUM(CASE WHEN `notified` THEN 1 ELSE 0 END)"+from+";").Scan(&churned, &notified); err != nil {
		return nil, err
	}
	out.ChurnedTotal = churned.Int64
	out.NotifiedTotal = notified.Int64

	return out, nil
}
