package viewstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"churn-ops-dashboard/internal/table"
)

var ErrNotFound = errors.New("view not found")

// View is a named, persisted table state.
type View struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	State       table.State `json:"state"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}

// Store manages saved table views in SQLite.
type Store struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS table_views (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  state_json TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping is used by the service status page.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) List(ctx context.Context, limit int) ([]View, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, state_json, created_at, updated_at
FROM table_views
ORDER BY name ASC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]View, 0, limit)
	for rows.Next() {
		item, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*View, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, description, state_json, created_at, updated_at
FROM table_views
WHERE id = ?;
`, id)
	return scanOne(row, fmt.Sprintf("id %d", id))
}

// GetByName looks a view up by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*View, error) {
	name = strings.TrimSpace(name)
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, description, state_json, created_at, updated_at
FROM table_views
WHERE name = ?;
`, name)
	return scanOne(row, fmt.Sprintf("name %q", name))
}

// Upsert stores state under name, replacing any view with the same name.
func (s *Store) Upsert(ctx context.Context, name, description string, state table.State) (int64, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return 0, fmt.Errorf("view name is required")
	}
	if err := state.Validate(); err != nil {
		return 0, fmt.Errorf("view %q: %w", name, err)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return 0, err
	}

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO table_views (name, description, state_json, created_at, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET
  description = excluded.description,
  state_json = excluded.state_json,
  updated_at = CURRENT_TIMESTAMP;
`, name, description, string(stateJSON)); err != nil {
		return 0, err
	}

	// LastInsertId is stale after the update branch of an upsert.
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM table_views WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM table_views WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner, what string) (*View, error) {
	item, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanView(row scanner) (View, error) {
	var (
		item      View
		stateJSON string
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &stateJSON, &createdAt, &updatedAt); err != nil {
		return View{}, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &item.State); err != nil {
		return View{}, fmt.Errorf("view %q has corrupt state: %w", item.Name, err)
	}
	if createdAt.Valid {
		t := createdAt.Time.UTC()
		item.CreatedAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		item.UpdatedAt = &t
	}
	return item, nil
}
