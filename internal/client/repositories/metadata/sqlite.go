package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/multiplycharity/multiply-monorepo/internal/dbx"
)

// SQLiteRepository is the Repository over the local metadata table. Bind
// it to a transaction through dbx.DBTX to group calls.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: get %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	return r.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany stores nil values as empty blobs; the column is NOT NULL.
func (r *SQLiteRepository) SetMany(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	keys := sortedKeys(values)

	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		v := values[k]
		if v == nil {
			v = []byte{}
		}
		args = append(args, k, v)
	}

	q := `INSERT INTO metadata (key, value) VALUES ` +
		strings.TrimSuffix(strings.Repeat("(?, ?), ", len(keys)), ", ") +
		` ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("metadata: set %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

func (r *SQLiteRepository) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM metadata WHERE key IN (`+placeholders(len(keys))+`)`, anys(keys)...)
	if err != nil {
		return nil, fmt.Errorf("metadata: get %s: %w", strings.Join(keys, ","), err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("metadata: scan: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key IN (`+placeholders(len(keys))+`)`, anys(keys)...)
	if err != nil {
		return fmt.Errorf("metadata: delete %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anys(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
