package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"zapsend/pkg/logx"
)

// Setting returns the stored value for key. ok is false when the key
// is absent or lookup failed; callers treat that as "fall back to the
// static config".
func (s *Store) Setting(ctx context.Context, key string) (string, bool) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.log.Warn("setting lookup failed", logx.String("key", key), logx.Err(err))
		return "", false
	}
	return v.String, v.Valid
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, fmtTime(time.Now()),
	)
	return err
}

func (s *Store) Settings(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.Setting(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}
