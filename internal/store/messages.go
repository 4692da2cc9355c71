package store

import (
	"context"
	"database/sql"
	"time"

	"zapsend/internal/domain"
)

// AppendMessage records one delivery attempt in the history log.
func (s *Store) AppendMessage(ctx context.Context, m domain.MessageRecord) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Provider == "" {
		m.Provider = "z-api"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(contact_id, phone_number, content, status, provider, provider_message_id, err, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		nullInt(m.ContactID), nullStr(m.PhoneNumber), m.Content, m.Status,
		m.Provider, nullStr(m.ProviderMessageID), nullStr(m.Error), fmtTime(m.CreatedAt),
	)
	return err
}

// ListMessages returns the newest limit history entries (all when
// limit <= 0).
func (s *Store) ListMessages(ctx context.Context, limit int) ([]domain.MessageRecord, error) {
	q := `SELECT id, COALESCE(contact_id, 0), COALESCE(phone_number, ''), content, status,
	             provider, COALESCE(provider_message_id, ''), COALESCE(err, ''), created_at
	      FROM messages ORDER BY id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MessageRecord{}
	for rows.Next() {
		var m domain.MessageRecord
		var created string
		if err := rows.Scan(&m.ID, &m.ContactID, &m.PhoneNumber, &m.Content, &m.Status,
			&m.Provider, &m.ProviderMessageID, &m.Error, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
