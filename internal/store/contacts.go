package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"zapsend/internal/domain"
)

func (s *Store) CreateContact(ctx context.Context, c *domain.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: contact name is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(c.WhatsAppNumber) == "" {
		return fmt.Errorf("%w: whatsapp number is required", domain.ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts(name, whatsapp_number, group_id, created_at) VALUES(?,?,?,?)`,
		c.Name, c.WhatsAppNumber, nullInt(c.GroupID), fmtTime(c.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: whatsapp number already registered", domain.ErrInvalidInput)
		}
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateContact(ctx context.Context, c domain.Contact) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET name = ?, whatsapp_number = ?, group_id = ? WHERE id = ?`,
		c.Name, c.WhatsAppNumber, nullInt(c.GroupID), c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("contact %d: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteContact(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("contact %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ContactByID(ctx context.Context, id int64) (domain.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, whatsapp_number, COALESCE(group_id, 0), created_at
		 FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contact{}, fmt.Errorf("contact %d: %w", id, domain.ErrNotFound)
	}
	return c, err
}

func (s *Store) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, whatsapp_number, COALESCE(group_id, 0), created_at
		 FROM contacts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// ContactsByGroup returns the group's contacts in stable insertion
// order. An existing group with no contacts yields an empty slice.
func (s *Store) ContactsByGroup(ctx context.Context, groupID int64) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, whatsapp_number, COALESCE(group_id, 0), created_at
		 FROM contacts WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(r rowScanner) (domain.Contact, error) {
	var c domain.Contact
	var created string
	if err := r.Scan(&c.ID, &c.Name, &c.WhatsAppNumber, &c.GroupID, &created); err != nil {
		return domain.Contact{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

func collectContacts(rows *sql.Rows) ([]domain.Contact, error) {
	out := []domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
