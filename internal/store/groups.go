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

func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: group name is required", domain.ErrInvalidInput)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO groups(name, description, created_at) VALUES(?,?,?)`,
		g.Name, nullStr(g.Description), fmtTime(g.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: group name already exists", domain.ErrInvalidInput)
		}
		return err
	}
	g.ID, err = res.LastInsertId()
	return err
}

// DeleteGroup removes the group; its contacts go with it (cascade).
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("group %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) GroupByID(ctx context.Context, id int64) (domain.Group, error) {
	var g domain.Group
	var desc sql.NullString
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &desc, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Group{}, fmt.Errorf("group %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Group{}, err
	}
	g.Description = desc.String
	g.CreatedAt = parseTime(created)
	return g, nil
}

func (s *Store) GroupExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), created_at FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Group{}
	for rows.Next() {
		var g domain.Group
		var created string
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &created); err != nil {
			return nil, err
		}
		g.CreatedAt = parseTime(created)
		out = append(out, g)
	}
	return out, rows.Err()
}
