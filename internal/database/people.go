package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nursedesk/internal/domain"
	"nursedesk/internal/models"
)

const personColumns = `id, username, name, role, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*models.Person, error) {
	var p models.Person
	var role string
	if err := row.Scan(&p.ID, &p.Username, &p.Name, &role, &p.CreatedAt); err != nil {
		return nil, err
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("person %d: %w", p.ID, err)
	}
	p.Role = r
	return &p, nil
}

// GetPersonByUsername resolves a caller identity.
func (db *DB) GetPersonByUsername(ctx context.Context, username string) (*models.Person, error) {
	p, err := scanPerson(db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %q: %w", username, domain.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person %q: %w", username, err)
	}
	return p, nil
}

func (db *DB) GetPersonByID(ctx context.Context, id int64) (*models.Person, error) {
	p, err := scanPerson(db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %d: %w", id, domain.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person %d: %w", id, err)
	}
	return p, nil
}

// ListPeopleByRole returns people of a role ordered by name.
func (db *DB) ListPeopleByRole(ctx context.Context, role models.Role) ([]models.Person, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE role = ? ORDER BY name, id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

// SyncRoster inserts people that are not yet known by username.
// Existing rows are left untouched since people are immutable.
func (db *DB) SyncRoster(ctx context.Context, people []models.Person) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO people (username, name, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare roster insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	inserted := 0
	for _, p := range people {
		res, err := stmt.ExecContext(ctx, p.Username, p.Name, string(p.Role), now)
		if err != nil {
			return 0, fmt.Errorf("insert person %s: %w", p.Username, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if inserted > 0 {
		db.logger.Info().Int("inserted", inserted).Int("total", len(people)).Msg("Roster synced")
	}
	return inserted, nil
}
