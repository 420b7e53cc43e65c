package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nursedesk/internal/domain"
	"nursedesk/internal/models"

	"github.com/jackc/pgx/v5"
)

const (
	personColumns = `id, username, name, role, created_at`
	slotColumns   = `id, to_char(slot_date, 'YYYY-MM-DD'), slot_time, status, created_by, created_at, modified_by, modified_at`
)

func scanPerson(row pgx.Row) (*models.Person, error) {
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

func scanSlot(row pgx.Row) (*models.Slot, error) {
	var s models.Slot
	var status string
	var modifiedBy *string
	if err := row.Scan(&s.ID, &s.Date, &s.Time, &status, &s.CreatedBy, &s.CreatedAt, &modifiedBy, &s.ModifiedAt); err != nil {
		return nil, err
	}
	s.Status = models.SlotStatus(status)
	if modifiedBy != nil {
		s.ModifiedBy = *modifiedBy
	}
	return &s, nil
}

func parseDate(date string) (time.Time, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", date, domain.ErrValidation)
	}
	return d, nil
}

func (s *Store) GetPersonByUsername(ctx context.Context, username string) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("person %q: %w", username, domain.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person %q: %w", username, err)
	}
	return p, nil
}

func (s *Store) GetPersonByID(ctx context.Context, id int64) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("person %d: %w", id, domain.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) ListPeopleByRole(ctx context.Context, role models.Role) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM people WHERE role = $1 ORDER BY name, id`, string(role))
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

// SyncRoster inserts unknown people in one batch; existing usernames are skipped.
func (s *Store) SyncRoster(ctx context.Context, people []models.Person) (int, error) {
	if len(people) == 0 {
		return 0, nil
	}

	now := time.Now()
	batch := &pgx.Batch{}
	for _, p := range people {
		batch.Queue(`
			INSERT INTO people (username, name, role, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (username) DO NOTHING`,
			p.Username, p.Name, string(p.Role), now)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for _, p := range people {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert person %s: %w", p.Username, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if inserted > 0 {
		s.logger.Info().Int("inserted", inserted).Int("total", len(people)).Msg("Roster synced")
	}
	return inserted, nil
}

func (s *Store) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	slot, err := scanSlot(s.pool.QueryRow(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("slot %d: %w", id, domain.ErrSlotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", id, err)
	}
	return slot, nil
}

func (s *Store) ListAvailableSlots(ctx context.Context, q models.SlotQuery) ([]models.Slot, error) {
	from, err := parseDate(q.From)
	if err != nil {
		return nil, err
	}
	cmp := ">="
	if q.Exact {
		cmp = "="
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = 'Available' AND slot_date `+cmp+` $1
		ORDER BY slot_date, slot_time, id`, from)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	return slots, rows.Err()
}

func (s *Store) ProvisionSlot(ctx context.Context, date, clock, actor string, at time.Time) (*models.Slot, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := models.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("time %q: %w", clock, domain.ErrValidation)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO slots (slot_date, slot_time, status, created_by, created_at)
		VALUES ($1, $2, 'Available', $3, $4)
		RETURNING id`,
		d, clock, actor, at,
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("slot %s %s: %w", date, clock, domain.ErrSlotExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert slot: %w", err)
	}

	return &models.Slot{
		ID:        id,
		Date:      date,
		Time:      clock,
		Status:    models.SlotAvailable,
		CreatedBy: actor,
		CreatedAt: at,
	}, nil
}
