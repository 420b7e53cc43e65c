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

const slotColumns = `id, slot_date, slot_time, status, created_by, created_at, modified_by, modified_at`

func scanSlot(row rowScanner) (*models.Slot, error) {
	var s models.Slot
	var status string
	var modifiedBy sql.NullString
	var modifiedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.Date, &s.Time, &status, &s.CreatedBy, &s.CreatedAt, &modifiedBy, &modifiedAt); err != nil {
		return nil, err
	}
	s.Status = models.SlotStatus(status)
	s.ModifiedBy = modifiedBy.String
	if modifiedAt.Valid {
		t := modifiedAt.Time
		s.ModifiedAt = &t
	}
	return &s, nil
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	s, err := scanSlot(db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %d: %w", id, domain.ErrSlotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %d: %w", id, err)
	}
	return s, nil
}

// ListAvailableSlots returns Available slots ordered by date, time and id.
func (db *DB) ListAvailableSlots(ctx context.Context, q models.SlotQuery) ([]models.Slot, error) {
	cmp := ">="
	if q.Exact {
		cmp = "="
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = 'Available' AND slot_date `+cmp+` ?
		ORDER BY slot_date, slot_time, id`, q.From)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *s)
	}
	return slots, rows.Err()
}

// ProvisionSlot inserts a new Available slot.
func (db *DB) ProvisionSlot(ctx context.Context, date, clock, actor string, at time.Time) (*models.Slot, error) {
	if err := models.ValidateSlotTime(date, clock); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO slots (slot_date, slot_time, status, created_by, created_at)
		VALUES (?, ?, 'Available', ?, ?)`,
		date, clock, actor, at,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("slot %s %s: %w", date, clock, domain.ErrSlotExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert slot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last id: %w", err)
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
