package database

import (
	"context"
	"database/sql"
	"fmt"

	"nursedesk/internal/domain"
	"nursedesk/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const activeOnDateQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.person_id = ?
		  AND b.status <> 'Cancelled'
		  AND s.status <> 'Emergency'
		  AND s.slot_date = ?
	)`

func hasActiveBookingOnDate(ctx context.Context, q querier, personID int64, date string) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, activeOnDateQuery, personID, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("check bookings on %s: %w", date, err)
	}
	return exists, nil
}

// HasActiveBookingOnDate reports whether the person holds a non-cancelled booking
// on a non-emergency slot dated date.
func (db *DB) HasActiveBookingOnDate(ctx context.Context, personID int64, date string) (bool, error) {
	return hasActiveBookingOnDate(ctx, db.DB, personID, date)
}

// ReserveSlot moves the slot from Available to Reserved and inserts a Created booking
// in one transaction. Nothing is written when either step fails.
func (db *DB) ReserveSlot(ctx context.Context, p models.ReserveParams) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE slots
		SET status = 'Reserved', modified_by = ?, modified_at = ?
		WHERE id = ? AND status = 'Available'`,
		p.Actor, p.At, p.SlotID,
	)
	if err != nil {
		return nil, fmt.Errorf("reserve slot %d: %w", p.SlotID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("reserve slot %d: %w", p.SlotID, domain.ErrSlotUnavailable)
	}

	if p.DailyLimit {
		var date string
		if err := tx.QueryRowContext(ctx, `SELECT slot_date FROM slots WHERE id = ?`, p.SlotID).Scan(&date); err != nil {
			return nil, fmt.Errorf("get slot date: %w", err)
		}
		taken, err := hasActiveBookingOnDate(ctx, tx, p.PersonID, date)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("person %d on %s: %w", p.PersonID, date, domain.ErrDuplicateBookingSameDay)
		}
	}

	b := &models.Booking{
		PersonID:  p.PersonID,
		SlotID:    p.SlotID,
		Status:    models.BookingCreated,
		CreatedBy: p.Actor,
		CreatedAt: p.At,
	}
	res, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (person_id, slot_id, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.PersonID, b.SlotID, string(b.Status), b.CreatedBy, b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	db.logger.Debug().Int64("booking_id", b.ID).Int64("slot_id", b.SlotID).Msg("Slot reserved")
	return b, nil
}

// CreateEmergencyBooking finds or creates the emergency slot for p.Date and books the
// student on it. created reports whether this call opened the slot.
func (db *DB) CreateEmergencyBooking(ctx context.Context, p models.EmergencyParams) (*models.Booking, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO slots (slot_date, slot_time, status, created_by, created_at)
		VALUES (?, ?, 'Emergency', ?, ?)
		ON CONFLICT (slot_date) WHERE status = 'Emergency' DO NOTHING`,
		p.Date, p.Time, p.Actor, p.At,
	)
	if err != nil {
		return nil, false, fmt.Errorf("open emergency slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	created := affected == 1

	var slotID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM slots WHERE slot_date = ? AND status = 'Emergency'`, p.Date,
	).Scan(&slotID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch emergency slot %s: %w", p.Date, err)
	}

	at := p.At
	b := &models.Booking{
		PersonID:  p.StudentID,
		SlotID:    slotID,
		Status:    models.BookingEmergency,
		ArrivedAt: &at,
		CreatedBy: p.Actor,
		CreatedAt: p.At,
	}
	res, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (person_id, slot_id, status, arrived_at, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.PersonID, b.SlotID, string(b.Status), at, b.CreatedBy, b.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert emergency booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return nil, false, fmt.Errorf("get last id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	if created {
		db.logger.Info().Str("date", p.Date).Int64("slot_id", slotID).Msg("Emergency slot opened")
	}
	return b, created, nil
}

// ListBookingsBySlot returns every booking referencing the slot, oldest first.
func (db *DB) ListBookingsBySlot(ctx context.Context, slotID int64) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, person_id, slot_id, status, arrived_at, created_by, created_at
		FROM bookings WHERE slot_id = ? ORDER BY id`, slotID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		var status string
		var arrived sql.NullTime
		if err := rows.Scan(&b.ID, &b.PersonID, &b.SlotID, &status, &arrived, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = models.BookingStatus(status)
		if arrived.Valid {
			t := arrived.Time
			b.ArrivedAt = &t
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
