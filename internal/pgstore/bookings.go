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

const activeOnDateQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.person_id = $1
		  AND b.status <> 'Cancelled'
		  AND s.status <> 'Emergency'
		  AND s.slot_date = $2
	)`

func (s *Store) HasActiveBookingOnDate(ctx context.Context, personID int64, date string) (bool, error) {
	d, err := parseDate(date)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, activeOnDateQuery, personID, d).Scan(&exists); err != nil {
		return false, fmt.Errorf("check bookings on %s: %w", date, err)
	}
	return exists, nil
}

// ReserveSlot transitions the slot to Reserved and inserts a Created booking atomically.
// With DailyLimit the person row is locked so two same-day requests serialize.
func (s *Store) ReserveSlot(ctx context.Context, p models.ReserveParams) (*models.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.DailyLimit {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM people WHERE id = $1 FOR UPDATE`, p.PersonID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("person %d: %w", p.PersonID, domain.ErrPersonNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lock person %d: %w", p.PersonID, err)
		}
	}

	var date time.Time
	err = tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'Reserved', modified_by = $1, modified_at = $2
		WHERE id = $3 AND status = 'Available'
		RETURNING slot_date`,
		p.Actor, p.At, p.SlotID,
	).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserve slot %d: %w", p.SlotID, domain.ErrSlotUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve slot %d: %w", p.SlotID, err)
	}

	if p.DailyLimit {
		var taken bool
		if err := tx.QueryRow(ctx, activeOnDateQuery, p.PersonID, date).Scan(&taken); err != nil {
			return nil, fmt.Errorf("check bookings: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("person %d on %s: %w", p.PersonID, models.DateOf(date), domain.ErrDuplicateBookingSameDay)
		}
	}

	b := &models.Booking{
		PersonID:  p.PersonID,
		SlotID:    p.SlotID,
		Status:    models.BookingCreated,
		CreatedBy: p.Actor,
		CreatedAt: p.At,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (person_id, slot_id, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		b.PersonID, b.SlotID, string(b.Status), b.CreatedBy, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// CreateEmergencyBooking finds or creates the emergency slot of p.Date and books the student on it.
func (s *Store) CreateEmergencyBooking(ctx context.Context, p models.EmergencyParams) (*models.Booking, bool, error) {
	d, err := parseDate(p.Date)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO slots (slot_date, slot_time, status, created_by, created_at)
		VALUES ($1, $2, 'Emergency', $3, $4)
		ON CONFLICT (slot_date) WHERE status = 'Emergency' DO NOTHING`,
		d, p.Time, p.Actor, p.At,
	)
	if err != nil {
		return nil, false, fmt.Errorf("open emergency slot: %w", err)
	}
	created := tag.RowsAffected() == 1

	var slotID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM slots WHERE slot_date = $1 AND status = 'Emergency'`, d,
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
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (person_id, slot_id, status, arrived_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		b.PersonID, b.SlotID, string(b.Status), at, b.CreatedBy, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return nil, false, fmt.Errorf("insert emergency booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	if created {
		s.logger.Info().Str("date", p.Date).Int64("slot_id", slotID).Msg("Emergency slot opened")
	}
	return b, created, nil
}

func (s *Store) ListBookingsBySlot(ctx context.Context, slotID int64) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, person_id, slot_id, status, arrived_at, created_by, created_at
		FROM bookings WHERE slot_id = $1 ORDER BY id`, slotID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		var status string
		if err := rows.Scan(&b.ID, &b.PersonID, &b.SlotID, &status, &b.ArrivedAt, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = models.BookingStatus(status)
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
