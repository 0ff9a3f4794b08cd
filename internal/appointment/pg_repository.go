package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	a.id, a.patient_id, COALESCE(p.name, ''), a.therapist_id, a.start_time, a.end_time,
	a.type, a.status, a.series_id, a.recurrence_rule, a.value_cents, a.paid,
	a.created_at, a.updated_at`

const selectAppointments = `SELECT ` + appointmentColumns + `
	FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id`

// returningAppointment wraps a data-modifying statement named a so the
// result carries the patient name.
func returningAppointment(stmt string) string {
	return `WITH a AS (` + stmt + ` RETURNING *) SELECT ` + appointmentColumns + `
	FROM a LEFT JOIN patients p ON p.id = a.patient_id`
}

// Helpers

func scanAppointment(row pgx.Row) (*schedule.Appointment, error) {
	var a schedule.Appointment
	var rule []byte

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientName,
		&a.TherapistID,
		&a.StartTime,
		&a.EndTime,
		&a.Type,
		&a.Status,
		&a.SeriesID,
		&rule,
		&a.Value,
		&a.Paid,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(rule) > 0 {
		var r schedule.RecurrenceRule
		if err := json.Unmarshal(rule, &r); err != nil {
			return nil, fmt.Errorf("decode recurrence rule of %s: %w", a.ID, err)
		}
		a.Recurrence = &r
	}
	return &a, nil
}

func scanBlock(row pgx.Row) (*schedule.AvailabilityBlock, error) {
	var b schedule.AvailabilityBlock

	err := row.Scan(
		&b.ID,
		&b.TherapistID,
		&b.StartTime,
		&b.EndTime,
		&b.Title,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return &b, nil
}

func collectAppointments(rows pgx.Rows) ([]schedule.Appointment, error) {
	defer rows.Close()

	var result []schedule.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// translateWriteError maps constraint violations to domain errors.
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		return ErrOverlapConstraint
	case pgForeignKeyViolation:
		field := "reference"
		switch {
		case strings.Contains(pgErr.ConstraintName, "patient"):
			field = "patient_id"
		case strings.Contains(pgErr.ConstraintName, "therapist"):
			field = "therapist_id"
		}
		return &schedule.ValidationError{Field: field, Reason: "does not exist"}
	}
	return err
}

// whereFilter renders f against the given table alias.
func whereFilter(alias string, f Filter, args []any) (string, []any) {
	var clauses []string
	if f.TherapistID != uuid.Nil {
		args = append(args, f.TherapistID)
		clauses = append(clauses, fmt.Sprintf("%s.therapist_id = $%d", alias, len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		clauses = append(clauses, fmt.Sprintf("%s.start_time < $%d", alias, len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		clauses = append(clauses, fmt.Sprintf("%s.end_time > $%d", alias, len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func encodeRule(r *schedule.RecurrenceRule) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Interface methods

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]schedule.Appointment, error) {
	where, args := whereFilter("a", f, nil)
	rows, err := r.pool.Query(ctx, selectAppointments+where+` ORDER BY a.start_time, a.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	row := r.pool.QueryRow(ctx, selectAppointments+` WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointments(ctx context.Context, appts []schedule.Appointment) error {
	batch := &pgx.Batch{}
	for _, a := range appts {
		rule, err := encodeRule(a.Recurrence)
		if err != nil {
			return fmt.Errorf("encode recurrence rule: %w", err)
		}
		batch.Queue(`
			INSERT INTO appointments (
				id, patient_id, therapist_id, start_time, end_time, type, status,
				series_id, recurrence_rule, value_cents, paid, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		`, a.ID, a.PatientID, a.TherapistID, a.StartTime, a.EndTime, a.Type, a.Status,
			a.SeriesID, rule, a.Value, a.Paid)
	}

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return translateWriteError(err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentTimes(ctx context.Context, id, therapistID uuid.UUID, start, end time.Time) (*schedule.Appointment, error) {
	row := r.pool.QueryRow(ctx, returningAppointment(`
		UPDATE appointments
		SET therapist_id = $2,
		    start_time = $3,
		    end_time = $4,
		    updated_at = now()
		WHERE id = $1`), id, therapistID, start, end)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, translateWriteError(err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to schedule.Status) (*schedule.Appointment, error) {
	row := r.pool.QueryRow(ctx, returningAppointment(`
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3`), id, to, from)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, translateWriteError(err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointmentBilling(ctx context.Context, id uuid.UUID, value int64, paid bool) (*schedule.Appointment, error) {
	row := r.pool.QueryRow(ctx, returningAppointment(`
		UPDATE appointments
		SET value_cents = $2,
		    paid = $3,
		    updated_at = now()
		WHERE id = $1`), id, value, paid)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) DeleteSeriesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE series_id = $1
		  AND start_time >= $2
	`, seriesID, from)
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListBlocks(ctx context.Context, f Filter) ([]schedule.AvailabilityBlock, error) {
	where, args := whereFilter("b", f, nil)
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.therapist_id, b.start_time, b.end_time, b.title
		FROM availability_blocks b`+where+` ORDER BY b.start_time, b.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}
	defer rows.Close()

	var result []schedule.AvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateBlock(ctx context.Context, b schedule.AvailabilityBlock) (*schedule.AvailabilityBlock, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_blocks (id, therapist_id, start_time, end_time, title, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, therapist_id, start_time, end_time, title
	`, b.ID, b.TherapistID, b.StartTime, b.EndTime, b.Title)

	created, err := scanBlock(row)
	if err != nil {
		return nil, translateWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) GetSettings(ctx context.Context) (*schedule.Settings, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT settings FROM scheduling_settings WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("load scheduling settings: %w", err)
	}

	var s schedule.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scheduling settings: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) SaveSettings(ctx context.Context, s schedule.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode scheduling settings: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO scheduling_settings (id, settings, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET settings = EXCLUDED.settings,
		    updated_at = now()
	`, data)
	if err != nil {
		return fmt.Errorf("save scheduling settings: %w", err)
	}
	return nil
}

func (r *PgRepository) FindOverdueScheduled(ctx context.Context, endedBefore time.Time) ([]schedule.Appointment, error) {
	rows, err := r.pool.Query(ctx, selectAppointments+`
		WHERE a.status = 'scheduled'
		  AND a.end_time < $1
		ORDER BY a.end_time
		LIMIT 500
	`, endedBefore)
	if err != nil {
		return nil, fmt.Errorf("find overdue appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
