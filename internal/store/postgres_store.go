package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store for PostgreSQL
type PostgresStore struct {
	db     DB
	logger *zap.Logger
}

// NewPostgresStore connects to PostgreSQL and verifies the connection
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresStoreWithDB(pool, logger), nil
}

// NewPostgresStoreWithDB wraps an existing connection pool
func NewPostgresStoreWithDB(db DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// DB returns the underlying connection pool
func (s *PostgresStore) DB() DB {
	return s.db
}

// CreateAppointment inserts a booked visit, assigning its ID and creation time.
// Retrying with the same ID is a no-op
func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	if appt.Status == "" {
		appt.Status = model.AppointmentScheduled
	}

	query := `
		INSERT INTO appointments (id, call_sid, customer_name, phone, address, issue,
			appointment_date, time_window, emergency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query,
		appt.ID,
		appt.CallSID,
		appt.CustomerName,
		appt.Phone,
		appt.Address,
		appt.Issue,
		appt.Date.Format(schedule.DateLayout),
		appt.Window,
		appt.Emergency,
		string(appt.Status),
		appt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// CountAppointments returns the scheduled visits in one arrival window
func (s *PostgresStore) CountAppointments(ctx context.Context, date time.Time, window string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE appointment_date = $1 AND time_window = $2 AND status = 'scheduled'
	`

	var count int
	if err := s.db.QueryRow(ctx, query, date.Format(schedule.DateLayout), window).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count, nil
}

const appointmentColumns = `id::text, call_sid, customer_name, phone, address, issue,
	appointment_date, time_window, emergency, status, created_at`

// ListAppointments returns the visits booked for a day
func (s *PostgresStore) ListAppointments(ctx context.Context, date time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE appointment_date = $1
		ORDER BY time_window, created_at
	`

	rows, err := s.db.Query(ctx, query, date.Format(schedule.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	appts := make([]*model.Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appts, nil
}

// GetAppointment retrieves one appointment
func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	appt, err := scanAppointment(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return appt, err
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		appt   model.Appointment
		status string
	)
	err := row.Scan(
		&appt.ID,
		&appt.CallSID,
		&appt.CustomerName,
		&appt.Phone,
		&appt.Address,
		&appt.Issue,
		&appt.Date,
		&appt.Window,
		&appt.Emergency,
		&status,
		&appt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	appt.Status = model.AppointmentStatus(status)
	return &appt, nil
}

// UpsertCallLog writes a call record, replacing any earlier version. An end
// time or call status already recorded is kept when log has none
func (s *PostgresStore) UpsertCallLog(ctx context.Context, log *model.CallLog) error {
	transcript, err := json.Marshal(log.Transcript)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	var appointmentID *string
	if log.AppointmentID != "" {
		appointmentID = &log.AppointmentID
	}

	query := `
		INSERT INTO call_logs (call_sid, from_number, to_number, started_at, ended_at,
			final_state, outcome, call_status, turns, emergency, appointment_id, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (call_sid) DO UPDATE SET
			ended_at = COALESCE(EXCLUDED.ended_at, call_logs.ended_at),
			final_state = EXCLUDED.final_state,
			outcome = EXCLUDED.outcome,
			call_status = COALESCE(NULLIF(EXCLUDED.call_status, ''), call_logs.call_status),
			turns = EXCLUDED.turns,
			emergency = EXCLUDED.emergency,
			appointment_id = EXCLUDED.appointment_id,
			transcript = EXCLUDED.transcript
	`

	_, err = s.db.Exec(ctx, query,
		log.CallSID,
		log.From,
		log.To,
		log.StartedAt,
		log.EndedAt,
		log.FinalState,
		log.Outcome,
		log.CallStatus,
		log.Turns,
		log.Emergency,
		appointmentID,
		transcript,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert call log: %w", err)
	}
	return nil
}

const callLogColumns = `call_sid, from_number, to_number, started_at, ended_at, final_state,
	outcome, call_status, turns, emergency, COALESCE(appointment_id::text, ''), transcript`

// GetCallLog retrieves one call record
func (s *PostgresStore) GetCallLog(ctx context.Context, callSID string) (*model.CallLog, error) {
	query := `SELECT ` + callLogColumns + ` FROM call_logs WHERE call_sid = $1`

	log, err := scanCallLog(s.db.QueryRow(ctx, query, callSID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return log, err
}

// ListCallLogs returns the most recent call records
func (s *PostgresStore) ListCallLogs(ctx context.Context, limit int) ([]*model.CallLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + callLogColumns + `
		FROM call_logs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*model.CallLog, 0)
	for rows.Next() {
		log, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	return logs, nil
}

func scanCallLog(row pgx.Row) (*model.CallLog, error) {
	var (
		log        model.CallLog
		transcript []byte
	)
	err := row.Scan(
		&log.CallSID,
		&log.From,
		&log.To,
		&log.StartedAt,
		&log.EndedAt,
		&log.FinalState,
		&log.Outcome,
		&log.CallStatus,
		&log.Turns,
		&log.Emergency,
		&log.AppointmentID,
		&transcript,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan call log: %w", err)
	}

	log.Transcript = []model.TranscriptEntry{}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &log.Transcript); err != nil {
			return nil, fmt.Errorf("failed to decode transcript: %w", err)
		}
	}
	return &log, nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.db.Close()
}
