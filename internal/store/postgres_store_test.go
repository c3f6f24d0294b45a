package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/hvac-voice-agent/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewPostgresStoreWithDB(mock, nil), mock
}

func testDay() time.Time {
	return time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC)
}

func TestPostgresStore_CreateAppointment(t *testing.T) {
	s, mock := newMockStore(t)

	appt := &model.Appointment{
		CallSID:      "CA1",
		CustomerName: "Jane Doe",
		Phone:        "+15551234567",
		Address:      "12 Oak Street",
		Issue:        "AC not cooling",
		Date:         testDay(),
		Window:       "morning",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WithArgs(pgxmock.AnyArg(), "CA1", "Jane Doe", "+15551234567", "12 Oak Street", "AC not cooling",
			"2025-10-16", "morning", false, "scheduled", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateAppointment(context.Background(), appt))
	assert.Len(t, appt.ID, 36)
	assert.False(t, appt.CreatedAt.IsZero())
	assert.Equal(t, model.AppointmentScheduled, appt.Status)
}

func TestPostgresStore_CreateAppointmentError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WillReturnError(errors.New("connection reset"))

	err := s.CreateAppointment(context.Background(), &model.Appointment{Date: testDay()})
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresStore_CountAppointments(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("2025-10-16", "afternoon").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	count, err := s.CountAppointments(context.Background(), testDay(), "afternoon")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPostgresStore_ListAppointments(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC)
	cols := []string{"id", "call_sid", "customer_name", "phone", "address", "issue",
		"appointment_date", "time_window", "emergency", "status", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments")).
		WithArgs("2025-10-16").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("a1", "CA1", "Jane Doe", "+15551234567", "12 Oak Street", "No heat", testDay(), "morning", false, "scheduled", created).
			AddRow("a2", "CA2", "Bob Ray", "+15557654321", "9 Elm Road", "Leak", testDay(), "afternoon", true, "scheduled", created))

	appts, err := s.ListAppointments(context.Background(), testDay())
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, "a1", appts[0].ID)
	assert.Equal(t, "Jane Doe", appts[0].CustomerName)
	assert.True(t, appts[1].Emergency)
	assert.Equal(t, model.AppointmentScheduled, appts[1].Status)
}

func TestPostgresStore_GetAppointmentNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAppointment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpsertCallLog(t *testing.T) {
	s, mock := newMockStore(t)
	started := time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC)
	ended := started.Add(3 * time.Minute)

	log := &model.CallLog{
		CallSID:    "CA1",
		From:       "+15551234567",
		To:         "+15550000000",
		StartedAt:  started,
		EndedAt:    &ended,
		FinalState: "complete",
		Outcome:    "booked",
		Turns:      8,
		Transcript: []model.TranscriptEntry{{Speaker: model.SpeakerAgent, Text: "Hi", State: "greeting", At: started}},
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (call_sid) DO UPDATE")).
		WithArgs("CA1", "+15551234567", "+15550000000", started, &ended, "complete", "booked", "",
			8, false, (*string)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertCallLog(context.Background(), log))
}

func TestPostgresStore_GetCallLog(t *testing.T) {
	s, mock := newMockStore(t)
	started := time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC)
	ended := started.Add(time.Minute)
	cols := []string{"call_sid", "from_number", "to_number", "started_at", "ended_at", "final_state",
		"outcome", "call_status", "turns", "emergency", "appointment_id", "transcript"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM call_logs WHERE call_sid = $1")).
		WithArgs("CA1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("CA1", "+15551234567", "+15550000000", started, &ended,
			"complete", "booked", "completed", 8, false, "a1",
			[]byte(`[{"speaker":"agent","text":"Hi","state":"greeting","at":"2025-10-15T14:00:00Z"}]`)))

	log, err := s.GetCallLog(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "booked", log.Outcome)
	assert.Equal(t, "a1", log.AppointmentID)
	require.Len(t, log.Transcript, 1)
	assert.Equal(t, "Hi", log.Transcript[0].Text)
}

func TestPostgresStore_GetCallLogNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM call_logs WHERE call_sid = $1")).
		WithArgs("CA404").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCallLog(context.Background(), "CA404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ListCallLogsDefaultLimit(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"call_sid", "from_number", "to_number", "started_at", "ended_at", "final_state",
		"outcome", "call_status", "turns", "emergency", "appointment_id", "transcript"}
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY started_at DESC")).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(cols))

	logs, err := s.ListCallLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	migrations, err := Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001_appointments", migrations[0].Version)
	assert.Equal(t, "002_call_logs", migrations[1].Version)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("001_appointments").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("002_call_logs").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS call_logs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("002_call_logs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), mock, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_call_logs"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("001_appointments").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS appointments")).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	applied, err := Migrate(context.Background(), mock, nil)
	assert.ErrorContains(t, err, "001_appointments")
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
