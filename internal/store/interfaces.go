// Package store persists appointments and call logs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/hvac-voice-agent/internal/model"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// AppointmentStore reads and writes booked visits
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
	CountAppointments(ctx context.Context, date time.Time, window string) (int, error)
	ListAppointments(ctx context.Context, date time.Time) ([]*model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
}

// CallLogStore reads and writes call records
type CallLogStore interface {
	UpsertCallLog(ctx context.Context, log *model.CallLog) error
	GetCallLog(ctx context.Context, callSID string) (*model.CallLog, error)
	ListCallLogs(ctx context.Context, limit int) ([]*model.CallLog, error)
}

// Store is the full persistence surface of the agent
type Store interface {
	AppointmentStore
	CallLogStore

	// Health check
	Ping(ctx context.Context) error
	Close()
}
