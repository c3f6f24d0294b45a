package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/store"
)

// Booker adapts the appointment store for the dialog machine, retrying
// transient database failures
type Booker struct {
	appointments store.AppointmentStore
	executor     *resilience.Executor
	recorder     Recorder
}

// NewBooker creates a booker
func NewBooker(appointments store.AppointmentStore, executor *resilience.Executor, recorder Recorder) *Booker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Booker{
		appointments: appointments,
		executor:     executor,
		recorder:     recorder,
	}
}

// CountAppointments implements dialog.Booker
func (b *Booker) CountAppointments(ctx context.Context, date time.Time, window string) (int, error) {
	var count int
	err := b.executor.Do(ctx, func(ctx context.Context) error {
		var err error
		count, err = b.appointments.CountAppointments(ctx, date, window)
		return err
	})
	return count, err
}

// CreateAppointment implements dialog.Booker. The ID is fixed before the
// first attempt so a retried insert cannot book twice.
func (b *Booker) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	err := b.executor.Do(ctx, func(ctx context.Context) error {
		return b.appointments.CreateAppointment(ctx, appt)
	})
	b.recorder.RecordBooking(appt.Emergency, err)
	return err
}
