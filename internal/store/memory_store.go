package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
)

// MemoryStore implements Store in process memory
type MemoryStore struct {
	mu           sync.RWMutex
	appointments map[string]*model.Appointment
	callLogs     map[string]*model.CallLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: make(map[string]*model.Appointment),
		callLogs:     make(map[string]*model.CallLog),
	}
}

// CreateAppointment stores a copy of appt, assigning its ID and creation time
func (s *MemoryStore) CreateAppointment(_ context.Context, appt *model.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	if appt.Status == "" {
		appt.Status = model.AppointmentScheduled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *appt
	s.appointments[appt.ID] = &stored
	return nil
}

// CountAppointments returns the scheduled visits in one arrival window
func (s *MemoryStore) CountAppointments(_ context.Context, date time.Time, window string) (int, error) {
	day := date.Format(schedule.DateLayout)

	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.appointments {
		if a.Status == model.AppointmentScheduled && a.Window == window && a.Date.Format(schedule.DateLayout) == day {
			count++
		}
	}
	return count, nil
}

// ListAppointments returns the visits booked for a day
func (s *MemoryStore) ListAppointments(_ context.Context, date time.Time) ([]*model.Appointment, error) {
	day := date.Format(schedule.DateLayout)

	s.mu.RLock()
	appts := make([]*model.Appointment, 0)
	for _, a := range s.appointments {
		if a.Date.Format(schedule.DateLayout) == day {
			cp := *a
			appts = append(appts, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Window != appts[j].Window {
			return appts[i].Window < appts[j].Window
		}
		return appts[i].CreatedAt.Before(appts[j].CreatedAt)
	})
	return appts, nil
}

// GetAppointment retrieves one appointment
func (s *MemoryStore) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// UpsertCallLog stores a copy of a call record, keeping an end time or
// call status already recorded when log has none
func (s *MemoryStore) UpsertCallLog(_ context.Context, log *model.CallLog) error {
	cp := *log
	cp.Transcript = append([]model.TranscriptEntry(nil), log.Transcript...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.callLogs[log.CallSID]; ok {
		if cp.EndedAt == nil {
			cp.EndedAt = prev.EndedAt
		}
		if cp.CallStatus == "" {
			cp.CallStatus = prev.CallStatus
		}
	}
	s.callLogs[log.CallSID] = &cp
	return nil
}

// GetCallLog retrieves one call record
func (s *MemoryStore) GetCallLog(_ context.Context, callSID string) (*model.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.callLogs[callSID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *log
	return &cp, nil
}

// ListCallLogs returns the most recent call records
func (s *MemoryStore) ListCallLogs(_ context.Context, limit int) ([]*model.CallLog, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	logs := make([]*model.CallLog, 0, len(s.callLogs))
	for _, l := range s.callLogs {
		cp := *l
		logs = append(logs, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].StartedAt.After(logs[j].StartedAt)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() {}
