// Package service orchestrates call turns across the dialog machine, the
// session store, speech and persistence.
package service

import "time"

// Recorder receives service level measurements
type Recorder interface {
	RecordTurn(state string, duration time.Duration)
	RecordDuplicateWebhook()
	RecordLockTimeout()
	RecordAbandoned()
	RecordBooking(emergency bool, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordTurn(string, time.Duration) {}
func (nopRecorder) RecordDuplicateWebhook()          {}
func (nopRecorder) RecordLockTimeout()               {}
func (nopRecorder) RecordAbandoned()                 {}
func (nopRecorder) RecordBooking(bool, error)        {}
