package model

import "time"

// TranscriptEntry is one utterance in a call, spoken by the caller or the agent
type TranscriptEntry struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	State   string    `json:"state"`
	At      time.Time `json:"at"`
}

const (
	SpeakerCaller = "caller"
	SpeakerAgent  = "agent"
)

// CallLog is the durable record of a finished (or abandoned) call
type CallLog struct {
	CallSID       string            `json:"call_sid"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	FinalState    string            `json:"final_state"`
	Outcome       string            `json:"outcome"`
	CallStatus    string            `json:"call_status,omitempty"`
	Turns         int               `json:"turns"`
	Emergency     bool              `json:"emergency"`
	AppointmentID string            `json:"appointment_id,omitempty"`
	Transcript    []TranscriptEntry `json:"transcript"`
}
