package dialog

import (
	"time"

	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
)

// Booking holds the slots collected from the caller.
type Booking struct {
	Name          string          `json:"name,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Address       string          `json:"address,omitempty"`
	Issue         string          `json:"issue,omitempty"`
	Date          time.Time       `json:"date,omitempty"`
	Window        schedule.Window `json:"window,omitempty"`
	AppointmentID string          `json:"appointment_id,omitempty"`
}

// HasDate reports whether a visit date has been chosen.
func (b Booking) HasDate() bool {
	return !b.Date.IsZero()
}

// Reply is what the agent does at the end of a turn.
type Reply struct {
	Text string `json:"text"`
	// Listen keeps the call open for another caller utterance.
	Listen bool `json:"listen"`
	Hangup bool `json:"hangup"`
	// Dial transfers the call to this number after Text is spoken.
	Dial  string   `json:"dial,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

// Session is the externalized state of one call, keyed by Call SID. It is
// loaded and saved around every webhook.
type Session struct {
	CallSID string `json:"call_sid"`
	From    string `json:"from"`
	To      string `json:"to"`

	State       State `json:"state"`
	ResumeState State `json:"resume_state,omitempty"`
	// Turn counts rendered replies; Gather action URLs carry it so a
	// redelivered webhook can be recognized.
	Turn         int `json:"turn"`
	NoInputCount int `json:"no_input_count"`
	RetryCount   int `json:"retry_count"`

	Booking      Booking `json:"booking"`
	Emergency    bool    `json:"emergency"`
	Hazard       string  `json:"hazard,omitempty"`
	PhoneOffered bool    `json:"phone_offered"`
	LLMCalls     int     `json:"llm_calls"`
	// CallerIDDeclined stops the caller ID from being offered again.
	CallerIDDeclined bool `json:"caller_id_declined"`

	Transcript []model.TranscriptEntry `json:"transcript"`
	LastReply  *Reply                  `json:"last_reply,omitempty"`
	Outcome    Outcome                 `json:"outcome,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates the state for a new inbound call.
func NewSession(callSID, from, to string, now time.Time) *Session {
	return &Session{
		CallSID:   callSID,
		From:      from,
		To:        to,
		State:     StateGreeting,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the conversation has ended.
func (s *Session) Finished() bool {
	return s.Outcome != OutcomeNone
}

func (s *Session) record(speaker, text string, at time.Time) {
	if text == "" {
		return
	}
	s.Transcript = append(s.Transcript, model.TranscriptEntry{
		Speaker: speaker,
		Text:    text,
		State:   string(s.State),
		At:      at,
	})
}

// CallLog converts the session into its durable record.
func (s *Session) CallLog(endedAt *time.Time) model.CallLog {
	transcript := s.Transcript
	if transcript == nil {
		transcript = []model.TranscriptEntry{}
	}
	return model.CallLog{
		CallSID:       s.CallSID,
		From:          s.From,
		To:            s.To,
		StartedAt:     s.StartedAt,
		EndedAt:       endedAt,
		FinalState:    string(s.State),
		Outcome:       string(s.Outcome),
		Turns:         s.Turn,
		Emergency:     s.Emergency,
		AppointmentID: s.Booking.AppointmentID,
		Transcript:    transcript,
	}
}
