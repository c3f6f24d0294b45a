// Package extract pulls structured slots (intent, name, phone, address and
// so on) out of a caller's transcribed speech.
package extract

import (
	"context"
	"time"
)

// Intent is the caller's high-level goal for an utterance.
type Intent string

const (
	IntentNone      Intent = ""
	IntentSchedule  Intent = "schedule"
	IntentQuestion  Intent = "question"
	IntentEmergency Intent = "emergency"
	IntentGoodbye   Intent = "goodbye"
	IntentHuman     Intent = "human"
)

// Answer is a yes/no reading of the utterance.
type Answer int

const (
	AnswerNone Answer = iota
	AnswerYes
	AnswerNo
)

// Request is one utterance to extract from.
type Request struct {
	// State is the dialog state that asked the question being answered.
	State     string
	Utterance string
	Now       time.Time
}

// Slots holds everything extracted from one utterance. Empty fields were
// not found.
type Slots struct {
	Intent  Intent
	Answer  Answer
	Name    string
	Phone   string
	Address string
	Issue   string
	Date    string
	Time    string
}

// Extractor extracts slots from an utterance.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Slots, error)
}

// Merge overlays primary on top of fallback, field by field.
func Merge(primary, fallback Slots) Slots {
	out := fallback
	if primary.Intent != IntentNone {
		out.Intent = primary.Intent
	}
	if primary.Answer != AnswerNone {
		out.Answer = primary.Answer
	}
	if primary.Name != "" {
		out.Name = primary.Name
	}
	// Deterministic digit parsing beats the model for phone numbers.
	if fallback.Phone == "" && primary.Phone != "" {
		out.Phone = primary.Phone
	}
	if primary.Address != "" {
		out.Address = primary.Address
	}
	if primary.Issue != "" {
		out.Issue = primary.Issue
	}
	if primary.Date != "" {
		out.Date = primary.Date
	}
	if primary.Time != "" {
		out.Time = primary.Time
	}
	return out
}
