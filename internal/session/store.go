// Package session stores conversation state between Twilio webhooks.
package session

import (
	"context"
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotFound is returned when no session exists for a call.
	ErrNotFound = errors.New("session not found")
	// ErrLockTimeout is returned when another webhook for the same call
	// holds the lock for longer than the wait budget.
	ErrLockTimeout = errors.New("timed out waiting for session lock")
)

// Store persists sessions keyed by Call SID.
type Store interface {
	Get(ctx context.Context, callSID string) (*dialog.Session, error)
	Save(ctx context.Context, s *dialog.Session) error
	Delete(ctx context.Context, callSID string) error
	// List returns every live session, for the abandoned call sweep.
	List(ctx context.Context) ([]*dialog.Session, error)
	// Lock serializes webhooks for one call. The returned func releases it.
	Lock(ctx context.Context, callSID string) (func(), error)
	Ping(ctx context.Context) error
	Close() error
}

func encode(s *dialog.Session) ([]byte, error) {
	return json.Marshal(s)
}

func decode(data []byte) (*dialog.Session, error) {
	var s dialog.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
