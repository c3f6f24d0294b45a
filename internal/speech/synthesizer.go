// Package speech turns agent replies into cached audio the caller hears
// through Twilio <Play>, falling back to <Say> when synthesis is unavailable.
package speech

import (
	"context"
	"time"
)

// Synthesizer converts text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// VoiceID identifies the voice, so cached audio is keyed per voice.
	VoiceID() string
}

// Recorder receives cache and synthesis measurements.
type Recorder interface {
	CacheLookup(hit bool)
	Synthesis(err error, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(bool)               {}
func (nopRecorder) Synthesis(error, time.Duration) {}
