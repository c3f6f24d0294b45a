// Package twiml renders dialog replies as Twilio voice markup.
package twiml

import (
	"fmt"
	"strconv"
	"strings"

	twilioml "github.com/twilio/twilio-go/twiml"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
	"github.com/devrev/hvac-voice-agent/internal/speech"
)

// GatherPath is the webhook that receives each caller turn.
const GatherPath = "/voice/gather"

// Config controls how speech is gathered and spoken.
type Config struct {
	PublicBaseURL string
	SayVoice      string
	Language      string
	SpeechTimeout string
	SpeechModel   string
	// GatherTimeout is the seconds of silence before Twilio gives up listening.
	GatherTimeout int
}

// Renderer turns replies into TwiML documents.
type Renderer struct {
	cfg Config
}

// NewRenderer creates a renderer.
func NewRenderer(cfg Config) *Renderer {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.SpeechTimeout == "" {
		cfg.SpeechTimeout = "auto"
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 6
	}
	return &Renderer{cfg: cfg}
}

// Render builds the response for one reply. turn is the session turn the
// next Gather will report back, so redelivered webhooks can be detected.
func (r *Renderer) Render(reply dialog.Reply, audio speech.Audio, turn int) (string, error) {
	spoken := r.speak(audio)

	var elements []twilioml.Element
	switch {
	case reply.Dial != "":
		elements = append(elements, spoken...)
		elements = append(elements, &twilioml.VoiceDial{Number: reply.Dial})
	case reply.Listen && !reply.Hangup:
		elements = append(elements, r.gather(spoken, reply.Hints, turn))
		// Reached only if the Gather itself fails to post back.
		elements = append(elements, &twilioml.VoiceRedirect{Url: r.GatherURL(turn), Method: "POST"})
	default:
		elements = append(elements, spoken...)
		elements = append(elements, &twilioml.VoiceHangup{})
	}

	doc, err := twilioml.Voice(elements)
	if err != nil {
		return "", fmt.Errorf("render twiml: %w", err)
	}
	return doc, nil
}

// Apology speaks text with <Say> and hangs up. It is used when a turn
// cannot be processed, since Twilio plays its own error message on a 5xx.
func (r *Renderer) Apology(text string) string {
	doc, err := twilioml.Voice([]twilioml.Element{r.say(text), &twilioml.VoiceHangup{}})
	if err != nil {
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return doc
}

// GatherURL returns the action URL for a turn.
func (r *Renderer) GatherURL(turn int) string {
	return r.cfg.PublicBaseURL + GatherPath + "?turn=" + strconv.Itoa(turn)
}

func (r *Renderer) gather(inner []twilioml.Element, hints []string, turn int) twilioml.Element {
	return &twilioml.VoiceGather{
		Input:               "speech",
		Action:              r.GatherURL(turn),
		Method:              "POST",
		ActionOnEmptyResult: "true",
		Timeout:             strconv.Itoa(r.cfg.GatherTimeout),
		SpeechTimeout:       r.cfg.SpeechTimeout,
		SpeechModel:         r.cfg.SpeechModel,
		Language:            r.cfg.Language,
		Hints:               strings.Join(hints, ", "),
		InnerElements:       inner,
	}
}

func (r *Renderer) speak(audio speech.Audio) []twilioml.Element {
	if audio.URL != "" {
		return []twilioml.Element{&twilioml.VoicePlay{Url: audio.URL}}
	}
	if audio.Text == "" {
		return nil
	}
	return []twilioml.Element{r.say(audio.Text)}
}

func (r *Renderer) say(text string) twilioml.Element {
	return &twilioml.VoiceSay{
		Message:  text,
		Voice:    r.cfg.SayVoice,
		Language: r.cfg.Language,
	}
}
