package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
	"github.com/devrev/hvac-voice-agent/internal/session"
	"github.com/devrev/hvac-voice-agent/internal/speech"
	"github.com/devrev/hvac-voice-agent/internal/twiml"
)

// InboundCall is the first webhook of a call
type InboundCall struct {
	CallSID string
	From    string
	To      string
}

// Gather is one caller turn reported by a <Gather> action
type Gather struct {
	CallSID string
	// From and To repeat the call's numbers so a lost session can restart.
	From   string
	To     string
	Speech string
	// Confidence is Twilio's transcription confidence; zero when absent.
	Confidence float64
	// Turn is the turn number from the action URL; zero when absent.
	Turn int
}

// ConversationConfig tunes turn handling
type ConversationConfig struct {
	// TurnTimeout bounds the work of one webhook, LLM and TTS included.
	TurnTimeout time.Duration
	// MinConfidence blanks transcriptions below this confidence.
	MinConfidence float64
}

// ConversationService handles the voice webhooks of a call
type ConversationService struct {
	machine  *dialog.Machine
	sessions session.Store
	voice    *speech.Voice
	renderer *twiml.Renderer
	calls    *CallService
	cfg      ConversationConfig
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewConversationService creates a conversation service
func NewConversationService(
	machine *dialog.Machine,
	sessions session.Store,
	voice *speech.Voice,
	renderer *twiml.Renderer,
	calls *CallService,
	cfg ConversationConfig,
	recorder Recorder,
	logger *zap.Logger,
) *ConversationService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		machine:  machine,
		sessions: sessions,
		voice:    voice,
		renderer: renderer,
		calls:    calls,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Begin starts a call and returns the greeting document. A redelivered
// incoming webhook replays the greeting instead of starting over.
func (c *ConversationService) Begin(ctx context.Context, call InboundCall) (string, error) {
	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	release, err := c.lock(ctx, call.CallSID)
	if err != nil {
		return "", err
	}
	defer release()

	s, err := c.sessions.Get(ctx, call.CallSID)
	switch {
	case err == nil && s.LastReply != nil:
		c.recorder.RecordDuplicateWebhook()
		return c.render(ctx, s, *s.LastReply)
	case err != nil && !errors.Is(err, session.ErrNotFound):
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	s = dialog.NewSession(call.CallSID, call.From, call.To, c.now())
	return c.turn(ctx, s, func() dialog.Reply {
		return c.machine.Start(s)
	})
}

// Continue handles one caller turn and returns the reply document.
func (c *ConversationService) Continue(ctx context.Context, g Gather) (string, error) {
	ctx, cancel := c.turnContext(ctx)
	defer cancel()

	release, err := c.lock(ctx, g.CallSID)
	if err != nil {
		return "", err
	}
	defer release()

	s, err := c.sessions.Get(ctx, g.CallSID)
	if errors.Is(err, session.ErrNotFound) {
		// The session expired or the store was flushed; start over rather
		// than dropping the caller.
		c.logger.Warn("Gather for unknown call, restarting conversation",
			zap.String("call_sid", g.CallSID))
		s = dialog.NewSession(g.CallSID, g.From, g.To, c.now())
		return c.turn(ctx, s, func() dialog.Reply {
			return c.machine.Start(s)
		})
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	if g.Turn > 0 && g.Turn < s.Turn && s.LastReply != nil {
		c.recorder.RecordDuplicateWebhook()
		c.logger.Info("Replaying reply for redelivered webhook",
			zap.String("call_sid", s.CallSID),
			zap.Int("webhook_turn", g.Turn),
			zap.Int("session_turn", s.Turn))
		return c.render(ctx, s, *s.LastReply)
	}

	utterance := strings.TrimSpace(g.Speech)
	if utterance != "" && g.Confidence > 0 && g.Confidence < c.cfg.MinConfidence {
		c.logger.Debug("Discarding low confidence transcription",
			zap.String("call_sid", s.CallSID),
			zap.Float64("confidence", g.Confidence))
		utterance = ""
	}

	return c.turn(ctx, s, func() dialog.Reply {
		return c.machine.Step(ctx, s, utterance)
	})
}

// Session returns the live session of a call.
func (c *ConversationService) Session(ctx context.Context, callSID string) (*dialog.Session, error) {
	return c.sessions.Get(ctx, callSID)
}

func (c *ConversationService) turn(ctx context.Context, s *dialog.Session, step func() dialog.Reply) (string, error) {
	start := time.Now()
	wasFinished := s.Finished()

	reply := step()

	if err := c.sessions.Save(ctx, s); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	if s.Finished() && !wasFinished && c.calls != nil {
		c.calls.Persist(s)
	}

	doc, err := c.render(ctx, s, reply)
	c.recorder.RecordTurn(string(s.State), time.Since(start))
	if err != nil {
		return "", err
	}

	c.logger.Debug("Turn handled",
		zap.String("call_sid", s.CallSID),
		zap.String("state", string(s.State)),
		zap.Int("turn", s.Turn),
		zap.Duration("duration", time.Since(start)))
	return doc, nil
}

func (c *ConversationService) render(ctx context.Context, s *dialog.Session, reply dialog.Reply) (string, error) {
	audio := c.voice.Render(ctx, reply.Text)
	return c.renderer.Render(reply, audio, s.Turn)
}

func (c *ConversationService) lock(ctx context.Context, callSID string) (func(), error) {
	release, err := c.sessions.Lock(ctx, callSID)
	if err != nil {
		if errors.Is(err, session.ErrLockTimeout) {
			c.recorder.RecordLockTimeout()
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	return release, nil
}

func (c *ConversationService) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.TurnTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.TurnTimeout)
}
