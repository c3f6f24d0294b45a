// Package handler provides the HTTP handlers for Twilio webhooks, cached
// audio and the admin API.
package handler

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
	apierrors "github.com/devrev/hvac-voice-agent/internal/errors"
	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/service"
	"github.com/devrev/hvac-voice-agent/internal/store"
	"github.com/devrev/hvac-voice-agent/internal/twiml"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Conversation runs the turns of a call.
type Conversation interface {
	Begin(ctx context.Context, call service.InboundCall) (string, error)
	Continue(ctx context.Context, g service.Gather) (string, error)
	Session(ctx context.Context, callSID string) (*dialog.Session, error)
}

// Calls finalizes ended calls.
type Calls interface {
	Finalize(ctx context.Context, status service.CallStatus) error
}

// AudioSource serves synthesized prompts by cache key.
type AudioSource interface {
	Lookup(key string) ([]byte, bool)
}

// Records is the read side of the database used by the admin API.
type Records interface {
	GetCallLog(ctx context.Context, callSID string) (*model.CallLog, error)
	ListCallLogs(ctx context.Context, limit int) ([]*model.CallLog, error)
	ListAppointments(ctx context.Context, date time.Time) ([]*model.Appointment, error)
}

var _ Records = (store.Store)(nil)

// Config holds handler settings.
type Config struct {
	// Timeout bounds admin API requests.
	Timeout time.Duration
	// Apology is spoken when a webhook cannot be handled.
	Apology string
	// Location interprets admin date parameters.
	Location *time.Location
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	conversation Conversation
	calls        Calls
	audio        AudioSource
	records      Records
	renderer     *twiml.Renderer
	errorHandler *apierrors.Handler
	cfg          Config
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	conversation Conversation,
	calls Calls,
	audio AudioSource,
	records Records,
	renderer *twiml.Renderer,
	errorHandler *apierrors.Handler,
	cfg Config,
	logger *zap.Logger,
) *Handlers {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Apology == "" {
		cfg.Apology = "I'm sorry, we're having trouble right now. Please call back in a few minutes. Goodbye."
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		conversation: conversation,
		calls:        calls,
		audio:        audio,
		records:      records,
		renderer:     renderer,
		errorHandler: errorHandler,
		cfg:          cfg,
		logger:       logger,
	}
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
