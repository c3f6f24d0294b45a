package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/service"
)

// terminalStatuses are the Twilio call statuses after which no more
// webhooks arrive for a call.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"no-answer": true,
	"failed":    true,
	"canceled":  true,
}

// Incoming handles POST /voice/incoming.
func (h *Handlers) Incoming(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeApology(w, r, "", err)
		return
	}
	call := service.InboundCall{
		CallSID: r.PostForm.Get("CallSid"),
		From:    r.PostForm.Get("From"),
		To:      r.PostForm.Get("To"),
	}
	if call.CallSID == "" {
		h.errorHandler.WriteValidationError(w, "CallSid is required", r.Header.Get("X-Request-ID"))
		return
	}

	doc, err := h.conversation.Begin(r.Context(), call)
	if err != nil {
		h.writeApology(w, r, call.CallSID, err)
		return
	}

	h.logger.Info("Incoming call",
		zap.String("call_sid", call.CallSID),
		zap.String("from", call.From),
		zap.String("to", call.To))
	writeTwiML(w, doc)
}

// Gather handles POST /voice/gather.
func (h *Handlers) Gather(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeApology(w, r, "", err)
		return
	}
	g := service.Gather{
		CallSID: r.PostForm.Get("CallSid"),
		From:    r.PostForm.Get("From"),
		To:      r.PostForm.Get("To"),
		Speech:  r.PostForm.Get("SpeechResult"),
	}
	if g.CallSID == "" {
		h.errorHandler.WriteValidationError(w, "CallSid is required", r.Header.Get("X-Request-ID"))
		return
	}
	if c, err := strconv.ParseFloat(r.PostForm.Get("Confidence"), 64); err == nil {
		g.Confidence = c
	}
	if t, err := strconv.Atoi(r.URL.Query().Get("turn")); err == nil && t > 0 {
		g.Turn = t
	}

	doc, err := h.conversation.Continue(r.Context(), g)
	if err != nil {
		h.writeApology(w, r, g.CallSID, err)
		return
	}
	writeTwiML(w, doc)
}

// Status handles POST /voice/status, Twilio's call status callback.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errorHandler.WriteValidationError(w, "malformed form body", r.Header.Get("X-Request-ID"))
		return
	}
	status := service.CallStatus{
		CallSID:    r.PostForm.Get("CallSid"),
		CallStatus: strings.ToLower(r.PostForm.Get("CallStatus")),
	}
	if status.CallSID == "" {
		h.errorHandler.WriteValidationError(w, "CallSid is required", r.Header.Get("X-Request-ID"))
		return
	}

	if terminalStatuses[status.CallStatus] {
		// Twilio does not retry status callbacks; a failed finalize is
		// picked up by the idle session sweep.
		if err := h.calls.Finalize(r.Context(), status); err != nil {
			h.logger.Error("Failed to finalize call",
				zap.String("call_sid", status.CallSID),
				zap.String("call_status", status.CallStatus),
				zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Audio handles GET /audio/{key}.mp3.
func (h *Handlers) Audio(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	audio, ok := h.audio.Lookup(key)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// writeApology answers a webhook that could not be handled with spoken
// TwiML, so the caller hears an apology instead of Twilio's error message.
func (h *Handlers) writeApology(w http.ResponseWriter, r *http.Request, callSID string, err error) {
	h.logger.Error("Webhook failed",
		zap.String("path", r.URL.Path),
		zap.String("call_sid", callSID),
		zap.Error(err))
	writeTwiML(w, h.renderer.Apology(h.cfg.Apology))
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
