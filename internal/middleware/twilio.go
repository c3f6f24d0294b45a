package middleware

import (
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// TwilioSignature rejects webhooks whose X-Twilio-Signature does not match
// the request. Twilio signs the public URL it called, which differs from
// r.URL behind a proxy, so the URL is rebuilt from publicBaseURL.
func TwilioSignature(authToken, publicBaseURL string, logger *zap.Logger) func(http.Handler) http.Handler {
	validator := client.NewRequestValidator(authToken)
	base := strings.TrimRight(publicBaseURL, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "invalid form", http.StatusBadRequest)
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for k, v := range r.PostForm {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}

			url := base + r.URL.RequestURI()
			if !validator.Validate(url, params, r.Header.Get("X-Twilio-Signature")) {
				logger.Warn("Rejected webhook with invalid signature",
					zap.String("path", r.URL.Path),
					zap.String("call_sid", params["CallSid"]),
					zap.String("request_id", r.Header.Get("X-Request-ID")))
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
