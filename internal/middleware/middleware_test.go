package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodPost, "/voice/gather", nil)
	req.Header.Set("I-Twilio-Idempotency-Token", "tok-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "tok-1", seen)
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	Recovery(zap.NewNop())(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calls", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")

	rec = httptest.NewRecorder()
	TwiMLRecovery(zap.NewNop(), "<Response><Hangup/></Response>")(panicking).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/voice/gather", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<Response><Hangup/></Response>", rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	h := NewRateLimiter(1, 1, zap.NewNop()).Limit(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS([]string{"https://ops.example.com"})(okHandler)
	req := httptest.NewRequest(http.MethodOptions, "/v1/calls", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(mw("a"), mw("b"))(okHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k + form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioSignature(t *testing.T) {
	const token = "twilio-secret"
	h := TwilioSignature(token, "https://agent.example.com/", zap.NewNop())(okHandler)

	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"yes"}}
	newReq := func(sig string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/voice/gather?turn=2", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Twilio-Signature", sig)
		return req
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newReq(sign(token, "https://agent.example.com/voice/gather?turn=2", form)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newReq("bm90LXZhbGlk"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJWTAuth(t *testing.T) {
	now := time.Now()
	h := JWTAuth("s3cret", "hvac-agent", zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := r.Context().Value(SubjectKey).(string)
		_, _ = w.Write([]byte(sub))
	}))

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/calls", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	good, err := IssueToken("s3cret", "hvac-agent", "ops", time.Hour, now)
	require.NoError(t, err)
	rec := call("Bearer " + good)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Basic abc").Code)

	wrongKey, _ := IssueToken("other", "hvac-agent", "ops", time.Hour, now)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+wrongKey).Code)

	wrongIssuer, _ := IssueToken("s3cret", "someone-else", "ops", time.Hour, now)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+wrongIssuer).Code)

	expired, _ := IssueToken("s3cret", "hvac-agent", "ops", time.Minute, now.Add(-time.Hour))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+expired).Code)
}
