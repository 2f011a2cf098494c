package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/bot"
	"finbot/internal/ledger"
	"finbot/internal/middleware/security"
	"finbot/internal/services"
	"finbot/internal/storage/memory"
)

type fakeRunner struct {
	sent int
	err  error
	at   time.Time
}

func (f *fakeRunner) Run(_ context.Context, now time.Time) (int, error) {
	f.at = now
	return f.sent, f.err
}

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	store := ledger.New(memory.New(), ledger.WithLocation(time.UTC))
	d := bot.NewDispatcher(services.NewLedgerService(store, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s := NewServer(":0", d, opts...)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func replyOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var r bot.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	return r.Text
}

func TestHandleMessage(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPost, "/api/messages", `{"user_id":"7","text":"/income 5000 salary"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Income of 5000 recorded.", replyOf(t, rec))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(s, http.MethodPost, "/api/messages", `{"user_id":"7","text":"/balance"}`, nil)
	assert.Equal(t, "Current balance: 5000", replyOf(t, rec))
}

func TestHandleMessageBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not json", `hello`},
		{"unknown field", `{"user_id":"7","text":"/help","x":1}`},
		{"missing user", `{"text":"/help"}`},
		{"missing text", `{"user_id":"7","text":"  "}`},
		{"trailing data", `{"user_id":"7","text":"/help"} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/messages", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	rec := do(s, http.MethodGet, "/api/messages", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBotToken(t *testing.T) {
	s := newTestServer(t, WithBotToken("s3cret"))
	body := `{"user_id":"7","text":"/help"}`

	rec := do(s, http.MethodPost, "/api/messages", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodPost, "/api/messages", body, map[string]string{security.TokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodPost, "/api/messages", body, map[string]string{security.TokenHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open without the token.
	rec = do(s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, WithRateLimit(2, time.Minute))
	body := `{"user_id":"7","text":"/help"}`

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/messages", body, nil).Code)
	}
	rec := do(s, http.MethodPost, "/api/messages", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "", nil).Code)
}

func TestDailyReport(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodPost, "/api/reports/daily", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	runner := &fakeRunner{sent: 3}
	s = newTestServer(t, WithReportRunner(runner))
	rec = do(s, http.MethodPost, "/api/reports/daily", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":3}`, rec.Body.String())
	assert.Equal(t, fixedNow, runner.at)

	runner.err = errors.New("broker down")
	rec = do(s, http.MethodPost, "/api/reports/daily", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, WithReadinessCheck("storage", func(context.Context) error { return nil }))
	rec := do(s, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"storage":"ok"}}`, rec.Body.String())

	s = newTestServer(t,
		WithReadinessCheck("storage", func(context.Context) error { return nil }),
		WithReadinessCheck("amqp", func(context.Context) error { return errors.New("connection closed") }))
	rec = do(s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t,
		`{"status":"not_ready","checks":{"storage":"ok","amqp":"failed: connection closed"}}`,
		rec.Body.String())
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}
