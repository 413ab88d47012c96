package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/westrik/parley/internal/idle"
	"github.com/westrik/parley/internal/session"
)

type failingSender struct{}

func (failingSender) SendText(context.Context, string) error {
	return errors.New("data channel closed")
}

func newTestRouter(t *testing.T, opts session.Opts) (*gin.Engine, *session.Engine) {
	t.Helper()
	if opts.SessionID == "" {
		opts.SessionID = "sess-api"
	}
	eng, err := session.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(eng.Close)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, eng)
	return router, eng
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStart_NilEngine(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil {
		t.Fatal("expected error for nil engine")
	}
	if !strings.Contains(err.Error(), "engine is required") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t, session.Opts{})

	w := doJSON(t, router, http.MethodPost, "/api/segments",
		`{"text":"hello there","final":true,"speaker":"user","timestamp":"2026-03-14T10:00:00Z"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("push segment status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d", w.Code)
	}
	var resp struct {
		SessionID string `json:"sessionId"`
		Messages  []struct {
			Content string `json:"content"`
			IsFinal bool   `json:"isFinal"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID != "sess-api" {
		t.Errorf("sessionId = %q", resp.SessionID)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content != "hello there" {
		t.Errorf("messages = %+v", resp.Messages)
	}
}

func TestSendText_TransportFailure(t *testing.T) {
	router, eng := newTestRouter(t, session.Opts{Sender: failingSender{}})

	w := doJSON(t, router, http.MethodPost, "/api/messages", `{"content":"hi"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if got := len(eng.Messages()); got != 0 {
		t.Errorf("messages = %d, failed send must not be stored", got)
	}
}

func TestSendText_MissingContent(t *testing.T) {
	router, _ := newTestRouter(t, session.Opts{})
	w := doJSON(t, router, http.MethodPost, "/api/messages", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateConfig_ValidationErrorBody(t *testing.T) {
	router, eng := newTestRouter(t, session.Opts{})

	w := doJSON(t, router, http.MethodPut, "/api/config",
		`{"durationSeconds":20,"warningThresholdSeconds":10,"enabled":true}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var verr idle.ValidationError
	if err := json.Unmarshal(w.Body.Bytes(), &verr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if verr.Field != "durationSeconds" || verr.Value != 20 || verr.Reason == "" {
		t.Errorf("validation body = %+v", verr)
	}
	if eng.IdleConfig().DurationSeconds == 20 {
		t.Error("rejected config must not apply")
	}
}

func TestUpdateConfig_Accepted(t *testing.T) {
	router, eng := newTestRouter(t, session.Opts{})

	w := doJSON(t, router, http.MethodPut, "/api/config",
		`{"durationSeconds":120,"warningThresholdSeconds":30,"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := eng.IdleConfig().DurationSeconds; got != 120 {
		t.Errorf("duration = %d, want 120", got)
	}
}

func TestTimerEndpoints(t *testing.T) {
	router, eng := newTestRouter(t, session.Opts{
		IdleConfig:   idle.Config{DurationSeconds: 60, WarningThresholdSeconds: 10, Enabled: true},
		TickInterval: time.Hour,
	})

	doJSON(t, router, http.MethodPost, "/api/timer/start", "")
	if st := eng.IdleState(); !st.IsActive {
		t.Fatal("timer should be active after start")
	}

	w := doJSON(t, router, http.MethodGet, "/api/idle", "")
	var st idle.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.IsActive || st.TimeRemaining != 60 {
		t.Errorf("idle state = %+v", st)
	}

	doJSON(t, router, http.MethodPost, "/api/timer/stop", "")
	if st := eng.IdleState(); st.IsActive {
		t.Error("timer should be inactive after stop")
	}
}

func TestClearEndpoint(t *testing.T) {
	router, eng := newTestRouter(t, session.Opts{})
	doJSON(t, router, http.MethodPost, "/api/segments",
		`{"text":"x","final":true,"speaker":"user","timestamp":"2026-03-14T10:00:00Z"}`)

	w := doJSON(t, router, http.MethodPost, "/api/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := len(eng.Messages()); got != 0 {
		t.Errorf("messages after clear = %d", got)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, session.Opts{})
	doJSON(t, router, http.MethodPost, "/api/segments",
		`{"text":"typing...","final":false,"speaker":"agent","timestamp":"2026-03-14T10:00:00Z"}`)

	w := doJSON(t, router, http.MethodGet, "/api/preview", "")
	var resp struct {
		Agent *struct {
			Text string `json:"text"`
		} `json:"agent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Agent == nil || resp.Agent.Text != "typing..." {
		t.Errorf("agent preview = %+v", resp.Agent)
	}
}

func TestMalformedSegmentRejected(t *testing.T) {
	router, _ := newTestRouter(t, session.Opts{})
	w := doJSON(t, router, http.MethodPost, "/api/segments", `{"final": "yes"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed segment", w.Code)
	}
}
