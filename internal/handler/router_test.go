package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/config"
	"github.com/zhouzirui/car-advisor/backend/internal/middleware"
	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/car-advisor/backend/internal/service/advisor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/ai"
	"github.com/zhouzirui/car-advisor/backend/internal/service/predictor"
	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

type stubProvider struct{}

func (stubProvider) Name() string        { return "stub" }
func (stubProvider) HasCredential() bool { return true }
func (stubProvider) Open(context.Context, string) (ai.Conversation, error) {
	return ai.ConversationFunc(func(_ context.Context, text string) (string, error) {
		if strings.HasPrefix(text, "Car:") {
			return "Keep the service history.", nil
		}
		return "Sounds fair.", nil
	}), nil
}

type testServer struct {
	handler http.Handler
	store   *session.Store
}

func newTestServer(t *testing.T, price float64, provider ai.Provider, burst int) *testServer {
	t.Helper()
	var loader *predictor.Loader
	if price > 0 {
		loader = predictor.NewStaticLoader(predictor.Func(func(context.Context, car.Record) (float64, error) {
			return price, nil
		}))
	}
	if price < 0 {
		loader = predictor.NewStaticLoader(predictor.Func(func(context.Context, car.Record) (float64, error) {
			return 0, errors.New("bad input")
		}))
	}

	store := session.NewStore(time.Hour, zap.NewNop())
	svc := advisor.NewService(advisor.Options{
		Store:           store,
		Predictor:       loader,
		Provider:        provider,
		AllowSessionKey: true,
		Logger:          zap.NewNop(),
	})
	cfg := config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Chat:   config.ChatConfig{RateLimit: 0.01, RateBurst: burst},
	}
	return &testServer{handler: NewRouter(cfg, store, svc, zap.NewNop()), store: store}
}

// do sends a request bound to sid (when set) and returns the recorder.
func (s *testServer) do(t *testing.T, method, target, sid string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if sid != "" {
		req.Header.Set(middleware.SessionHeader, sid)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) advisor.Outcome {
	t.Helper()
	var out advisor.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPredictFlow(t *testing.T) {
	srv := newTestServer(t, 12000, stubProvider{}, 100)

	rec := srv.do(t, http.MethodPost, "/api/session", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sid := rec.Header().Get(middleware.SessionHeader)
	require.NotEmpty(t, sid)

	rec = srv.do(t, http.MethodPost, "/api/predict", sid, car.DefaultRecord())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeOutcome(t, rec)

	require.NotNil(t, out.Prediction)
	assert.Equal(t, "💰 **Predicted car price:** Rp 234,000,000 (≈ £12,000)", out.Prediction.Message)
	require.NotNil(t, out.Proactive)
	assert.Equal(t, "Keep the service history.", out.Proactive.Content)
	assert.Equal(t, chat.StageFired, out.Stage)

	rec = srv.do(t, http.MethodPost, "/api/messages", sid, map[string]string{"content": "worth it?"})
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeOutcome(t, rec)
	require.NotNil(t, out.Reply)
	assert.Equal(t, "Sounds fair.", out.Reply.Content)
	assert.Len(t, out.State.Transcript, 3)

	rec = srv.do(t, http.MethodGet, "/api/session", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeOutcome(t, rec).Proactive)
}

func TestPredictErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		srv := newTestServer(t, 12000, nil, 100)
		rec := car.DefaultRecord()
		rec.Year = 1900
		resp := srv.do(t, http.MethodPost, "/api/predict", "", rec)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Body.String(), "invalid_record")
	})
	t.Run("unavailable", func(t *testing.T) {
		srv := newTestServer(t, 0, nil, 100)
		resp := srv.do(t, http.MethodPost, "/api/predict", "", car.DefaultRecord())
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
	t.Run("failure", func(t *testing.T) {
		srv := newTestServer(t, -1, nil, 100)
		resp := srv.do(t, http.MethodPost, "/api/predict", "", car.DefaultRecord())
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Contains(t, resp.Body.String(), "bad input")
	})
}

func TestMessageDegradedWithoutProvider(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 100)

	rec := srv.do(t, http.MethodPost, "/api/messages", "", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeOutcome(t, rec)
	require.NotNil(t, out.Reply)
	assert.Equal(t, advisor.DegradedReply, out.Reply.Content)
	assert.False(t, out.ChatEnabled)

	rec = srv.do(t, http.MethodPost, "/api/messages", "", map[string]string{"content": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCredentialDisabledWithoutProvider(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 100)
	rec := srv.do(t, http.MethodPost, "/api/session/credential", "", map[string]string{"apiKey": "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormSchema(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 100)
	rec := srv.do(t, http.MethodGet, "/api/form", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var schema struct {
		Transmissions []string   `json:"transmissions"`
		Defaults      car.Record `json:"defaults"`
		Rate          float64    `json:"conversionRate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, []string{"Manual", "Automatic", "Semi-Auto"}, schema.Transmissions)
	assert.Equal(t, car.DefaultRecord(), schema.Defaults)
	assert.Equal(t, 19500.0, schema.Rate)
}

func TestRateLimitRejectsBeforePass(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 1)
	sid := srv.store.Create(context.Background()).ID

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/messages", sid, map[string]string{"content": "one"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, srv.do(t, http.MethodPost, "/api/messages", sid, map[string]string{"content": "two"}).Code)

	sess, err := srv.store.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Len(t, sess.Snapshot().Transcript, 2, "the rejected message left no turn behind")
}

func TestRateLimitCoversRequestsWithoutSession(t *testing.T) {
	srv := newTestServer(t, 12000, stubProvider{}, 1)

	var codes []int
	for i := 0; i < 5; i++ {
		codes = append(codes, srv.do(t, http.MethodPost, "/api/messages", "", map[string]string{"content": "hi"}).Code)
	}
	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)
	assert.Equal(t, 1, srv.store.Len())
}

func TestStreamEmitsTurnsAndEnd(t *testing.T) {
	srv := newTestServer(t, 12000, stubProvider{}, 100)
	sid := srv.store.Create(context.Background()).ID

	rec := srv.do(t, http.MethodGet, "/api/stream?message="+url.QueryEscape("hello"), sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	assert.Equal(t, []string{"turn", "typing", "turn", "typing", "end"}, names)
}

func TestStreamRequiresMessage(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 100)
	rec := srv.do(t, http.MethodGet, "/api/stream", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPageRendersAndFormPostsRedirect(t *testing.T) {
	srv := newTestServer(t, 12000, stubProvider{}, 100)
	sid := srv.store.Create(context.Background()).ID

	form := url.Values{
		"model": {"Audi A1"}, "year": {"2017"}, "transmission": {"Manual"}, "mileage": {"35000"},
		"fuelType": {"Petrol"}, "tax": {"30"}, "mpg": {"55.4"}, "engineSize": {"1.4"},
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.SessionHeader, sid)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.SessionHeader, sid)
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<strong>Predicted car price:</strong> Rp 234,000,000")
	assert.Contains(t, body, "Keep the service history.")
	assert.Contains(t, body, "follow-up fired")
}

func TestPageFormValidation(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 100)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("model=&year=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Contains(t, loc.Query().Get("error"), "year must be a whole number")
}

func TestLiveWebsocketPushesEvents(t *testing.T) {
	srv := newTestServer(t, 12000, stubProvider{}, 100)
	sid := srv.store.Create(context.Background()).ID

	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	header := http.Header{}
	header.Set(middleware.SessionHeader, sid)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, sid, msg.SessionID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "message", "content": "hi"}))

	var types []string
	for len(types) < 4 {
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
	}
	assert.Equal(t, []string{"turn", "typing", "turn", "typing"}, types)
}

func TestLiveWebsocketSharesRateLimit(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 1)
	sid := srv.store.Create(context.Background()).ID

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/messages", sid, map[string]string{"content": "one"}).Code)

	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	header := http.Header{}
	header.Set(middleware.SessionHeader, sid)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "snapshot", msg.Type)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "message", "content": "again"}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "error", msg.Type)
	}

	sess, err := srv.store.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Len(t, sess.Snapshot().Transcript, 2)
}

func TestHealthDoesNotCreateSessions(t *testing.T) {
	srv := newTestServer(t, 12000, nil, 100)

	rec := srv.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"predictorReady":true`)
	assert.Equal(t, 0, srv.store.Len())
}
