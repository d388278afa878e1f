package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	callvoteregister "istruecaller/contexts/trust-safety/call-vote-register"
	metricsadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/metrics"
	websocketadapter "istruecaller/contexts/trust-safety/call-vote-register/adapters/websocket"
	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	module callvoteregister.Module
	hub    *websocketadapter.Hub
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	module := callvoteregister.NewInMemoryModule(entities.RegisterSnapshot{}, nil)
	t.Cleanup(func() { _ = module.Register.Close() })

	reg := prometheus.NewRegistry()
	metrics := metricsadapter.NewRegisterMetrics(reg)
	module.Handler.Votes.Metrics = metrics
	module.Handler.Verdicts.Metrics = metrics

	hub := websocketadapter.NewHub(websocketadapter.HubConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	module.Handler.Votes.Notifier = hub

	return testServer{
		Server: New(module, hub, reg, nil, ":0"),
		module: module,
		hub:    hub,
	}
}

func (s testServer) do(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestAddVoteAndVerdictScenario(t *testing.T) {
	server := newTestServer(t)

	for _, body := range []string{
		`{"legitimate":true,"fraudulent":false}`,
		`{"legitimate":true,"fraudulent":false}`,
		`{"legitimate":false,"fraudulent":true}`,
	} {
		rr := server.do(t, http.MethodPost, "/v1/calls/call-1/votes", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
		}
		require.Equal(t, "Vote recorded for call call-1", decodeBody(t, rr)["message"])
	}

	rr := server.do(t, http.MethodGet, "/v1/calls/call-1/verdict", "")
	require.Equal(t, http.StatusOK, rr.Code)
	payload := decodeBody(t, rr)
	require.Equal(t, "legitimate", payload["verdict"])
	require.Equal(t, "Call call-1 is legitimate (2 legitimate vs 1 fraudulent)", payload["message"])
	require.EqualValues(t, 3, payload["total_votes"])
}

func TestVerdictForUnknownCall(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/v1/calls/nobody/verdict", "")
	require.Equal(t, http.StatusOK, rr.Code)
	payload := decodeBody(t, rr)
	require.Equal(t, "no_votes", payload["verdict"])
	require.Equal(t, "No votes recorded for call nobody", payload["message"])
}

func TestGetVotesAbsentIsNull(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/v1/calls/ghost/votes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"call_id":"ghost","found":false,"votes":null}`, rr.Body.String())
}

func TestGetVotesKeepsSubmissionOrder(t *testing.T) {
	server := newTestServer(t)
	server.do(t, http.MethodPost, "/v1/calls/c/votes", `{"legitimate":false,"fraudulent":true}`)
	server.do(t, http.MethodPost, "/v1/calls/c/votes", `{"legitimate":true,"fraudulent":true}`)
	server.do(t, http.MethodPost, "/v1/calls/c/votes", `{"legitimate":false,"fraudulent":false}`)

	rr := server.do(t, http.MethodGet, "/v1/calls/c/votes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"call_id":"c","found":true,"votes":[
		{"legitimate":false,"fraudulent":true},
		{"legitimate":true,"fraudulent":true},
		{"legitimate":false,"fraudulent":false}
	]}`, rr.Body.String())
}

func TestListCallIDsEmptyIsArray(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/v1/calls", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"call_ids":[],"count":0}`, rr.Body.String())
}

func TestClearCallAndClearAll(t *testing.T) {
	server := newTestServer(t)
	server.do(t, http.MethodPost, "/v1/calls/b/votes", `{"legitimate":true}`)
	server.do(t, http.MethodPost, "/v1/calls/a/votes", `{"fraudulent":true}`)

	rr := server.do(t, http.MethodGet, "/v1/calls", "")
	require.JSONEq(t, `{"call_ids":["a","b"],"count":2}`, rr.Body.String())

	rr = server.do(t, http.MethodDelete, "/v1/calls/a/votes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Votes cleared for call a", decodeBody(t, rr)["message"])

	rr = server.do(t, http.MethodDelete, "/v1/calls/never/votes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Votes cleared for call never", decodeBody(t, rr)["message"])

	rr = server.do(t, http.MethodDelete, "/v1/calls", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "All votes cleared", decodeBody(t, rr)["message"])

	rr = server.do(t, http.MethodGet, "/v1/calls", "")
	require.JSONEq(t, `{"call_ids":[],"count":0}`, rr.Body.String())
}

func TestAddVoteRejectsBadInput(t *testing.T) {
	server := newTestServer(t)

	cases := []struct {
		name string
		path string
		body string
		code string
	}{
		{name: "malformed json", path: "/v1/calls/c/votes", body: `{"legitimate":`, code: "invalid_json"},
		{name: "unknown field", path: "/v1/calls/c/votes", body: `{"legit":true}`, code: "invalid_json"},
		{name: "trailing data", path: "/v1/calls/c/votes", body: `{} {}`, code: "invalid_json"},
		{name: "blank call id", path: "/v1/calls/%20/votes", body: `{"legitimate":true}`, code: "invalid_call_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := server.do(t, http.MethodPost, tc.path, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
			}
			require.Equal(t, tc.code, decodeBody(t, rr)["code"])
		})
	}

	rr := server.do(t, http.MethodGet, "/v1/calls", "")
	require.JSONEq(t, `{"call_ids":[],"count":0}`, rr.Body.String())
}

func TestClosedRegisterMapsTo503(t *testing.T) {
	server := newTestServer(t)
	require.NoError(t, server.module.Register.Close())

	rr := server.do(t, http.MethodPost, "/v1/calls/c/votes", `{"legitimate":true}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "register_closed", decodeBody(t, rr)["code"])

	rr = server.do(t, http.MethodGet, "/v1/calls", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	server.do(t, http.MethodPost, "/v1/calls/c/votes", `{"legitimate":true,"fraudulent":true}`)
	rr = server.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `istruecaller_register_votes_added_total{ballot="both"} 1`)
}

func TestSwaggerDocIsServed(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "/v1/calls/{call_id}/verdict")
}

func TestWatchCallStreamsVerdicts(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/calls/call-9"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var message websocketadapter.VerdictMessage
	require.NoError(t, wsjson.Read(ctx, conn, &message))
	require.Equal(t, "no_votes", message.Verdict)

	rr := server.do(t, http.MethodPost, "/v1/calls/call-9/votes", `{"fraudulent":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, wsjson.Read(ctx, conn, &message))
	require.Equal(t, "fraudulent", message.Verdict)
	require.Equal(t, "Call call-9 is fraudulent (1 fraudulent vs 0 legitimate)", message.Message)
}

func TestWatchCallSeesClearAll(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	rr := server.do(t, http.MethodPost, "/v1/calls/call-7/votes", `{"legitimate":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/calls/call-7"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var message websocketadapter.VerdictMessage
	require.NoError(t, wsjson.Read(ctx, conn, &message))
	require.Equal(t, "legitimate", message.Verdict)
	require.Equal(t, uint64(1), message.Revision)

	rr = server.do(t, http.MethodDelete, "/v1/calls", "")
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, wsjson.Read(ctx, conn, &message))
	require.Equal(t, "no_votes", message.Verdict)
	require.Equal(t, uint64(2), message.Revision)
	require.Equal(t, "No votes recorded for call call-7", message.Message)
}
