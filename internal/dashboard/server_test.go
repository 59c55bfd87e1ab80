package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/client"
	"github.com/luciancaetano/wadash/internal/metrics"
	"github.com/luciancaetano/wadash/internal/protocol"
	"github.com/luciancaetano/wadash/internal/rpc"
	"github.com/luciancaetano/wadash/internal/rpctest"
)

const waitTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	backend *rpctest.Server
	session *rpc.Session
	server  *Server
}

func newFixture(t *testing.T, connect bool, mutate ...func(*Config)) *fixture {
	t.Helper()

	backend := rpctest.New(
		rpctest.WithHandler(wadash.MethodStatus, func(json.RawMessage) (any, *protocol.Error) {
			return map[string]any{"connected": true, "has_session": true}, nil
		}),
		rpctest.WithHandler(wadash.MethodSend, func(json.RawMessage) (any, *protocol.Error) {
			return map[string]any{"success": true, "message_id": "3EB0"}, nil
		}),
		rpctest.WithHandler(wadash.MethodMedia, func(json.RawMessage) (any, *protocol.Error) {
			return nil, &protocol.Error{Code: wadash.JSONRPCServerError, Message: "message not found"}
		}),
		rpctest.WithHandler(wadash.MethodGroupInfo, func(json.RawMessage) (any, *protocol.Error) {
			return nil, &protocol.Error{Code: 404, Message: "group not found"}
		}),
		rpctest.WithHandler(wadash.MethodChatHistory, func(json.RawMessage) (any, *protocol.Error) {
			return []any{}, nil
		}),
	)
	t.Cleanup(backend.Close)

	scfg := client.DefaultConfig(backend.URL())
	scfg.CallTimeout = 200 * time.Millisecond
	scfg.Transport.CloseTimeout = 200 * time.Millisecond
	session, err := client.NewSession(scfg)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	if connect {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		require.NoError(t, session.Connect(ctx))
	}

	cfg := DefaultConfig()
	cfg.RateLimit.MessageDelay = 0
	for _, m := range mutate {
		m(cfg)
	}

	srv, err := New(cfg, client.New(session))
	require.NoError(t, err)

	return &fixture{backend: backend, session: session, server: srv}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(target, "/api") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{}, client.New(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.RateLimit.GlobalPerMinute = 0
	_, err = New(cfg, client.New(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w, _ := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["connected"])
	assert.Equal(t, "disconnected", body["state"])
	assert.Equal(t, float64(0), body["pending"])
}

func TestStatusForwarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	w, env := f.do(t, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"connected":true,"has_session":true}`, string(env.Data))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDReused(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestNotConnected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w, env := f.do(t, http.MethodGet, "/api/status", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, wadash.ErrNotConnectedMessage)
	assert.Equal(t, int64(0), f.backend.RequestCount())
}

func TestBackendErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	w, env := f.do(t, http.MethodGet, "/api/groups/123@g.us", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 404, env.Code)
	assert.Equal(t, "RPC error 404: group not found", env.Error)

	w, env = f.do(t, http.MethodGet, "/api/media/3EB0", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, wadash.JSONRPCServerError, env.Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{&client.ProtocolError{Method: "group_info", Err: protocol.ErrMalformed}, http.StatusBadGateway},
		{&client.RPCError{Code: 1}, http.StatusBadGateway},
		{client.ErrNotConnected, http.StatusServiceUnavailable},
		{&client.TimeoutError{Method: "qr"}, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusRequestTimeout},
		{client.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	// Nothing answers diagnostics.
	w, env := f.do(t, http.MethodGet, "/api/diagnostics", "")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, 0, f.session.Pending())
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no recipient", `{"message":"hi"}`},
		{"two recipients", `{"phone":"551199","group_id":"123@g.us","message":"hi"}`},
		{"no type", `{"phone":"551199"}`},
		{"text without message", `{"phone":"551199","type":"text"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := f.do(t, http.MethodPost, "/api/send", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
		})
	}
	assert.Equal(t, int64(0), f.backend.RequestCount())
}

func TestSendDefaultsToText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	params := make(chan json.RawMessage, 1)
	f.backend.Handle(wadash.MethodSend, func(p json.RawMessage) (any, *protocol.Error) {
		params <- p
		return map[string]bool{"success": true}, nil
	})

	w, env := f.do(t, http.MethodPost, "/api/send", `{"phone":"5511999999999","message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"phone":"5511999999999","type":"text","message":"hello"}`, string(<-params))
}

func TestSendEnhancedMedia(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	body := `{"group_id":"123@g.us","type":"image","media_data":{"data":"aGk=","mime_type":"image/png","caption":"c"}}`

	w, env := f.do(t, http.MethodPost, "/api/send/enhanced", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"message_id":"3EB0"}`, string(env.Data))
}

func TestRecipientRateLimit(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	f := newFixture(t, true, func(c *Config) {
		c.RateLimit.RecipientPerMinute = 1
		c.Metrics = metrics.NewHTTP(reg)
	})

	w, _ := f.do(t, http.MethodPost, "/api/send", `{"phone":"551100","message":"a"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := f.do(t, http.MethodPost, "/api/send", `{"phone":"551100","message":"b"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", env.Error)

	w, _ = f.do(t, http.MethodPost, "/api/send", `{"phone":"551101","message":"c"}`)
	assert.Equal(t, http.StatusOK, w.Code, "other recipients are not limited")

	assert.Equal(t, int64(2), f.backend.RequestCount())
}

func TestGlobalRateLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, func(c *Config) {
		c.RateLimit.GlobalPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		w, _ := f.do(t, http.MethodGet, "/api/status", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, _ := f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w, _ = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code, "health is not limited")
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, func(c *Config) {
		c.RateLimit = RateLimitConfig{}
	})

	for i := 0; i < 30; i++ {
		w, _ := f.do(t, http.MethodGet, "/api/status", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMessageDelay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true, func(c *Config) {
		c.RateLimit.MessageDelay = 100 * time.Millisecond
	})

	start := time.Now()
	w, _ := f.do(t, http.MethodPost, "/api/send", `{"phone":"551100","message":"a"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRequestBodies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"group update empty", http.MethodPut, "/api/groups/1@g.us", `{}`, http.StatusBadRequest},
		{"participants empty", http.MethodPost, "/api/groups/1@g.us/participants", `{"participants":[]}`, http.StatusBadRequest},
		{"contact check empty", http.MethodPost, "/api/contacts/check", `{}`, http.StatusBadRequest},
		{"typing without jid", http.MethodPost, "/api/typing", `{"state":"composing"}`, http.StatusBadRequest},
		{"typing bad state", http.MethodPost, "/api/typing", `{"jid":"x","state":"shouting"}`, http.StatusBadRequest},
		{"presence bad status", http.MethodPost, "/api/presence", `{"status":"away"}`, http.StatusBadRequest},
		{"mark read without chat", http.MethodPost, "/api/mark-read", `{"message_ids":["a"]}`, http.StatusBadRequest},
		{"picture bad preview", http.MethodGet, "/api/contacts/x/picture?preview=maybe", "", http.StatusBadRequest},
		{"history without chat", http.MethodGet, "/api/chat-history?limit=5", "", http.StatusBadRequest},
		{"history", http.MethodGet, "/api/chat-history?phone=551100&limit=5&text_only=true", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestParamsReachBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		rpc    string
		params string
	}{
		{"group update", http.MethodPut, "/api/groups/1@g.us", `{"topic":"t"}`,
			wadash.MethodGroupUpdate, `{"group_id":"1@g.us","topic":"t"}`},
		{"participants remove", http.MethodDelete, "/api/groups/1@g.us/participants", `{"participants":["5511"]}`,
			wadash.MethodGroupParticipantsRemove, `{"group_id":"1@g.us","participants":["5511"]}`},
		{"presence", http.MethodPost, "/api/presence", `{"status":"available"}`,
			wadash.MethodPresence, `{"status":"available"}`},
		{"typing", http.MethodPost, "/api/typing", `{"jid":"5511@s.whatsapp.net"}`,
			wadash.MethodTyping, `{"jid":"5511@s.whatsapp.net","state":"composing"}`},
		{"mark read", http.MethodPost, "/api/mark-read", `{"message_ids":["a"],"chat_jid":"c"}`,
			wadash.MethodMarkRead, `{"message_ids":["a"],"chat_jid":"c"}`},
		{"picture", http.MethodGet, "/api/contacts/5511/picture?preview=true", "",
			wadash.MethodContactProfilePic, `{"jid":"5511","preview":true}`},
		{"contacts search", http.MethodGet, "/api/contacts?query=ana", "",
			wadash.MethodContacts, `{"query":"ana"}`},
		{"rate limit set", http.MethodPut, "/api/rate-limit", `{"enabled":false}`,
			wadash.MethodRateLimitSet, `{"enabled":false}`},
		{"unpause", http.MethodPost, "/api/rate-limit/unpause", "",
			wadash.MethodRateLimitUnpause, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan int, 1)
			go func() {
				w, _ := f.do(t, tt.method, tt.target, tt.body)
				done <- w.Code
			}()

			req, err := f.backend.NextRequest(waitTimeout)
			require.NoError(t, err)
			assert.Equal(t, tt.rpc, req.Method)
			if tt.params == "" {
				assert.False(t, req.HasParams())
			} else {
				assert.JSONEq(t, tt.params, string(req.Params))
			}
			require.NoError(t, f.backend.Reply(req, map[string]bool{"success": true}))

			select {
			case code := <-done:
				assert.Equal(t, http.StatusOK, code)
			case <-time.After(waitTimeout):
				t.Fatal("request did not complete")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	f := newFixture(t, true, func(c *Config) {
		c.Metrics = metrics.NewHTTP(reg)
		c.Gatherer = reg
	})

	w, _ := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `wadash_http_requests_total{method="GET",path="/api/status",status="200"} 1`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.server.Serve(ctx, l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, waitTimeout, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false, func(c *Config) {
		c.CORSOrigins = []string{"http://localhost:3000"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/send", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestKeyedLimiterPrunesIdleKeys(t *testing.T) {
	t.Parallel()

	l := newKeyedLimiter(1)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.size())

	now = now.Add(idleAfter + time.Second)
	assert.True(t, l.Allow("c"), "a new key prunes idle ones")
	assert.Equal(t, 1, l.size())
	assert.True(t, l.Allow("a"), "a pruned key starts with a full bucket")
}
