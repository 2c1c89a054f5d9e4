package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statcode-ai/mcpclient/internal/protocol"
)

func TestNewSelectsImplementation(t *testing.T) {
	ws, err := New(Config{Type: "websocket", Endpoint: "ws://localhost"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &WebSocket{}, ws)

	h, err := New(Config{Type: "http", Endpoint: "http://localhost"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, h)

	_, err = New(Config{Type: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

// echoServer upgrades each request and answers every wire request with a
// response reusing its id and params.
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req protocol.Request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			resp := protocol.Response{ID: req.ID, Result: req.Params}
			out, _ := json.Marshal(resp)
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	tr := NewWebSocket(Config{Type: "websocket", Endpoint: wsURL(server)}, nil)
	defer tr.Close()

	messages := make(chan *protocol.Response, 1)
	connected := make(chan struct{}, 1)
	tr.OnMessage(func(resp *protocol.Response) { messages <- resp })
	tr.OnConnect(func() { connected <- struct{}{} })

	require.NoError(t, tr.Connect(context.Background()))
	require.True(t, tr.IsConnected())

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connect handler did not fire")
	}

	req, err := protocol.NewRequest("echo", map[string]string{"msg": "hi"})
	require.NoError(t, err)
	require.NoError(t, tr.Send(req))

	select {
	case resp := <-messages:
		assert.Equal(t, req.ID, resp.ID)
		assert.JSONEq(t, `{"msg":"hi"}`, string(resp.Result))
	case <-time.After(time.Second):
		t.Fatal("no response delivered")
	}
}

func TestWebSocketConnectFailure(t *testing.T) {
	tr := NewWebSocket(Config{
		Type:      "websocket",
		Endpoint:  "ws://127.0.0.1:1", // nothing listens here
		TimeoutMs: 500,
	}, nil)

	err := tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, protocol.IsConnectionError(err))
	assert.False(t, tr.IsConnected())
}

func TestWebSocketSendWhileDisconnected(t *testing.T) {
	tr := NewWebSocket(Config{Type: "websocket", Endpoint: "ws://localhost"}, nil)

	req, err := protocol.NewRequest("echo", nil)
	require.NoError(t, err)

	err = tr.Send(req)
	require.Error(t, err)
	assert.True(t, protocol.IsConnectionError(err))
}

func TestWebSocketServerDropSignalsDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	drop := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-drop
		conn.Close()
	}))
	defer server.Close()

	tr := NewWebSocket(Config{Type: "websocket", Endpoint: wsURL(server)}, nil)
	defer tr.Close()

	disconnected := make(chan error, 1)
	tr.OnDisconnect(func(reason error) { disconnected <- reason })

	require.NoError(t, tr.Connect(context.Background()))
	close(drop)

	select {
	case reason := <-disconnected:
		assert.Error(t, reason, "an unexpected drop carries its cause")
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler did not fire")
	}
	assert.False(t, tr.IsConnected())
}

func TestWebSocketReconnectCycle(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	tr := NewWebSocket(Config{Type: "websocket", Endpoint: wsURL(server)}, nil)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))
	tr.Disconnect()
	assert.False(t, tr.IsConnected())

	// The same instance must support a fresh connection.
	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, tr.IsConnected())
}

// newHTTPServer serves the health route and answers POSTs with an echo
// response.
func newHTTPServer(t *testing.T) *httptest.Server {
	router := httprouter.New()
	router.HEAD("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})
	router.POST("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req protocol.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := protocol.Response{ID: req.ID, Result: req.Params}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(router)
}

func TestHTTPRoundTrip(t *testing.T) {
	server := newHTTPServer(t)
	defer server.Close()

	tr := NewHTTP(Config{Type: "http", Endpoint: server.URL}, nil)
	defer tr.Close()

	messages := make(chan *protocol.Response, 1)
	tr.OnMessage(func(resp *protocol.Response) { messages <- resp })

	require.NoError(t, tr.Connect(context.Background()))
	require.True(t, tr.IsConnected())

	req, err := protocol.NewRequest("echo", map[string]string{"msg": "hi"})
	require.NoError(t, err)
	require.NoError(t, tr.Send(req))

	select {
	case resp := <-messages:
		assert.Equal(t, req.ID, resp.ID)
		assert.JSONEq(t, `{"msg":"hi"}`, string(resp.Result))
	default:
		t.Fatal("HTTP delivery is synchronous; response must already be there")
	}
}

func TestHTTPConnectFailure(t *testing.T) {
	tr := NewHTTP(Config{
		Type:      "http",
		Endpoint:  "http://127.0.0.1:1",
		TimeoutMs: 500,
	}, nil)

	err := tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, protocol.IsConnectionError(err))
}

func TestHTTPServerErrorStatus(t *testing.T) {
	router := httprouter.New()
	router.HEAD("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})
	router.POST("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	tr := NewHTTP(Config{Type: "http", Endpoint: server.URL}, nil)
	defer tr.Close()
	require.NoError(t, tr.Connect(context.Background()))

	req, err := protocol.NewRequest("echo", nil)
	require.NoError(t, err)

	err = tr.Send(req)
	require.Error(t, err)

	var pe *protocol.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, protocol.CodeTransportError, pe.Code)
}

func TestHTTPAuthenticationHeader(t *testing.T) {
	seen := make(chan string, 2)
	router := httprouter.New()
	router.HEAD("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		seen <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	tr := NewHTTP(Config{
		Type:           "http",
		Endpoint:       server.URL,
		Authentication: "secret-token",
	}, nil)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))
	assert.Equal(t, "Bearer secret-token", <-seen)
}
