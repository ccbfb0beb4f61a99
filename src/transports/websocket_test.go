package transports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer runs handler on every upgraded connection
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

type sessionRecorder struct {
	mu       sync.Mutex
	messages []string
	closed   chan error
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{closed: make(chan error, 1)}
}

func (r *sessionRecorder) onMessage(data []byte) {
	r.mu.Lock()
	r.messages = append(r.messages, string(data))
	r.mu.Unlock()
}

func (r *sessionRecorder) onClose(err error) {
	r.closed <- err
}

func (r *sessionRecorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestWebSocketSession_EchoAndCleanClose(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, msg)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("second"))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(100 * time.Millisecond)
	})

	recorder := newSessionRecorder()
	session, err := NewWebSocketDialer(nil, time.Second, nil).
		Dial(context.Background(), wsURL(server), recorder.onMessage, recorder.onClose)
	require.NoError(t, err)

	require.NoError(t, session.Send([]byte(`{"action":"subscribe"}`)))

	select {
	case closeErr := <-recorder.closed:
		assert.NoError(t, closeErr, "normal closure is reported as clean")
	case <-time.After(2 * time.Second):
		t.Fatal("close callback not invoked")
	}
	assert.Equal(t, []string{`{"action":"subscribe"}`, "second"}, recorder.Messages())
}

func TestWebSocketSession_AbruptDrop(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("tick"))
		// return without a close frame
	})

	recorder := newSessionRecorder()
	_, err := NewWebSocketDialer(nil, time.Second, nil).
		Dial(context.Background(), wsURL(server), recorder.onMessage, recorder.onClose)
	require.NoError(t, err)

	select {
	case closeErr := <-recorder.closed:
		assert.Error(t, closeErr)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback not invoked")
	}
	assert.Equal(t, []string{"tick"}, recorder.Messages())
}

func TestWebSocketSession_LocalCloseIsSilent(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	recorder := newSessionRecorder()
	session, err := NewWebSocketDialer(nil, time.Second, nil).
		Dial(context.Background(), wsURL(server), recorder.onMessage, recorder.onClose)
	require.NoError(t, err)

	require.NoError(t, session.Close())
	assert.NoError(t, session.Close(), "close is idempotent")
	assert.Error(t, session.Send([]byte("late")))

	select {
	case <-recorder.closed:
		t.Fatal("local close must not invoke the close callback")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWebSocketDialer_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewWebSocketDialer(nil, time.Second, nil).
		Dial(context.Background(), wsURL(server), nil, nil)
	assert.Error(t, err)
}
