package transports

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"

	"github.com/gorilla/websocket"
)

const (
	recvBufferSize = 1000
	writeTimeout   = 10 * time.Second
)

// -----------------------------------------------------------------------------

// WebSocketDialer opens push sessions with Gorilla WebSocket
type WebSocketDialer struct {
	name             string
	logger           *logger.Logger
	handshakeTimeout time.Duration
	header           http.Header
}

var _ interfaces.IPushDialer = (*WebSocketDialer)(nil)

// -----------------------------------------------------------------------------

// NewWebSocketDialer creates a dialer. handshakeTimeout bounds the opening
// handshake; header is sent with it and may be nil.
func NewWebSocketDialer(log *logger.Logger, handshakeTimeout time.Duration, header http.Header) *WebSocketDialer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocketDialer{
		name:             "websocket",
		logger:           log,
		handshakeTimeout: handshakeTimeout,
		header:           header,
	}
}

// -----------------------------------------------------------------------------

// Dial establishes the connection and starts the read and process loops.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, onMessage func([]byte), onClose func(error)) (interfaces.IPushSession, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, d.header)
	if err != nil {
		d.logger.Error("%s : failed to connect to %s: %v", d.name, url, err)
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	session := &WebSocketSession{
		name:         d.name,
		url:          url,
		logger:       d.logger,
		conn:         conn,
		recvMsgChann: make(chan []byte, recvBufferSize),
		done:         make(chan struct{}),
		onMessage:    onMessage,
		onClose:      onClose,
	}

	d.logger.Info("%s : WebSocket connected to %s", d.name, url)

	go session.receiveMessages()
	go session.processIncomingMessages()

	return session, nil
}

// -----------------------------------------------------------------------------

// WebSocketSession is one live connection. It is not reused after closing.
type WebSocketSession struct {
	name   string
	url    string
	logger *logger.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex

	recvMsgChann  chan []byte
	done          chan struct{}
	closeOnce     sync.Once
	closedLocally atomic.Bool
	closeErr      error // written by the read loop before recvMsgChann closes

	onMessage func([]byte)
	onClose   func(error)
}

var _ interfaces.IPushSession = (*WebSocketSession)(nil)

// -----------------------------------------------------------------------------

// Send writes one text frame
func (s *WebSocketSession) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closedLocally.Load() {
		return fmt.Errorf("session to %s is closed", s.url)
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Close sends a normal closure frame and closes the connection. The onClose
// callback is not invoked for a local close.
func (s *WebSocketSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closedLocally.Store(true)
		close(s.done)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		if closeErr := s.conn.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close connection: %s: %w", s.url, closeErr)
		}
		s.logger.Info("%s : WebSocket disconnected from %s", s.name, s.url)
	})
	return err
}

// -----------------------------------------------------------------------------

// receiveMessages is the only reader of conn and the only writer of recvMsgChann.
func (s *WebSocketSession) receiveMessages() {
	defer close(s.recvMsgChann)

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closedLocally.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Info("%s : remote closed %s cleanly", s.name, s.url)
				s.closeErr = nil
			} else {
				s.logger.Warning("%s : read message error on %s: %v", s.name, s.url, err)
				s.closeErr = fmt.Errorf("read message error: %w", err)
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case s.recvMsgChann <- message:
		case <-s.done:
			return
		}
	}
}

// -----------------------------------------------------------------------------

// processIncomingMessages delivers frames in arrival order, then reports the
// remote close once every queued frame was handed over.
func (s *WebSocketSession) processIncomingMessages() {
	for {
		select {
		case <-s.done:
			return
		case message, ok := <-s.recvMsgChann:
			if !ok {
				if !s.closedLocally.Load() {
					_ = s.conn.Close()
					if s.onClose != nil {
						s.onClose(s.closeErr)
					}
				}
				return
			}
			if s.onMessage != nil {
				s.onMessage(message)
			}
		}
	}
}
