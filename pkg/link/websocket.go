// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHost is a host link served over WebSocket. It accepts one client
// at a time; binary messages from the client feed the bridge and bridge
// output is sent back as binary messages. Bytes written while no client is
// attached are dropped.
type WebSocketHost struct {
	inbox

	username string
	password string
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ bridge.HostLink = (*WebSocketHost)(nil)

// WebSocketOption configures a WebSocketHost
type WebSocketOption func(*WebSocketHost)

// WithBasicAuth requires HTTP Basic credentials on the upgrade request
func WithBasicAuth(username, password string) WebSocketOption {
	return func(w *WebSocketHost) {
		w.username = username
		w.password = password
	}
}

// WithWebSocketLogger attaches a logger for connection events
func WithWebSocketLogger(logger *zap.Logger) WebSocketOption {
	return func(w *WebSocketHost) {
		if logger != nil {
			w.log = logger
		}
	}
}

// NewWebSocketHost creates a host link. Mount it on an HTTP server.
func NewWebSocketHost(opts ...WebSocketOption) *WebSocketHost {
	w := &WebSocketHost{
		log: zap.NewNop(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ServeHTTP upgrades the request and attaches the client
func (w *WebSocketHost) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if w.isClosed() {
		http.Error(rw, "bridge stopped", http.StatusServiceUnavailable)
		return
	}
	if !w.authorized(r) {
		rw.Header().Set("WWW-Authenticate", `Basic realm="dxbridge"`)
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.mu.Lock()
	busy := w.conn != nil
	w.mu.Unlock()
	if busy {
		http.Error(rw, "a host is already connected", http.StatusConflict)
		return
	}

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.conn = conn
	w.mu.Unlock()

	// a new host never sees a previous host's partial input
	w.discard()
	w.log.Info("host connected", zap.String("remote", r.RemoteAddr))

	w.readLoop(conn)

	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	conn.Close()
	w.log.Info("host disconnected", zap.String("remote", r.RemoteAddr))
}

func (w *WebSocketHost) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Only binary messages carry packets
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.push(data)
	}
}

func (w *WebSocketHost) authorized(r *http.Request) bool {
	if w.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(w.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(w.password)) == 1
	return userOK && passOK
}

// Connected reports whether a host is attached
func (w *WebSocketHost) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

func (w *WebSocketHost) Write(p []byte) (int, error) {
	if w.isClosed() {
		return 0, bridge.ErrLinkClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return len(p), nil
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		// the read loop notices the broken connection and detaches it
		w.log.Debug("websocket write", zap.Error(err))
		return len(p), nil
	}
	return len(p), nil
}

// Close disconnects the client and makes the link report ErrLinkClosed
func (w *WebSocketHost) Close() error {
	w.close()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge stopped"), deadline)
	return w.conn.Close()
}
