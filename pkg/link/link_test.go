// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

// fakePort feeds bytes from a pipe and records modem line changes
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written []byte
	lines   []string
	drains  int
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func (p *fakePort) SetRTS(v bool) error { p.record("rts", v); return nil }
func (p *fakePort) SetDTR(v bool) error { p.record("dtr", v); return nil }

func (p *fakePort) Drain() error {
	p.mu.Lock()
	p.drains++
	p.mu.Unlock()
	return nil
}

func (p *fakePort) record(line string, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v {
		p.lines = append(p.lines, line+"=1")
	} else {
		p.lines = append(p.lines, line+"=0")
	}
}

func (p *fakePort) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func readAll(t *testing.T, s interface {
	Available() int
	ReadByte() (byte, error)
}, n int) []byte {
	t.Helper()
	require.Eventually(t, func() bool { return s.Available() >= n }, time.Second, time.Millisecond)
	out := make([]byte, n)
	for i := range out {
		c, err := s.ReadByte()
		require.NoError(t, err)
		out[i] = c
	}
	return out
}

// ============================================================
// Inbox Tests
// ============================================================

func TestInbox(t *testing.T) {
	var in inbox
	assert.Zero(t, in.Available())

	_, err := in.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	in.push([]byte{1, 2})
	in.push([]byte{3})
	assert.Equal(t, 3, in.Available())

	c, err := in.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(1), c)

	in.discard()
	assert.Zero(t, in.Available())

	in.close()
	assert.Equal(t, 1, in.Available(), "a closed inbox advertises the closure")
	_, err = in.ReadByte()
	assert.ErrorIs(t, err, bridge.ErrLinkClosed)
}

func TestInbox_DrainsBeforeClosure(t *testing.T) {
	var in inbox
	in.push([]byte{7})
	in.close()

	c, err := in.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(7), c)

	_, err = in.ReadByte()
	assert.ErrorIs(t, err, bridge.ErrLinkClosed)
}

// ============================================================
// Serial Tests
// ============================================================

func TestSerial_Read(t *testing.T) {
	port := newFakePort()
	s, err := NewSerial(port)
	require.NoError(t, err)
	defer s.Close()

	go port.w.Write([]byte{0xFF, 0xFF, 0x01})
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01}, readAll(t, s, 3))
}

func TestSerial_DirectionRTS(t *testing.T) {
	port := newFakePort()
	s, err := NewSerial(port, WithDirection(DirectionRTS))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Drive())
	_, err = s.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, s.Drain())
	require.NoError(t, s.Listen())

	assert.Equal(t, []string{"rts=0", "rts=1", "rts=0"}, port.recorded())
	assert.Equal(t, []byte{1, 2, 3}, port.written)
	assert.Equal(t, 1, port.drains)
}

func TestSerial_DirectionInverted(t *testing.T) {
	port := newFakePort()
	s, err := NewSerial(port, WithDirection(DirectionDTR), WithInvertedDirection(true))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Drive())
	require.NoError(t, s.Listen())

	assert.Equal(t, []string{"dtr=1", "dtr=0", "dtr=1"}, port.recorded())
}

func TestSerial_DirectionNone(t *testing.T) {
	port := newFakePort()
	s, err := NewSerial(port)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Drive())
	require.NoError(t, s.Listen())
	assert.Empty(t, port.recorded())
}

func TestSerial_ClosedPort(t *testing.T) {
	port := newFakePort()
	s, err := NewSerial(port)
	require.NoError(t, err)

	port.w.CloseWithError(io.ErrUnexpectedEOF)
	require.Eventually(t, func() bool { return s.Available() > 0 }, time.Second, time.Millisecond)

	_, err = s.ReadByte()
	assert.ErrorIs(t, err, bridge.ErrLinkClosed)
	_, err = s.Write([]byte{1})
	assert.ErrorIs(t, err, bridge.ErrLinkClosed)
	assert.ErrorIs(t, s.Err(), io.ErrUnexpectedEOF)

	s.Close()
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"", DirectionNone, false},
		{"none", DirectionNone, false},
		{"RTS", DirectionRTS, false},
		{" dtr ", DirectionDTR, false},
		{"cts", DirectionNone, true},
	}

	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)

		again, err := ParseDirection(got.String())
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

// ============================================================
// WebSocket Tests
// ============================================================

func dialHost(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func TestWebSocketHost_RoundTrip(t *testing.T) {
	host := NewWebSocketHost()
	srv := httptest.NewServer(host)
	defer srv.Close()

	conn, _, err := dialHost(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, host.Connected, time.Second, time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ignored")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0xFF, 0xFD}))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFD}, readAll(t, host, 3))

	_, err = host.Write([]byte{0xAA, 0xBB})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{0xAA, 0xBB}, data)
}

func TestWebSocketHost_SingleClient(t *testing.T) {
	host := NewWebSocketHost()
	srv := httptest.NewServer(host)
	defer srv.Close()

	first, _, err := dialHost(t, srv, nil)
	require.NoError(t, err)
	require.Eventually(t, host.Connected, time.Second, time.Millisecond)

	_, resp, err := dialHost(t, srv, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	first.Close()
	require.Eventually(t, func() bool { return !host.Connected() }, time.Second, time.Millisecond)

	second, _, err := dialHost(t, srv, nil)
	require.NoError(t, err)
	second.Close()
}

func TestWebSocketHost_WriteWithoutClient(t *testing.T) {
	host := NewWebSocketHost()
	n, err := host.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWebSocketHost_BasicAuth(t *testing.T) {
	host := NewWebSocketHost(WithBasicAuth("admin", "secret"))
	srv := httptest.NewServer(host)
	defer srv.Close()

	_, resp, err := dialHost(t, srv, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	conn, _, err := dialHost(t, srv, header)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocketHost_Close(t *testing.T) {
	host := NewWebSocketHost()
	srv := httptest.NewServer(host)
	defer srv.Close()

	conn, _, err := dialHost(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, host.Connected, time.Second, time.Millisecond)

	require.NoError(t, host.Close())

	_, err = host.ReadByte()
	assert.ErrorIs(t, err, bridge.ErrLinkClosed)
	_, err = host.Write([]byte{1})
	assert.ErrorIs(t, err, bridge.ErrLinkClosed)
}

// ============================================================
// Clock Tests
// ============================================================

func TestSystemClock(t *testing.T) {
	c := NewSystemClock()
	first := c.NowMs()
	time.Sleep(5 * time.Millisecond)
	second := c.NowMs()

	assert.GreaterOrEqual(t, second-first, uint32(5))
	assert.Less(t, first, uint32(1000))
}
