package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/getmockd/stompd/pkg/stomp"
)

// Transport kinds, used as the transport metric label.
const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
)

// Transport moves frame text over one client connection. ReadFrame is only
// called from the connection's read loop; WriteFrame calls are serialized by
// the caller. Close may be called at any time and unblocks ReadFrame.
type Transport interface {
	ReadFrame() (string, error)
	WriteFrame(frame string) error
	Close() error
	RemoteAddr() string
	Kind() string
}

// streamTransport carries NUL-terminated frames over a byte stream.
type streamTransport struct {
	conn         net.Conn
	r            *bufio.Reader
	dec          *stomp.Decoder
	writeTimeout time.Duration
}

func newStreamTransport(conn net.Conn, dec *stomp.Decoder, writeTimeout time.Duration) *streamTransport {
	return &streamTransport{
		conn:         conn,
		r:            bufio.NewReader(conn),
		dec:          dec,
		writeTimeout: writeTimeout,
	}
}

func (t *streamTransport) ReadFrame() (string, error) {
	return t.dec.Next(t.r)
}

func (t *streamTransport) WriteFrame(frame string) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := t.conn.Write(stomp.Encode(frame))
	return err
}

func (t *streamTransport) Close() error       { return t.conn.Close() }
func (t *streamTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
func (t *streamTransport) Kind() string       { return KindTCP }

// wsTransport carries one frame per WebSocket text message. The trailing
// NUL is optional on input and always written on output.
type wsTransport struct {
	conn         *ws.Conn
	remote       string
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newWSTransport(conn *ws.Conn, remote string, writeTimeout time.Duration) *wsTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsTransport{
		conn:         conn,
		remote:       remote,
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (t *wsTransport) ReadFrame() (string, error) {
	for {
		typ, data, err := t.conn.Read(t.ctx)
		if err != nil {
			if ws.CloseStatus(err) == ws.StatusNormalClosure || ws.CloseStatus(err) == ws.StatusGoingAway {
				return "", fmt.Errorf("websocket closed by peer: %w", net.ErrClosed)
			}
			return "", err
		}
		if typ != ws.MessageText {
			return "", errors.New("binary websocket messages are not supported")
		}
		frame := strings.TrimLeft(strings.TrimSuffix(string(data), "\x00"), "\r\n")
		if frame == "" {
			continue // heart-beat
		}
		return frame, nil
	}
}

func (t *wsTransport) WriteFrame(frame string) error {
	ctx := t.ctx
	if t.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.writeTimeout)
		defer cancel()
	}
	return t.conn.Write(ctx, ws.MessageText, stomp.Encode(frame))
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.CloseNow()
	})
	return err
}

func (t *wsTransport) RemoteAddr() string { return t.remote }
func (t *wsTransport) Kind() string       { return KindWebSocket }
