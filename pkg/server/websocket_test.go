package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stompd/pkg/stomp"
)

func wsDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{"v12.stomp"}, HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	assert.Equal(t, "v12.stomp", conn.Subprotocol())
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, stomp.Encode(frame)))
}

func wsRecv(t *testing.T, conn *websocket.Conn) stomp.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	text := string(data)
	require.True(t, strings.HasSuffix(text, "\x00"), "frame must end with NUL")
	f, err := stomp.Parse(strings.TrimSuffix(text, "\x00"))
	require.NoError(t, err)
	return f
}

func TestWebSocketTransport(t *testing.T) {
	for _, mode := range []string{"tpc", "reactor"} {
		t.Run(mode, func(t *testing.T) {
			b := startBroker(t, mode)
			hs := httptest.NewServer(b.srv.WebSocketHandler())
			defer hs.Close()
			url := "ws" + strings.TrimPrefix(hs.URL, "http")

			ws := wsDial(t, url)
			defer ws.Close()

			wsSend(t, ws, "CONNECT\nlogin:wendy\npasscode:pw\n\n")
			assert.Equal(t, stomp.CmdConnected, wsRecv(t, ws).Command)

			// Frames without the trailing NUL are accepted too.
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("SUBSCRIBE\ndestination:/topic/ws\nid:9\nreceipt:sub\n\n")))
			assert.Equal(t, "sub", header(t, wsRecv(t, ws), stomp.HdrReceiptID))

			tcp := dial(t, b.addr)
			tcp.send(t, "CONNECT\nlogin:tim\npasscode:pw\n\n")
			tcp.recv(t)
			tcp.send(t, "SUBSCRIBE\ndestination:/topic/ws\nid:1\n\n")
			tcp.send(t, "SEND\ndestination:/topic/ws\n\nacross transports")

			msg := wsRecv(t, ws)
			assert.Equal(t, stomp.CmdMessage, msg.Command)
			assert.Equal(t, "9", header(t, msg, stomp.HdrSubscription))
			assert.Equal(t, "across transports", msg.Body)

			wsSend(t, ws, "DISCONNECT\nreceipt:done\n\n")
			assert.Equal(t, "done", header(t, wsRecv(t, ws), stomp.HdrReceiptID))

			require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
			_, _, err := ws.ReadMessage()
			assert.Error(t, err)

			require.Eventually(t, func() bool { return !b.creds.Online("wendy") }, time.Second, 5*time.Millisecond)
			b.stop()
		})
	}
}
