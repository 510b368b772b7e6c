package signalr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// WebSocketTransport Transport implementation over gorilla/websocket.
type WebSocketTransport struct {
	// URL of the hub endpoint.  http and https are rewritten to ws and wss.
	URL url.URL

	// Dialer allows the consumer to override the default dialer as needed.
	Dialer *websocket.Dialer

	// RequestHeaders additional header parameters to add to the upgrade request.
	RequestHeaders http.Header

	mu  sync.Mutex
	cur *wsConn
}

// one opened socket.  closing is set before a local Close so the read loop stays quiet.
type wsConn struct {
	conn    *websocket.Conn
	msgType int
	writeMu sync.Mutex
	closing atomic.Bool
	done    chan struct{}
}

// NewWebSocketTransport parses rawURL and returns a transport with a default dialer.
func NewWebSocketTransport(rawURL string) (*WebSocketTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, SocketConnectionError(err.Error())
	}

	return &WebSocketTransport{
		URL: *u,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
	}, nil
}

func socketURL(u url.URL) url.URL {
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	return u
}

// Open implement Transport
func (t *WebSocketTransport) Open(ctx context.Context, opts OpenOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur != nil {
		return SocketConnectionError("transport already open")
	}

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	for k, values := range t.RequestHeaders {
		for _, val := range values {
			header.Add(k, val)
		}
	}
	if opts.AccessToken != "" {
		header.Set("Authorization", "Bearer "+opts.AccessToken)
	}

	u := socketURL(t.URL)
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return SocketConnectionError(fmt.Sprintf("%s (%s)", err.Error(), resp.Status))
		}
		return SocketConnectionError(err.Error())
	}

	c := &wsConn{
		conn:    conn,
		msgType: websocket.TextMessage,
		done:    make(chan struct{}),
	}
	if opts.Format == BinaryFormat {
		c.msgType = websocket.BinaryMessage
	}
	t.cur = c

	go t.readLoop(c, opts)

	return nil
}

func (t *WebSocketTransport) readLoop(c *wsConn, opts OpenOptions) {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}

			t.mu.Lock()
			if t.cur == c {
				t.cur = nil
			}
			t.mu.Unlock()
			c.conn.Close()

			if opts.Closed != nil {
				opts.Closed(closeReason(err))
			}
			return
		}

		if opts.Receive != nil {
			opts.Receive(data)
		}
	}
}

// normal and going-away closures are clean, everything else is reported.
func closeReason(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		return nil
	}
	return SocketError(err.Error())
}

// Send implement Transport.  Safe for concurrent use.
func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	c := t.cur
	t.mu.Unlock()

	if c == nil {
		return SocketError("transport is not open")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(c.msgType, frame); err != nil {
		return SocketError(err.Error())
	}
	return nil
}

// Close implement Transport.  Sends a normal close frame and waits for the read loop to exit.
// Must not be called from the Receive callback.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	c := t.cur
	t.cur = nil
	t.mu.Unlock()

	if c == nil {
		return nil
	}

	c.closing.Store(true)

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteWait))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done

	return err
}
