package signalr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer echoes every message, or closes with the code found in a "close:<code>" message.
func echoServer(t *testing.T, headers chan<- http.Header) *httptest.Server {
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if headers != nil {
			headers <- r.Header.Clone()
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %s", err)
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			switch string(data) {
			case "close:1000":
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			case "close:1011":
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "Hub could not be created"), time.Now().Add(time.Second))
				return
			}

			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

type wsRecorder struct {
	frames chan []byte
	closed chan error
}

func newWSRecorder() *wsRecorder {
	return &wsRecorder{frames: make(chan []byte, 16), closed: make(chan error, 2)}
}

func (r *wsRecorder) options(token string, format TransferFormat) OpenOptions {
	return OpenOptions{
		AccessToken: token,
		Format:      format,
		Receive:     func(frame []byte) { r.frames <- frame },
		Closed:      func(err error) { r.closed <- err },
	}
}

func openTransport(t *testing.T, srv *httptest.Server, opts OpenOptions) *WebSocketTransport {
	t.Helper()

	transport, err := NewWebSocketTransport(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := transport.Open(context.Background(), opts); err != nil {
		t.Fatalf("open failed: %s", err)
	}
	return transport
}

func TestWebSocketEcho(t *testing.T) {
	//Assemble
	headers := make(chan http.Header, 1)
	srv := echoServer(t, headers)
	defer srv.Close()
	rec := newWSRecorder()

	//Act
	transport := openTransport(t, srv, rec.options("abc", TextFormat))
	defer transport.Close()

	if err := transport.Send(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("send failed: %s", err)
	}

	//Assert
	if auth := (<-headers).Get("Authorization"); auth != "Bearer abc" {
		t.Errorf("expected bearer token on the upgrade request, got %q", auth)
	}

	select {
	case frame := <-rec.frames:
		if string(frame) != "hello" {
			t.Errorf("expected echo, got %q", frame)
		}
	case <-time.After(waitTimeout):
		t.Fatal("echo not received")
	}
}

func TestWebSocketRemoteCloseWithError(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()
	rec := newWSRecorder()

	transport := openTransport(t, srv, rec.options("", BinaryFormat))
	transport.Send(context.Background(), []byte("close:1011"))

	select {
	case err := <-rec.closed:
		if err == nil || !strings.Contains(err.Error(), "1011") {
			t.Errorf("expected close error carrying 1011, got %v", err)
		}
		if _, ok := err.(SocketError); !ok {
			t.Errorf("expected SocketError, got %T", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("closed callback not called")
	}

	if err := transport.Send(context.Background(), []byte("x")); err == nil {
		t.Errorf("send after remote close should fail")
	}
}

func TestWebSocketRemoteCleanClose(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()
	rec := newWSRecorder()

	transport := openTransport(t, srv, rec.options("", TextFormat))
	transport.Send(context.Background(), []byte("close:1000"))

	select {
	case err := <-rec.closed:
		if err != nil {
			t.Errorf("normal closure should be reported as nil, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("closed callback not called")
	}
}

func TestWebSocketLocalCloseIsQuiet(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()
	rec := newWSRecorder()

	transport := openTransport(t, srv, rec.options("", TextFormat))

	if err := transport.Close(); err != nil {
		t.Logf("close: %s", err)
	}
	if err := transport.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	select {
	case err := <-rec.closed:
		t.Errorf("closed callback must not fire after Close, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// reopen after close
	if err := transport.Open(context.Background(), rec.options("", TextFormat)); err != nil {
		t.Fatalf("reopen failed: %s", err)
	}
	transport.Close()
}

func TestWebSocketDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	transport, _ := NewWebSocketTransport(srv.URL)
	err := transport.Open(context.Background(), newWSRecorder().options("", TextFormat))

	if _, ok := err.(SocketConnectionError); !ok {
		t.Fatalf("expected SocketConnectionError, got %T (%v)", err, err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected the HTTP status in the error, got %q", err.Error())
	}
}

func TestSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:5000/testhub":  "ws://localhost:5000/testhub",
		"https://example.com/hub?x=1":    "wss://example.com/hub?x=1",
		"ws://localhost/hub":             "ws://localhost/hub",
		"wss://example.com/hub":          "wss://example.com/hub",
		"//localhost:5000/authorizedhub": "ws://localhost:5000/authorizedhub",
	}

	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		got := socketURL(*u)
		if got.String() != want {
			t.Errorf("socketURL(%s) - expected %s, got %s", raw, want, got.String())
		}
	}
}
