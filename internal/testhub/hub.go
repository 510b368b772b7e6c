// Package testhub is a small hub server used by the functional tests and by `hubcli serve`.
//
// It speaks the handshake and the json and cbor protocols over WebSockets and exposes the
// methods the engine is exercised against:
//
//	Echo(v)                  returns v
//	EchoComplexObject(v)     returns v
//	ThrowException(msg)      fails with msg
//	InvokeWithString(msg)    pushes Message(msg) to the caller, then completes
//	SendCustomObject(v)      pushes CustomObject(v) to the caller
//	CloseWithError(msg)      sends a Close message carrying msg
//	Stream()                 streams "a", "b", "c"
//	EmptyStream()            streams nothing
//	StreamThrowException(m)  fails the stream with m
//
// Routes: /testhub, /authorizedhub (bearer token from /generateJwtToken), /uncreatable
// (closes with 1011 right after the handshake).
package testhub

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	signalr "gitlab.com/techviking/signalr/v3"
)

// close code used when authorization fails on a websocket request
const closeUnauthorized = 4401

// Options configure a Server.
type Options struct {
	// KeepAliveInterval between Ping messages.  Zero disables pings.
	KeepAliveInterval time.Duration

	// Token accepted by /authorizedhub.  Generated when empty.
	Token string

	Logger *slog.Logger
}

// Server serves the test hub routes.
type Server struct {
	opts     Options
	logger   *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Token == "" {
		opts.Token = newToken()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "testhub"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Get("/testhub", s.serveHub)
	r.With(s.authorize).Get("/authorizedhub", s.serveHub)
	r.Get("/uncreatable", s.serveUncreatable)
	r.Get("/generateJwtToken", s.generateToken)
	s.router = r

	return s
}

func newToken() string {
	var b [24]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ServeHTTP implement http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Token accepted by the authorized hub.
func (s *Server) Token() string {
	return s.opts.Token
}

func (s *Server) generateToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.opts.Token))
}

// authorize checks the bearer token.  WebSocket requests can't be challenged, so they are
// accepted and then closed with 4401.
func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == s.opts.Token {
			next.ServeHTTP(w, r)
			return
		}

		if websocket.IsWebSocketUpgrade(r) {
			ws, err := s.upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(closeUnauthorized, "Unauthorized"),
				time.Now().Add(time.Second))
			ws.Close()
			return
		}

		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) serveHub(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	hc := &hubConn{server: s, ws: ws, logger: s.logger}
	hc.serve()
}

func (s *Server) serveUncreatable(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	hc := &hubConn{server: s, ws: ws, logger: s.logger}
	if _, ok := hc.handshake(); !ok {
		return
	}

	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "Hub could not be created"),
		time.Now().Add(time.Second))
}

var protocols = []signalr.Protocol{signalr.JSONProtocol{}, signalr.CBORProtocol{}}

func lookupProtocol(name string) signalr.Protocol {
	for _, p := range protocols {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
