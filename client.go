package signalr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

//default values for configuartion
const (
	defaultHandshakeTimeout = 15 * time.Second
	tracerName              = "gitlab.com/techviking/signalr"
)

//ConnectionState int representing current state of the hub connection
type ConnectionState int

//Connection State Values
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// AccessTokenProvider produces a bearer credential, called once per Start.
type AccessTokenProvider func(ctx context.Context) (string, error)

//Config define options required for connecting to a hub.
type Config struct {
	//Transport carrying the frames.  Required.
	Transport Transport

	//Protocol used to encode messages.  Defaults to JSONProtocol.
	Protocol Protocol

	//Timeout the longest the server may stay silent before the connection is dropped.  Zero disables the check.
	Timeout time.Duration `json:"timeout,omitempty"`

	//HandshakeTimeout bounds the wait for the handshake response.  Defaults to 15 seconds.
	HandshakeTimeout time.Duration `json:"handshake_timeout,omitempty"`

	AccessTokenProvider AccessTokenProvider

	//Logger defaults to slog.Default().
	Logger *slog.Logger

	//Metrics optional prometheus collectors, see NewMetrics.
	Metrics *Metrics

	//TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

//client implemntation of Connection interface.
type client struct {
	//persist sanitized config
	config Config
	logger *slog.Logger
	tracer trace.Tracer

	handlers *dispatchTable

	//store current state of connection, and the cycle it belongs to
	state      ConnectionState
	session    *session
	stateMutex sync.RWMutex

	closeMutex    sync.Mutex
	closeHandlers []func(error)
}

//New generates a new client based on user data.  A missing transport will not fail until Start.
func New(c Config) Connection {
	if c.Protocol == nil {
		c.Protocol = JSONProtocol{}
	}

	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}

	if c.Timeout < 0 {
		c.Timeout = 0
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}

	return &client{
		config:   c,
		logger:   c.Logger.With("component", "signalr", "protocol", c.Protocol.Name()),
		tracer:   c.TracerProvider.Tracer(tracerName),
		handlers: newDispatchTable(),
		state:    Disconnected,
	}
}

func (c *client) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()

	return c.state
}

func (c *client) ConnectionID() string {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()

	if c.session == nil {
		return ""
	}
	return c.session.id
}

// connected returns the live cycle, or a StateError naming op.
func (c *client) connected(op string) (*session, error) {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()

	if c.state != Connected {
		return nil, &StateError{Op: op, State: c.state}
	}
	return c.session, nil
}

// markConnected moves Connecting to Connected unless s was torn down meanwhile.
func (c *client) markConnected(s *session) bool {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.session != s || s.closing.Load() {
		return false
	}
	c.state = Connected
	return true
}

// detach resets to Disconnected once s is gone.
func (c *client) detach(s *session) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.session == s {
		c.session = nil
		c.state = Disconnected
	}
}

func (c *client) On(name string, handler HandlerFunc) *Registration {
	return c.handlers.on(name, handler)
}

func (c *client) Off(name string, registrations ...*Registration) {
	c.handlers.off(name, registrations...)
}

func (c *client) OnClose(callback func(err error)) {
	if callback == nil {
		return
	}

	c.closeMutex.Lock()
	c.closeHandlers = append(c.closeHandlers, callback)
	c.closeMutex.Unlock()
}

func (c *client) notifyClose(cause error) {
	c.closeMutex.Lock()
	callbacks := make([]func(error), len(c.closeHandlers))
	copy(callbacks, c.closeHandlers)
	c.closeMutex.Unlock()

	for _, cb := range callbacks {
		cb(cause)
	}
}
