package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	signalr "gitlab.com/techviking/signalr/v3"
	"gitlab.com/techviking/signalr/v3/internal/testhub"
)

type connectionFlags struct {
	url              string
	protocol         string
	token            string
	timeout          time.Duration
	handshakeTimeout time.Duration
	verbose          bool
}

func bindConnectionFlags(cmd *cobra.Command) *connectionFlags {
	f := &connectionFlags{}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.url, "url", "u", "ws://localhost:5000/testhub", "hub endpoint")
	pf.StringVarP(&f.protocol, "protocol", "p", "json", "hub protocol: json or cbor")
	pf.StringVar(&f.token, "token", "", "bearer token sent with the upgrade request")
	pf.DurationVar(&f.timeout, "server-timeout", 30*time.Second, "drop the connection after this long without a message (0 disables)")
	pf.DurationVar(&f.handshakeTimeout, "handshake-timeout", 15*time.Second, "bound on the handshake")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	return f
}

func (f *connectionFlags) protocolFor() (signalr.Protocol, error) {
	switch f.protocol {
	case "json":
		return signalr.JSONProtocol{}, nil
	case "cbor":
		return signalr.CBORProtocol{}, nil
	}
	return nil, fmt.Errorf("unknown protocol %q", f.protocol)
}

func (f *connectionFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect builds and starts a connection from the flags.
func (f *connectionFlags) connect(ctx context.Context) (signalr.Connection, error) {
	p, err := f.protocolFor()
	if err != nil {
		return nil, err
	}

	transport, err := signalr.NewWebSocketTransport(f.url)
	if err != nil {
		return nil, err
	}

	cfg := signalr.Config{
		Transport:        transport,
		Protocol:         p,
		Timeout:          f.timeout,
		HandshakeTimeout: f.handshakeTimeout,
		Logger:           f.logger(),
	}
	if f.token != "" {
		token := f.token
		cfg.AccessTokenProvider = func(context.Context) (string, error) { return token, nil }
	}

	conn := signalr.New(cfg)
	if err := conn.Start(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(raw []string) []interface{} {
	args := make([]interface{}, len(raw))
	for i, r := range raw {
		var v interface{}
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			v = r
		}
		args[i] = v
	}
	return args
}

func printPayload(w io.Writer, p signalr.Payload) error {
	if p == nil {
		fmt.Fprintln(w, "null")
		return nil
	}

	var v interface{}
	if err := p.Decode(&v); err != nil {
		return err
	}

	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func stop(conn signalr.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn.Stop(ctx)
}

func invokeCmd(f *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <method> [args...]",
		Short: "Invoke a hub method and print its result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			conn, err := f.connect(ctx)
			if err != nil {
				return err
			}
			defer stop(conn)

			result, err := conn.Invoke(ctx, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}
			return printPayload(cmd.OutOrStdout(), result)
		},
	}
}

func sendCmd(f *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <method> [args...]",
		Short: "Call a hub method without waiting for a result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			conn, err := f.connect(ctx)
			if err != nil {
				return err
			}
			defer stop(conn)

			return conn.Send(ctx, args[0], parseArgs(args[1:])...)
		},
	}
}

func streamCmd(f *connectionFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stream <method> [args...]",
		Short: "Print every item of a server stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			conn, err := f.connect(ctx)
			if err != nil {
				return err
			}
			defer stop(conn)

			out := cmd.OutOrStdout()
			done := make(chan error, 1)

			sub, err := conn.Stream(ctx, signalr.StreamObserver{
				Next: func(item signalr.Payload) {
					if err := printPayload(out, item); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "undecodable item: %s\n", err)
					}
				},
				Error:    func(err error) { done <- err },
				Complete: func() { done <- nil },
			}, args[0], parseArgs(args[1:])...)
			if err != nil {
				return err
			}

			select {
			case err = <-done:
				return err
			case <-ctx.Done():
				sub.Cancel()
				return nil
			}
		},
	}
}

func listenCmd(f *connectionFlags) *cobra.Command {
	var methods []string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print calls the hub pushes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(methods) == 0 {
				return errors.New("at least one --method is required")
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			conn, err := f.connect(ctx)
			if err != nil {
				return err
			}
			defer stop(conn)

			out := cmd.OutOrStdout()
			for _, name := range methods {
				name := name
				conn.On(name, func(args ...signalr.Payload) {
					fmt.Fprintf(out, "%s:", name)
					for _, a := range args {
						var v interface{}
						if a != nil {
							a.Decode(&v)
						}
						b, _ := json.Marshal(v)
						fmt.Fprintf(out, " %s", b)
					}
					fmt.Fprintln(out)
				})
			}

			closed := make(chan error, 1)
			conn.OnClose(func(err error) { closed <- err })

			select {
			case err := <-closed:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}

	cmd.Flags().StringSliceVarP(&methods, "method", "m", nil, "method names to print (repeatable)")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr      string
		keepAlive time.Duration
		token     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the test hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub := testhub.New(testhub.Options{
				KeepAliveInterval: keepAlive,
				Token:             token,
			})

			srv := &http.Server{Addr: addr, Handler: hub}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			go func() {
				<-ctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "test hub listening on %s (token %s)\n", addr, hub.Token())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address")
	cmd.Flags().DurationVar(&keepAlive, "keep-alive", 15*time.Second, "interval between pings (0 disables)")
	cmd.Flags().StringVar(&token, "token", "", "token accepted by /authorizedhub (random when empty)")
	return cmd
}
