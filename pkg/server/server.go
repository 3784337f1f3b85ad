package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/getmockd/stompd/pkg/logging"
	"github.com/getmockd/stompd/pkg/metrics"
	"github.com/getmockd/stompd/pkg/protocol"
	"github.com/getmockd/stompd/pkg/registry"
	"github.com/getmockd/stompd/pkg/stomp"
)

// EngineFactory builds the protocol engine of a new connection.
type EngineFactory func() *protocol.Engine

// DecoderFactory builds the frame decoder of a new stream connection.
type DecoderFactory func() *stomp.Decoder

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithWriteTimeout bounds every outbound write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithWebSocketReadLimit caps the size of one inbound WebSocket message.
func WithWebSocketReadLimit(n int64) Option {
	return func(s *Server) { s.wsReadLimit = n }
}

// Server accepts client connections and runs each through its own protocol
// engine. ThreadPerClient and Reactor differ only in scheduling.
type Server struct {
	addr         string
	newEngine    EngineFactory
	newDecoder   DecoderFactory
	reg          *registry.Registry[string]
	sched        scheduler
	log          *slog.Logger
	writeTimeout time.Duration
	wsReadLimit  int64

	mu       sync.Mutex
	ctx      context.Context
	ln       net.Listener
	serving  bool
	draining bool
	conns    map[*connection]struct{}
	wg       sync.WaitGroup
}

// ThreadPerClient builds a server that gives every connection its own
// goroutine for reading and processing.
func ThreadPerClient(addr string, newEngine EngineFactory, newDecoder DecoderFactory, reg *registry.Registry[string], opts ...Option) *Server {
	return newServer(threadPerClient{}, addr, newEngine, newDecoder, reg, opts)
}

// Reactor builds a server whose protocol processing runs on a pool of
// workers goroutines. workers <= 0 selects GOMAXPROCS.
func Reactor(workers int, addr string, newEngine EngineFactory, newDecoder DecoderFactory, reg *registry.Registry[string], opts ...Option) *Server {
	return newServer(newReactor(workers), addr, newEngine, newDecoder, reg, opts)
}

func newServer(sched scheduler, addr string, newEngine EngineFactory, newDecoder DecoderFactory, reg *registry.Registry[string], opts []Option) *Server {
	if newDecoder == nil {
		newDecoder = stomp.NewDecoder
	}
	s := &Server{
		addr:        addr,
		newEngine:   newEngine,
		newDecoder:  newDecoder,
		reg:         reg,
		sched:       sched,
		log:         logging.Nop(),
		wsReadLimit: stomp.DefaultMaxFrameSize,
		conns:       make(map[*connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the listening address once Serve has started, and the
// configured address before that.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// ListenAndServe listens on the configured TCP address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or accepting fails.
// It closes every open connection and waits for all of them, and for the
// worker pool, before returning. A cancelled ctx yields a nil error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.newEngine == nil || s.reg == nil || ln == nil {
		return fmt.Errorf("%w: server needs an engine factory, a registry and a listener", ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	s.serving = true
	s.draining = false
	s.ctx = ctx
	s.ln = ln
	s.mu.Unlock()

	s.sched.start()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("broker listening", "addr", ln.Addr().String(), "mode", s.sched.name())

	var serveErr error
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("accept failed, retrying", "error", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
			serveErr = fmt.Errorf("accept: %w", err)
			break
		}

		t := newStreamTransport(nc, s.newDecoder(), s.writeTimeout)
		if !s.track() {
			_ = t.Close()
			break
		}
		go func() {
			defer s.wg.Done()
			s.run(ctx, t)
		}()
	}

	s.shutdown()
	s.log.Info("broker stopped", "addr", ln.Addr().String())
	return serveErr
}

// WebSocketHandler upgrades requests and serves STOMP over the WebSocket,
// one frame per text message. It answers 503 while the server is not
// serving.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.track() {
			http.Error(w, "broker is not serving", http.StatusServiceUnavailable)
			return
		}
		defer s.wg.Done()

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			Subprotocols:       []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			InsecureSkipVerify: true,
			CompressionMode:    ws.CompressionDisabled,
		})
		if err != nil {
			s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn.SetReadLimit(s.wsReadLimit)

		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.run(ctx, newWSTransport(conn, r.RemoteAddr, s.writeTimeout))
	})
}

// track reserves a slot in the connection wait group. It fails once the
// server is shutting down or before it started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.serving || s.draining {
		return false
	}
	s.wg.Add(1)
	return true
}

// run drives one connection from registration to teardown.
func (s *Server) run(ctx context.Context, t Transport) {
	session := uuid.NewString()
	log := s.log.With("session", session, "remote", t.RemoteAddr(), "transport", t.Kind())

	c := &connection{
		session:   session,
		transport: t,
		reg:       s.reg,
		done:      make(chan struct{}),
	}
	id, err := s.reg.Register(c)
	if err != nil {
		log.Error("register connection", "error", err)
		_ = t.Close()
		return
	}
	c.id = id
	c.log = log.With("conn_id", id)

	engine := s.newEngine()
	if engine == nil {
		c.log.Error("engine factory returned nil")
		s.reg.Disconnect(id)
		_ = t.Close()
		return
	}
	c.engine = engine

	metrics.IncCounter(metrics.ConnectionsTotal, t.Kind())
	metrics.AddGauge(metrics.ConnectionsActive, 1, t.Kind())

	if err := engine.Start(ctx, id, s.reg); err != nil {
		c.log.Error("start engine", "error", err)
		c.teardown()
		return
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	draining := s.draining
	s.mu.Unlock()
	if draining {
		_ = t.Close()
	}

	c.log.Info("connection opened")
	s.sched.serve(c)

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// shutdown closes every transport, waits for all connections to finish and
// stops the scheduler.
func (s *Server) shutdown() {
	s.mu.Lock()
	s.draining = true
	for c := range s.conns {
		_ = c.transport.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.sched.stop()

	s.mu.Lock()
	s.serving = false
	s.ln = nil
	s.mu.Unlock()
}
