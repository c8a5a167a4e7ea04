// Package dispatcher serves the binary bean protocol: it accepts connections,
// reads one request per connection and routes it to the authentication,
// naming or invocation handler.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/morezero/beanserver/pkg/callctx"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/naming"
	"github.com/morezero/beanserver/pkg/protocol"
)

const logPrefix = "dispatcher:server"

const (
	DefaultWorkers      = 16
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("dispatcher: server closed")

// ServerParams configures a Server. Authenticator defaults to AllowAll;
// Resolver may be nil, in which case non-deployment paths are not found.
type ServerParams struct {
	Registry      *deployment.Registry
	Resolver      naming.Resolver
	Authenticator Authenticator
	Workers       int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server is the protocol server. Each worker owns one call context.
type Server struct {
	registry     *deployment.Registry
	resolver     naming.Resolver
	auth         Authenticator
	workers      int
	readTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    chan net.Conn
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a Server.
func NewServer(params ServerParams) *Server {
	auth := params.Authenticator
	if auth == nil {
		auth = AllowAll{}
	}
	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	readTimeout := params.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	writeTimeout := params.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Server{
		registry:     params.Registry,
		resolver:     params.Resolver,
		auth:         auth,
		workers:      workers,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Serve accepts connections on ln until Shutdown. It always returns a non-nil
// error; after Shutdown the error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s - already serving on %s", logPrefix, s.listener.Addr())
	}
	s.listener = ln
	s.conns = make(chan net.Conn)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(s.conns)
	}
	s.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Listening on %s with %d workers", logPrefix, ln.Addr(), s.workers))
	defer close(s.conns)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				slog.Warn(fmt.Sprintf("%s - accept: %v", logPrefix, err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("%s - accept: %w", logPrefix, err)
		}
		s.conns <- conn
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight requests or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s - shutdown: %w", logPrefix, ctx.Err())
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) worker(conns <-chan net.Conn) {
	defer s.wg.Done()
	cc := callctx.New()
	ctx := callctx.NewContext(context.Background(), cc)
	for conn := range conns {
		s.serveConn(ctx, cc, conn)
	}
}

// serveConn answers one request and closes conn. Malformed frames are
// dropped without a response.
func (s *Server) serveConn(ctx context.Context, cc *callctx.CallContext, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - panic serving %s: %v", logPrefix, conn.RemoteAddr(), r))
		}
		if !cc.IsEmpty() {
			slog.Warn(fmt.Sprintf("%s - call context left populated; resetting", logPrefix))
			cc.Reset()
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	req, err := protocol.ReadRequest(conn)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping %s: %v", logPrefix, conn.RemoteAddr(), err))
		return
	}

	code, payload, err := s.Dispatch(ctx, req)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping %s %s request: %v", logPrefix, conn.RemoteAddr(), req.Type, err))
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := protocol.WriteResponse(conn, code, payload); err != nil {
		slog.Warn(fmt.Sprintf("%s - write %s to %s: %v", logPrefix, code, conn.RemoteAddr(), err))
	}
}

// Dispatch routes a decoded request to its handler. An error means the
// request payload was malformed and no response should be written.
func (s *Server) Dispatch(ctx context.Context, req *protocol.Request) (protocol.ResponseCode, interface{}, error) {
	slog.Debug(fmt.Sprintf("%s - type=%s", logPrefix, req.Type))

	switch req.Type {
	case protocol.RequestAuth:
		var in protocol.AuthRequest
		if err := req.Decode(&in); err != nil {
			return 0, nil, err
		}
		code, payload := s.handleAuth(ctx, &in)
		return code, payload, nil
	case protocol.RequestJNDI:
		var in protocol.NamingRequest
		if err := req.Decode(&in); err != nil {
			return 0, nil, err
		}
		code, payload := s.handleNaming(ctx, &in)
		return code, payload, nil
	case protocol.RequestEJB:
		var in protocol.InvokeRequest
		if err := req.Decode(&in); err != nil {
			return 0, nil, err
		}
		if err := in.Validate(); err != nil {
			return 0, nil, err
		}
		code, payload := s.handleInvoke(ctx, &in)
		return code, payload, nil
	default:
		return 0, nil, fmt.Errorf("%s - %w: request type %d", logPrefix, protocol.ErrMalformedFrame, byte(req.Type))
	}
}

func (s *Server) handleAuth(ctx context.Context, req *protocol.AuthRequest) (protocol.ResponseCode, interface{}) {
	identity, err := s.auth.Authenticate(ctx, req.Principal, req.Credential)
	if err != nil {
		slog.Info(fmt.Sprintf("%s - auth denied for %q: %v", logPrefix, req.Principal, err))
		return protocol.AuthDenied, protocol.AuthDeniedPayload{Reason: "invalid credentials"}
	}
	return protocol.AuthGranted, protocol.AuthGrantedPayload{Identity: identity}
}
