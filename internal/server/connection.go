package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logserver/internal/response"
	"github.com/akave-ai/logserver/internal/router"
	"github.com/akave-ai/logserver/internal/target"
)

// State is the lifecycle position of one connection.
type State int32

const (
	StateAccepted State = iota
	StateReading
	StateRouting
	StateResponding
	StateClosed
	StateDeadlineExpired
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateReading:
		return "READING"
	case StateRouting:
		return "ROUTING"
	case StateResponding:
		return "RESPONDING"
	case StateClosed:
		return "CLOSED"
	case StateDeadlineExpired:
		return "DEADLINE_EXPIRED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handler turns one request into one response.
type Handler interface {
	Route(ctx context.Context, req router.Request) *response.Response
}

type ConnConfig struct {
	// Identity is sent in the Server header of every response.
	Identity string
	// Deadline bounds the whole life of a connection. When it fires the
	// socket is closed wherever the connection is.
	Deadline     time.Duration
	MaxBodyBytes int64
	// MaxHeaderBytes caps the request line and headers. Zero means
	// DefaultMaxHeaderBytes.
	MaxHeaderBytes int64
}

const (
	DefaultMaxHeaderBytes = 64 << 10

	// headerSlack is read past MaxHeaderBytes so a request that ends just
	// over the limit still parses; net/http pads its limit the same way.
	headerSlack = 4096

	// After a rejected read the client may still be sending. Draining a
	// bounded amount before close keeps the kernel from answering with a
	// reset that discards the response.
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10
)

// LogServer serves the log protocol: every accepted connection carries
// exactly one request and receives exactly one response.
type LogServer struct {
	cfg      ConnConfig
	handler  Handler
	logger   zerolog.Logger
	stats    *Stats
	newRelic *newrelic.Application
	wg       sync.WaitGroup

	// onState observes every transition; used by tests.
	onState func(id string, s State)
}

func NewLogServer(cfg ConnConfig, handler Handler, logger zerolog.Logger, stats *Stats, app *newrelic.Application) *LogServer {
	if stats == nil {
		stats = NewStats()
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	return &LogServer{
		cfg:      cfg,
		handler:  handler,
		logger:   logger.With().Str("component", "logserver").Logger(),
		stats:    stats,
		newRelic: app,
	}
}

// Serve accepts connections on ln until ctx is cancelled or ln fails. It
// waits for in-flight connections, each bounded by the deadline, before
// returning.
func (s *LogServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.logger.Info().Str("addr", ln.Addr().String()).Dur("deadline", s.cfg.Deadline).Msg("accepting connections")

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("accept")
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, c)
		}()
	}
}

// connection is owned by the goroutine serving it. state is atomic because
// the deadline timer moves it from another goroutine.
type connection struct {
	id    string
	c     net.Conn
	state atomic.Int32
	srv   *LogServer
}

// advance moves to next unless the deadline already fired.
func (cn *connection) advance(next State) bool {
	for {
		cur := State(cn.state.Load())
		if cur == StateDeadlineExpired || cur == StateClosed {
			return false
		}
		if cn.state.CompareAndSwap(int32(cur), int32(next)) {
			if cn.srv.onState != nil {
				cn.srv.onState(cn.id, next)
			}
			return true
		}
	}
}

func (s *LogServer) serveConn(parent context.Context, c net.Conn) {
	start := time.Now()
	cn := &connection{id: uuid.NewString(), c: c, srv: s}
	s.stats.accepted.Add(1)

	log := s.logger.With().Str("conn_id", cn.id).Str("remote", c.RemoteAddr().String()).Logger()
	ctx, cancel := context.WithTimeout(parent, s.cfg.Deadline)
	defer cancel()
	ctx = log.WithContext(router.WithConnID(ctx, cn.id))

	deadline := time.AfterFunc(s.cfg.Deadline, func() {
		if cn.advance(StateDeadlineExpired) {
			s.stats.expired.Add(1)
			c.Close()
		}
	})

	txn := s.newRelic.StartTransaction("connection")
	defer txn.End()

	if s.onState != nil {
		s.onState(cn.id, StateAccepted)
	}

	var resp *response.Response
	var req router.Request
	var readErr error
	if cn.advance(StateReading) {
		req, readErr = s.readRequest(c)
		if readErr != nil {
			resp = readFailure(readErr)
			log.Debug().Err(readErr).Msg("read request")
		} else if cn.advance(StateRouting) {
			txn.SetName(req.Method + " " + routeName(req.Target))
			resp = s.handler.Route(ctx, req)
		}
	}

	var writeErr error
	if resp != nil {
		defer resp.Close()
		if cn.advance(StateResponding) {
			writeErr = s.writeResponse(c, resp)
		}
	}

	// Half-close so the client sees EOF after the response, then release
	// the timer and the socket.
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	deadline.Stop()
	if readErr != nil && State(cn.state.Load()) == StateResponding {
		linger(c)
	}
	c.Close()

	if !cn.advance(StateClosed) {
		log.Warn().Str("method", req.Method).Str("target", req.Target).Dur("elapsed", time.Since(start)).
			Msg("deadline expired, connection dropped")
		txn.NoticeError(errors.New("connection deadline expired"))
		return
	}
	if readErr != nil {
		s.stats.readFailed.Add(1)
	}

	status := 0
	if resp != nil {
		status = resp.Status
		txn.AddAttribute("httpStatus", status)
		if status >= http.StatusInternalServerError {
			txn.NoticeError(fmt.Errorf("status %d", status))
		}
	}
	if writeErr != nil {
		s.stats.writeFailed.Add(1)
		log.Warn().Err(writeErr).Int("status", status).Msg("write response")
		return
	}
	s.stats.responded.Add(1)
	s.stats.status(status)
	log.Info().
		Str("method", req.Method).
		Str("target", req.Target).
		Int("status", status).
		Int64("bytes", resp.Length).
		Dur("elapsed", time.Since(start)).
		Msg("request served")
}

// readRequest reads one request and its complete body. The request line
// and headers are read through a limit that is lifted once they parse; the
// body has its own limit.
func (s *LogServer) readRequest(c net.Conn) (router.Request, error) {
	lr := &io.LimitedReader{R: c, N: s.cfg.MaxHeaderBytes + headerSlack}
	hr, err := http.ReadRequest(bufio.NewReader(lr))
	if err != nil {
		if lr.N <= 0 {
			return router.Request{}, &headerTooLargeError{limit: s.cfg.MaxHeaderBytes}
		}
		return router.Request{}, err
	}
	defer hr.Body.Close()
	lr.N = math.MaxInt64

	if hr.Header.Get("Expect") == "100-continue" && hr.ContentLength != 0 {
		if _, err := io.WriteString(c, "HTTP/1.1 100 Continue\r\n\r\n"); err != nil {
			return router.Request{}, err
		}
	}

	body, err := io.ReadAll(io.LimitReader(hr.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		return router.Request{}, err
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return router.Request{}, &bodyTooLargeError{limit: s.cfg.MaxBodyBytes}
	}
	return router.Request{
		Method:        hr.Method,
		Target:        hr.RequestURI,
		Authorization: hr.Header.Get("Authorization"),
		Body:          body,
	}, nil
}

type headerTooLargeError struct{ limit int64 }

func (e *headerTooLargeError) Error() string {
	return fmt.Sprintf("request headers exceed %d bytes", e.limit)
}

type bodyTooLargeError struct{ limit int64 }

func (e *bodyTooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.limit)
}

// readFailure maps a read error onto the reply: transport failures are
// 500s carrying the low-level error text, everything else is a malformed
// request.
func readFailure(err error) *response.Response {
	var tooLarge *headerTooLargeError
	if errors.As(err, &tooLarge) {
		return response.Text(http.StatusRequestHeaderFieldsTooLarge, err.Error())
	}
	if isTransportError(err) {
		return response.ServerError(err.Error())
	}
	return response.BadRequest(err.Error())
}

// linger discards what the client is still sending, bounded in bytes and
// time.
func linger(c net.Conn) {
	if err := c.SetReadDeadline(time.Now().Add(lingerTimeout)); err != nil {
		return
	}
	_, _ = io.CopyN(io.Discard, c, lingerBytes)
}

func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func (s *LogServer) writeResponse(c net.Conn, resp *response.Response) error {
	header := make(http.Header, 2)
	header.Set("Server", s.cfg.Identity)
	header.Set("Content-Type", resp.ContentType)

	hr := &http.Response{
		StatusCode:    resp.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(resp.Body),
		ContentLength: resp.Length,
		Close:         true,
	}
	bw := bufio.NewWriter(c)
	if err := hr.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// routeName collapses a target into a low-cardinality transaction name.
func routeName(raw string) string {
	t, err := target.Parse(raw)
	if err != nil {
		return "invalid"
	}
	switch t.User {
	case "":
		return "/"
	case router.PathPublicKey, router.PathAddUser, router.PathIndex:
		return "/" + t.User
	}
	return "/:user"
}
