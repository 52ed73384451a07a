// Package channel owns one live websocket connection to the brokerage's
// streaming endpoint and provides correlated request/response primitives over
// its text framing:
//
//	connect <version> <jsonPayload>
//	sub <id> <jsonPayload>
//	unsub <id>
//
// A session serves exactly one logical task. The protocol has no structured
// correlation beyond the request id echoed in responses, so the session keeps
// strictly one request in flight at a time: every Subscribe awaits exactly one
// response frame, and every subscribe is paired with an Unsubscribe that
// awaits exactly one acknowledgement before the id is retired. Skipping the
// unsubscribe leaks a live subscription on the server side.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/trsync/config"
	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/metric"
	"github.com/c360/trsync/pkg/retry"
)

// DefaultReadTimeout bounds each await on a response frame
const DefaultReadTimeout = 30 * time.Second

// Config holds session configuration
type Config struct {
	URL             string
	ProtocolVersion int
	Client          config.ClientInfo
	Retry           retry.Config
	ReadTimeout     time.Duration
	Logger          *slog.Logger
	Metrics         *metric.Metrics
}

// Session is one connection to the streaming endpoint. Not safe for
// concurrent use: the single-in-flight discipline is part of the protocol
// contract, not just an implementation detail.
type Session struct {
	cfg       Config
	sessionID string
	logger    *slog.Logger
	metrics   *metric.Metrics

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID atomic.Uint64
	closed atomic.Bool
}

// NewSession creates a session for the given endpoint. Connect must be called
// before any subscription.
func NewSession(cfg Config) *Session {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionID := uuid.NewString()
	return &Session{
		cfg:       cfg,
		sessionID: sessionID,
		logger:    logger.With("component", "channel", "session_id", sessionID),
		metrics:   cfg.Metrics,
	}
}

// Connect opens the transport and performs the connect handshake, retrying
// transient failures with backoff. The handshake response is awaited and
// discarded beyond confirming the channel is live.
func (s *Session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return errors.WrapFatal(errors.ErrChannelClosed, "Session", "Connect", "check state")
	}

	attempt := 0
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		attempt++
		if attempt > 1 && s.metrics != nil {
			s.metrics.RetryAttempts.WithLabelValues("connect").Inc()
		}
		return s.connectOnce(ctx)
	})
	if err != nil {
		return errors.WrapTransient(err, "Session", "Connect", "establish channel")
	}

	s.logger.Info("channel connected", "url", s.cfg.URL, "attempts", attempt)
	return nil
}

func (s *Session) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ReadTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	clientJSON, err := json.Marshal(s.cfg.Client)
	if err != nil {
		conn.Close()
		return retry.NonRetryable(fmt.Errorf("encode client descriptor: %w", err))
	}

	handshakeDeadline := time.Now().Add(s.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(handshakeDeadline) {
		handshakeDeadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(handshakeDeadline)
	_ = conn.SetWriteDeadline(handshakeDeadline)

	handshake := fmt.Sprintf("connect %d %s", s.cfg.ProtocolVersion, clientJSON)
	if err := s.sendOn(conn, "connect", handshake); err != nil {
		conn.Close()
		return err
	}

	response, err := s.awaitOn(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", errors.ErrHandshakeFailed, err)
	}
	s.logger.Debug("handshake response", "frame", string(response))

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// NextID allocates the next request id. Ids are strictly increasing per
// session, starting at 1, and never reused.
func (s *Session) NextID() uint64 {
	return s.nextID.Add(1)
}

// Subscribe sends a subscribe frame tagged with id and awaits exactly one
// response frame. The payload is not interpreted here.
func (s *Session) Subscribe(ctx context.Context, id uint64, payload any) ([]byte, error) {
	conn, err := s.liveConn("Subscribe")
	if err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Session", "Subscribe", "encode payload")
	}

	s.applyDeadline(ctx, conn)
	if err := s.sendOn(conn, "sub", fmt.Sprintf("sub %d %s", id, payloadJSON)); err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"Session", "Subscribe", "send frame")
	}

	response, err := s.awaitOn(conn)
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"Session", "Subscribe", "await response")
	}

	s.logger.Debug("subscription answered", "request_id", id, "bytes", len(response))
	return response, nil
}

// Unsubscribe sends the unsubscribe frame for id and awaits one
// acknowledgement, retiring the id. Mandatory bookkeeping for every
// subscribe, even when the process is about to exit.
func (s *Session) Unsubscribe(ctx context.Context, id uint64) error {
	conn, err := s.liveConn("Unsubscribe")
	if err != nil {
		return err
	}

	s.applyDeadline(ctx, conn)
	if err := s.sendOn(conn, "unsub", fmt.Sprintf("unsub %d", id)); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrUnsubscribeFailed, err),
			"Session", "Unsubscribe", "send frame")
	}

	if _, err := s.awaitOn(conn); err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrUnsubscribeFailed, err),
			"Session", "Unsubscribe", "await ack")
	}

	return nil
}

// Request performs one correlated subscribe/await/unsubscribe round trip and
// returns the raw response frame. Transient failures are retried with
// backoff; each attempt allocates a fresh request id so that ids stay
// strictly increasing and are never reused across attempts.
func (s *Session) Request(ctx context.Context, payload any) ([]byte, error) {
	attempt := 0
	return retry.DoWithResult(ctx, s.cfg.Retry, func() ([]byte, error) {
		attempt++
		if attempt > 1 && s.metrics != nil {
			s.metrics.RetryAttempts.WithLabelValues("subscribe").Inc()
		}

		response, err := s.requestOnce(ctx, payload)
		if err != nil && !errors.IsTransient(err) {
			return nil, retry.NonRetryable(err)
		}
		return response, err
	})
}

func (s *Session) requestOnce(ctx context.Context, payload any) ([]byte, error) {
	id := s.NextID()
	response, err := s.Subscribe(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	if err := s.Unsubscribe(ctx, id); err != nil {
		return nil, err
	}
	return response, nil
}

// Close shuts the transport down. Idempotent; no frame may be sent after.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Best-effort close frame, then tear down the transport
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	err := conn.Close()
	s.logger.Debug("channel closed")
	return err
}

func (s *Session) liveConn(method string) (*websocket.Conn, error) {
	if s.closed.Load() {
		return nil, errors.WrapFatal(errors.ErrChannelClosed, "Session", method, "check state")
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Session", method, "check connection")
	}
	return conn, nil
}

func (s *Session) applyDeadline(ctx context.Context, conn *websocket.Conn) {
	deadline := time.Now().Add(s.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
}

func (s *Session) sendOn(conn *websocket.Conn, kind, frameText string) error {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frameText)); err != nil {
		return fmt.Errorf("write %s frame: %w", kind, err)
	}
	if s.metrics != nil {
		s.metrics.FramesSent.WithLabelValues(kind).Inc()
	}
	return nil
}

func (s *Session) awaitOn(conn *websocket.Conn) ([]byte, error) {
	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if s.metrics != nil {
		s.metrics.FramesReceived.Inc()
	}
	return message, nil
}
