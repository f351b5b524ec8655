// Package relay bridges an authenticated client websocket to the
// collaboration server, forwarding frames verbatim in both directions.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Side names the endpoint that ended a session.
type Side string

const (
	SideClient   Side = "client"
	SideUpstream Side = "upstream"
	SideServer   Side = "server"
)

// maxReasonLen is the longest close reason that fits a control frame.
const maxReasonLen = 123

// Termination records how a session ended. Code and Reason are what the
// surviving endpoint was sent; for SideServer both endpoints receive them.
type Termination struct {
	Side   Side
	Code   int
	Reason string
	// Err is the transport error that ended the session, nil on a clean close.
	Err error
}

// Config bounds a single session.
type Config struct {
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Session owns one client connection and one upstream connection. Each
// direction runs its own pump; whichever stops first closes both ends.
type Session struct {
	ID       string
	client   *websocket.Conn
	upstream *websocket.Conn
	cfg      Config

	once sync.Once
	term Termination
}

func NewSession(id string, client, upstream *websocket.Conn, cfg Config) *Session {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return &Session{
		ID:       id,
		client:   client,
		upstream: upstream,
		cfg:      cfg,
	}
}

// Run pumps frames until either endpoint closes or ctx is cancelled, and
// returns once both pumps have stopped. Cancelling ctx closes both
// endpoints with 1001.
func (s *Session) Run(ctx context.Context) Termination {
	if s.cfg.MaxMessageSize > 0 {
		s.client.SetReadLimit(s.cfg.MaxMessageSize)
		s.upstream.SetReadLimit(s.cfg.MaxMessageSize)
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		s.shutdown(Termination{
			Side:   SideServer,
			Code:   websocket.CloseGoingAway,
			Reason: "server shutting down",
			Err:    context.Cause(ctx),
		})
	})
	defer stop()

	g.Go(func() error { return s.pump(s.client, s.upstream, SideClient) })
	g.Go(func() error { return s.pump(s.upstream, s.client, SideUpstream) })
	_ = g.Wait()

	return s.term
}

// pump forwards frames from src to dst one at a time. It always returns a
// non-nil error so the group context is cancelled as soon as one
// direction stops.
func (s *Session) pump(src, dst *websocket.Conn, from Side) error {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			s.shutdown(readTermination(from, err))
			return err
		}

		_ = dst.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
		if err := dst.WriteMessage(msgType, data); err != nil {
			s.shutdown(writeTermination(from, err))
			return err
		}
	}
}

// shutdown records the first termination and closes both connections.
// Close and WriteControl are safe to call alongside a running pump.
func (s *Session) shutdown(term Termination) {
	s.once.Do(func() {
		s.term = term
		deadline := time.Now().Add(s.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(term.Code, truncateReason(term.Reason))

		switch term.Side {
		case SideClient:
			_ = s.upstream.WriteControl(websocket.CloseMessage, msg, deadline)
		case SideUpstream:
			_ = s.client.WriteControl(websocket.CloseMessage, msg, deadline)
		default:
			_ = s.client.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = s.upstream.WriteControl(websocket.CloseMessage, msg, deadline)
		}

		_ = s.client.Close()
		_ = s.upstream.Close()
	})
}

// readTermination maps the error that ended reads on one side to the close
// sent to the other side.
func readTermination(from Side, err error) Termination {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		code := ce.Code
		if !Sendable(code) {
			code = websocket.CloseNormalClosure
		}
		return Termination{Side: from, Code: code, Reason: ce.Text}
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		return Termination{Side: from, Code: websocket.CloseMessageTooBig, Reason: "message too big", Err: err}
	}

	if from == SideUpstream {
		return Termination{Side: from, Code: websocket.CloseInternalServerErr, Reason: "upstream connection lost", Err: err}
	}
	return Termination{Side: from, Code: websocket.CloseNormalClosure, Reason: "client disconnected", Err: err}
}

// writeTermination handles a failed forward: the destination, not the
// source, is the side that went away.
func writeTermination(from Side, err error) Termination {
	if from == SideClient {
		return Termination{Side: SideUpstream, Code: websocket.CloseInternalServerErr, Reason: "upstream connection lost", Err: err}
	}
	return Termination{Side: SideClient, Code: websocket.CloseNormalClosure, Reason: "client disconnected", Err: err}
}

// Sendable reports whether code may appear in a close frame on the wire.
func Sendable(code int) bool {
	switch code {
	case websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseProtocolError,
		websocket.CloseUnsupportedData,
		websocket.CloseInvalidFramePayloadData,
		websocket.ClosePolicyViolation,
		websocket.CloseMessageTooBig,
		websocket.CloseMandatoryExtension,
		websocket.CloseInternalServerErr,
		websocket.CloseServiceRestart,
		websocket.CloseTryAgainLater:
		return true
	}
	return code >= 3000 && code <= 4999
}

// CloseWith sends a close frame and closes conn. Used to reject a client
// before any upstream exists.
func CloseWith(conn *websocket.Conn, code int, reason string, wait time.Duration) {
	msg := websocket.FormatCloseMessage(code, truncateReason(reason))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
	_ = conn.Close()
}

func truncateReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
