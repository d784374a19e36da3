// Package control drives the reliable side of the protocol: one session per
// accepted TCP connection.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"golos/server/internal/core"
	"golos/server/internal/metrics"
	"golos/server/internal/protocol"
)

const writeTimeout = 5 * time.Second

// Session is the state machine for one control connection: await-join,
// active, closed.
type Session struct {
	id       string
	conn     net.Conn
	reg      *core.Registry
	counters *metrics.Counters
	log      *slog.Logger
}

// NewSession wraps an accepted control connection.
func NewSession(conn net.Conn, reg *core.Registry, counters *metrics.Counters, log *slog.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		conn:     conn,
		reg:      reg,
		counters: counters,
		log:      log.With("remote", conn.RemoteAddr().String()),
	}
}

// ID returns the session's registry handle.
func (s *Session) ID() string { return s.id }

// Close terminates the connection; the serving goroutine unwinds through
// its normal exit path.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Serve runs the session until the peer disconnects, sends leave, or the
// connection is closed from outside. The registry entry is released on
// every exit path.
func (s *Session) Serve() {
	defer s.conn.Close()

	sess, err := s.handshake()
	if err != nil {
		s.log.Debug("handshake rejected", "err", err)
		return
	}
	s.log = s.log.With("name", sess.Name, "room", sess.Room)
	s.counters.Joins.Add(1)

	// A single writer drains the send queue, preserving delivery order for
	// this connection. Leave closes the queue, which ends the pump.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.writePump(sess.Send)
	}()

	defer func() {
		if departed, ok := s.reg.Leave(s.id); ok {
			s.counters.Leaves.Add(1)
			s.log.Info("session closed", "had_media", departed.HadMedia)
		}
		<-pumpDone
	}()

	s.reg.SendTo(s.id, protocol.EncodeJoinAck(sess.Room))

	buf := make([]byte, protocol.ControlReadLimit)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("control read failed", "err", err)
			}
			return
		}
		var cmd protocol.Command
		if err := json.Unmarshal(buf[:n], &cmd); err != nil {
			s.log.Debug("control decode failed", "err", err)
			return
		}
		if !s.handleCommand(sess, cmd) {
			return
		}
	}
}

// handshake reads the first message, which must be a join. Rejections are
// written directly since no send queue exists yet.
func (s *Session) handshake() (*core.Session, error) {
	buf := make([]byte, protocol.ControlReadLimit)
	n, err := s.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read join: %w", err)
	}

	var cmd protocol.Command
	if err := json.Unmarshal(buf[:n], &cmd); err != nil {
		s.writeDirect(protocol.EncodeError(protocol.ReasonBadJSON))
		return nil, fmt.Errorf("decode join: %w", err)
	}
	if cmd.Type != protocol.TypeJoin {
		s.writeDirect(protocol.EncodeError(protocol.ReasonJoinExpected))
		return nil, fmt.Errorf("first message type %q, want join", cmd.Type)
	}
	if err := protocol.ValidateName(cmd.User); err != nil {
		s.writeDirect(protocol.EncodeError(protocol.ReasonBadName))
		return nil, fmt.Errorf("join name: %w", err)
	}

	room := cmd.Room
	if room == "" {
		room = protocol.DefaultRoom
	}
	sess, err := s.reg.Join(s.id, cmd.User, room)
	if err != nil {
		s.writeDirect(protocol.EncodeError(protocol.ReasonNameTaken))
		return nil, err
	}
	return sess, nil
}

// handleCommand processes one message in the active state. It returns false
// when the session should close.
func (s *Session) handleCommand(sess *core.Session, cmd protocol.Command) bool {
	switch cmd.Type {
	case protocol.TypeText:
		s.counters.TextMessages.Add(1)
		s.reg.Broadcast(sess.Room, s.id, protocol.EncodeText(sess.Name, cmd.Payload))

	case protocol.TypeListRooms:
		s.reg.SendTo(s.id, protocol.EncodeRoomList(s.reg.Rooms()))

	case protocol.TypeListUsers:
		s.reg.SendTo(s.id, protocol.EncodeUserList(s.reg.Members(sess.Room)))

	case protocol.TypeLeave:
		return false

	default:
		// Unknown types are ignored; the protocol reserves them.
		s.log.Debug("ignoring control message", "type", cmd.Type)
	}
	return true
}

func (s *Session) writePump(send <-chan []byte) {
	for frame := range send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := s.conn.Write(frame); err != nil {
			s.log.Debug("control write failed", "err", err)
			return
		}
	}
}

func (s *Session) writeDirect(frame []byte) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = s.conn.Write(frame)
}
