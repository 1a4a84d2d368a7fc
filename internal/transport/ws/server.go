package ws

import (
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/world"
)

const (
	defaultQueue = 8
	maxQueue     = 64

	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	pingEvery        = 20 * time.Second
	routeTimeout     = time.Second
)

// CloseBusy is the close code sent to a viewer that connects while another
// session is active.
const CloseBusy = websocket.CloseTryAgainLater

// Server bridges one viewer at a time to the world: STATE frames out, CMD
// messages in.
type Server struct {
	world *world.World
	log   logrus.FieldLogger

	upgrader websocket.Upgrader
	active   atomic.Bool

	sessions atomic.Uint64
	rejected atomic.Uint64
}

func NewServer(w *world.World, logger logrus.FieldLogger) *Server {
	if logger == nil {
		l := logrus.New()
		l.Out = io.Discard
		logger = l
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Active reports whether a viewer session is attached.
func (s *Server) Active() bool { return s.active.Load() }

// Sessions counts viewer sessions accepted since start.
func (s *Server) Sessions() uint64 { return s.sessions.Load() }

// Rejected counts CMD messages answered with ERROR.
func (s *Server) Rejected() uint64 { return s.rejected.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.active.CompareAndSwap(false, true) {
			_ = writeJSON(conn, errorMsg("", protocol.ErrBusy, "another viewer is attached"))
			closeWith(conn, CloseBusy, "busy")
			return
		}
		defer s.active.Store(false)

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.sessions.Add(1)
		log := s.log.WithField("session", sessionID)
		log.Info("viewer connected")

		gone := make(chan struct{})
		defer close(gone)
		if !s.attach(world.ViewerJoin{ID: sessionID, Out: out, Ack: make(chan struct{}), Done: gone}) {
			log.Warn("world loop did not accept viewer")
			_ = writeJSON(conn, errorMsg("", protocol.ErrInternal, "world not running"))
			closeWith(conn, websocket.CloseInternalServerErr, "world not running")
			return
		}
		defer s.detach(sessionID)

		errs := make(chan []byte, 8)
		done := make(chan struct{})
		writerDone := make(chan struct{})

		go func() {
			defer close(writerDone)
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				var b []byte
				select {
				case <-done:
					return
				case b = <-out:
				case b = <-errs:
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
						_ = conn.Close()
						return
					}
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					_ = conn.Close()
					return
				}
			}
		}()

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if em := s.handleCmd(sessionID, msg); em != nil {
				s.rejected.Add(1)
				log.WithFields(logrus.Fields{"code": em.Code, "ref": em.Ref}).Debug(em.Message)
				b, _ := json.Marshal(em)
				select {
				case errs <- b:
				default:
				}
			}
		}
		close(done)
		<-writerDone
		log.Info("viewer disconnected")
	}
}

// handleCmd routes one client message. A non-nil result is sent back as ERROR.
func (s *Server) handleCmd(sessionID string, msg []byte) *protocol.ErrorMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return errorMsg("", protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.Type != protocol.TypeCmd {
		return errorMsg("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return errorMsg("", protocol.ErrProtoBadRequest, "malformed CMD")
	}
	if cmd.ProtocolVersion != protocol.Version {
		return errorMsg(cmd.ID, protocol.ErrProtoVersion, "unsupported protocol_version")
	}
	if err := protocol.ValidateCmd(msg); err != nil {
		return errorMsg(cmd.ID, protocol.ErrBadRequest, err.Error())
	}
	select {
	case s.world.Inbox() <- world.CommandEnvelope{Source: sessionID, Ref: cmd.ID, Cmd: cmd.Command}:
		return nil
	default:
		return errorMsg(cmd.ID, protocol.ErrBusy, "command queue full")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, errorMsg("", protocol.ErrProtoBadRequest, "expected HELLO"))
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, errorMsg("", protocol.ErrProtoVersion, "bad protocol_version"))
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, errorMsg("", protocol.ErrProtoBadRequest, err.Error()))
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultQueue
	}
	if maxQ > maxQueue {
		maxQ = maxQueue
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         s.world.ID(),
		WorldParams:     s.world.WorldParams(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	// Current frame right away; the next one arrives with the next tick.
	if frame := s.world.State(); frame != nil {
		if err := writeJSON(conn, frame); err != nil {
			return "", nil
		}
	}
	return sessionID, out
}

// attach hands j to the world loop and waits for the loop to register it.
func (s *Server) attach(j world.ViewerJoin) bool {
	timer := time.NewTimer(routeTimeout)
	defer timer.Stop()
	select {
	case s.world.JoinViewer() <- j:
	case <-timer.C:
		return false
	}
	select {
	case <-j.Ack:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Server) detach(id string) {
	timer := time.NewTimer(routeTimeout)
	defer timer.Stop()
	select {
	case s.world.LeaveViewer() <- id:
	case <-timer.C:
	}
}

func errorMsg(ref, code, message string) *protocol.ErrorMsg {
	return &protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		Code:            code,
		Message:         message,
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
