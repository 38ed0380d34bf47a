package hub

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/wire"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Consecutive malformed frames tolerated before the session is closed.
	maxMalformedFrames = 5
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS layer; printers have no
	// Origin header at all.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session is one websocket connection. Frame writes are serialized by a
// per-session mutex owned by the registry; reads happen on a single
// goroutine.
type Session struct {
	hub  *Hub
	conn *websocket.Conn

	identity  uuid.UUID // connect-time identity, re-keyed on subscription
	isPrinter bool
	remoteIP  string

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once

	frameCount     int
	malformedCount int
}

func newSession(h *Hub, conn *websocket.Conn, identity uuid.UUID, remoteIP string) *Session {
	return &Session{
		hub:      h,
		conn:     conn,
		identity: identity,
		remoteIP: remoteIP,
	}
}

// WriteFrame marshals and writes one frame under the session write lock with
// a bounded deadline. A timeout counts as delivery failure.
func (s *Session) WriteFrame(frame wire.Frame) error {
	if s.closed.Load() {
		return ErrSendFailed
	}

	data, err := wire.Marshal(frame)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.SendTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Close tears the socket down exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.conn.Close()
	})
}

func (s *Session) sendStatus(level, message string) {
	if err := s.WriteFrame(wire.NewStatus(level, message)); err != nil {
		logging.DebugWithComponent(logging.ComponentHub, "Status write failed",
			"identity", s.identity, "error", err)
	}
}

// HandleWebSocket upgrades GET /ws/:id and runs the session loop until the
// peer goes away. The role (user vs printer) is inferred from the first
// frame.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	identity, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid identity UUID"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.WarnWithComponent(logging.ComponentHub, "WebSocket upgrade failed",
			"identity", identity, "error", err)
		return
	}

	s := newSession(h, conn, identity, c.ClientIP())
	h.Attach(identity, s)
	s.readLoop()
}

// readLoop reads one framed JSON message at a time and dispatches by kind.
// On read error or peer close it runs teardown: detach from the registry,
// which persists online=false when this was the printer's last session.
func (s *Session) readLoop() {
	defer func() {
		s.hub.Detach(s.identity, s)
		s.Close()
	}()

	s.conn.SetReadLimit(s.hub.cfg.MaxFrameBytes + 1024)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(stopPing)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.DebugWithComponent(logging.ComponentHub, "Session read error",
					"identity", s.identity, "error", err)
			}
			return
		}

		s.frameCount++
		frame, err := wire.Parse(data, s.hub.cfg.MaxFrameBytes)
		if err != nil {
			if errors.Is(err, wire.ErrFrameTooLarge) {
				s.sendStatus(wire.LevelError, "frame exceeds size limit")
				return
			}
			s.malformedCount++
			s.sendStatus(wire.LevelError, err.Error())
			if s.malformedCount >= maxMalformedFrames {
				logging.WarnWithComponent(logging.ComponentHub, "Closing session after repeated malformed frames",
					"identity", s.identity)
				return
			}
			continue
		}
		s.malformedCount = 0

		s.dispatch(frame)
	}
}

func (s *Session) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.SendTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *Session) dispatch(frame wire.Frame) {
	switch f := frame.(type) {
	case *wire.Subscription:
		// The handshake must open the session; anything else already marked
		// it as a user session.
		if s.frameCount != 1 || s.isPrinter {
			s.sendStatus(wire.LevelError, "subscription must be the first frame of a session")
			return
		}
		s.handleSubscription(f)

	case *wire.Message:
		s.handleMessage(f)

	case *wire.FirmwareProgress:
		s.requirePrinter(func() { s.hub.handleFirmwareProgress(s.identity, f) })
	case *wire.FirmwareComplete:
		s.requirePrinter(func() { s.hub.handleFirmwareComplete(s.identity, f) })
	case *wire.FirmwareFailed:
		s.requirePrinter(func() { s.hub.handleFirmwareFailed(s.identity, f) })
	case *wire.FirmwareDeclined:
		s.requirePrinter(func() { s.hub.handleFirmwareDeclined(s.identity, f) })

	case *wire.BitmapPrinting:
		logging.InfoWithComponent(logging.ComponentBitmap, "Printer acknowledged bitmap",
			"printer", s.identity, "width", f.Width, "height", f.Height)
	case *wire.BitmapError:
		logging.WarnWithComponent(logging.ComponentBitmap, "Printer reported bitmap error",
			"printer", s.identity, "error", f.Error)

	default:
		s.sendStatus(wire.LevelError, "unsupported frame kind")
	}
}

func (s *Session) requirePrinter(fn func()) {
	if !s.isPrinter {
		s.sendStatus(wire.LevelError, "frame only accepted from printer sessions")
		return
	}
	fn()
}

// handleSubscription runs the printer handshake: upsert printer state,
// re-key the session to the announced printer_id, evaluate rollouts, then
// drain cached messages onto the new session.
func (s *Session) handleSubscription(sub *wire.Subscription) {
	printer, err := s.hub.printers.ApplySubscription(
		sub.PrinterID,
		sub.PrinterName,
		sub.Platform,
		sub.FirmwareVersion,
		sub.AutoUpdateEnabled(),
		sub.UpdateChannel,
		s.remoteIP,
	)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentHub, "Subscription failed",
			"printer", sub.PrinterID, "error", err)
		s.sendStatus(wire.LevelError, "subscription failed")
		return
	}

	s.hub.rekey(s, printer.ID)
	s.sendStatus(wire.LevelInfo, fmt.Sprintf("printer %q subscribed", printer.Name))
	logging.InfoWithComponent(logging.ComponentHub, "Printer subscribed",
		"printer", printer.ID, "platform", printer.Platform, "firmware", printer.FirmwareVersion)

	// Firmware evaluation happens before the cache drain.
	frame, err := s.hub.evaluator.Evaluate(printer, time.Now())
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentRollout, "Evaluation on subscribe failed",
			"printer", printer.ID, "error", err)
	} else if frame != nil {
		// A failed write leaves the attempt pending for the next tick.
		if err := s.WriteFrame(frame); err != nil {
			logging.WarnWithComponent(logging.ComponentRollout, "Firmware push failed",
				"printer", printer.ID, "version", frame.Version, "error", err)
		} else {
			logging.InfoWithComponent(logging.ComponentRollout, "Firmware push sent",
				"printer", printer.ID, "version", frame.Version)
		}
	}

	if err := s.hub.DrainCache(printer.ID, s); err != nil {
		logging.WarnWithComponent(logging.ComponentRouter, "Cache drain aborted",
			"printer", printer.ID, "error", err)
	}
}

func (s *Session) handleMessage(f *wire.Message) {
	err := s.hub.RouteMessage(s.identity, f)
	switch {
	case errors.Is(err, database.ErrPrinterNotFound):
		s.sendStatus(wire.LevelError, fmt.Sprintf("recipient %s not found", f.RecipientID))
	case err != nil:
		logging.ErrorWithComponent(logging.ComponentRouter, "Message routing failed",
			"sender", s.identity, "recipient", f.RecipientID, "error", err)
		s.sendStatus(wire.LevelError, "message could not be delivered")
	}
}
