// Package hub owns every live websocket session. All frame writes go through
// the registry; no other component touches a socket handle.
package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/rollout"
	"github.com/paperminder/paperminder/internal/wire"
	"gorm.io/gorm"
)

// Errors surfaced by the hub.
var (
	ErrRecipientNotConnected = errors.New("recipient has no active session")
	ErrInvalidBitmap         = errors.New("invalid bitmap frame")
	ErrSendFailed            = errors.New("socket write failed")
)

// Config carries the tunables the hub reads at startup.
type Config struct {
	BaseURL       string
	SendTimeout   time.Duration
	MaxFrameBytes int64
}

// Hub is the connection registry: identity (user or printer UUID) to the set
// of active sessions. Multiple concurrent sessions per identity are allowed.
type Hub struct {
	cfg Config

	printers  *database.PrinterService
	messages  *database.MessageService
	firmware  *database.FirmwareService
	rollouts  *database.RolloutService
	updates   *database.UpdateService
	evaluator *rollout.Evaluator

	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Session]struct{}
}

// NewHub creates a hub over the given database handle.
func NewHub(db *gorm.DB, cfg Config) *Hub {
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = 64 * 1024
	}
	return &Hub{
		cfg:       cfg,
		printers:  database.NewPrinterService(db),
		messages:  database.NewMessageService(db),
		firmware:  database.NewFirmwareService(db),
		rollouts:  database.NewRolloutService(db),
		updates:   database.NewUpdateService(db),
		evaluator: rollout.NewEvaluator(db, cfg.BaseURL),
		sessions:  make(map[uuid.UUID]map[*Session]struct{}),
	}
}

// Attach registers a session under an identity. For printer sessions the
// online flag is persisted best-effort outside the lock; the in-memory view
// stays authoritative.
func (h *Hub) Attach(identity uuid.UUID, s *Session) {
	h.mu.Lock()
	set, ok := h.sessions[identity]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[identity] = set
	}
	set[s] = struct{}{}
	s.identity = identity
	h.mu.Unlock()

	if s.isPrinter {
		if err := h.printers.SetConnectionStatus(identity, true, s.remoteIP); err != nil {
			logging.WarnWithComponent(logging.ComponentHub, "Failed to persist printer online",
				"printer", identity, "error", err)
		}
	}

	logging.DebugWithComponent(logging.ComponentHub, "Session attached",
		"identity", identity, "printer", s.isPrinter)
}

// Detach removes a session. When the last session for a printer identity
// goes away the printer is marked offline, again best-effort.
func (h *Hub) Detach(identity uuid.UUID, s *Session) {
	h.mu.Lock()
	last := false
	if set, ok := h.sessions[identity]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, identity)
			last = true
		}
	}
	h.mu.Unlock()

	if last && s.isPrinter {
		if err := h.printers.SetConnectionStatus(identity, false, ""); err != nil {
			logging.WarnWithComponent(logging.ComponentHub, "Failed to persist printer offline",
				"printer", identity, "error", err)
		}
	}

	logging.DebugWithComponent(logging.ComponentHub, "Session detached",
		"identity", identity, "last", last)
}

// rekey moves a session from its connect-time identity to the printer
// identity announced in its subscription frame.
func (h *Hub) rekey(s *Session, printerID uuid.UUID) {
	old := s.identity

	h.mu.Lock()
	if set, ok := h.sessions[old]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, old)
		}
	}
	h.mu.Unlock()

	s.isPrinter = true
	h.Attach(printerID, s)
}

// Broadcast delivers a frame to every active session for an identity and
// returns the number of successful deliveries.
func (h *Hub) Broadcast(identity uuid.UUID, frame wire.Frame) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[identity]))
	for s := range h.sessions[identity] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if err := s.WriteFrame(frame); err != nil {
			logging.WarnWithComponent(logging.ComponentHub, "Broadcast write failed",
				"identity", identity, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// IsConnected reports whether an identity has at least one active session.
func (h *Hub) IsConnected(identity uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[identity]) > 0
}

// SessionCount returns the number of active sessions for an identity.
func (h *Hub) SessionCount(identity uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[identity])
}

// ConnectedPrinterIDs returns the identities of all connected printer
// sessions, for scheduler re-evaluation.
func (h *Hub) ConnectedPrinterIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []uuid.UUID
	for identity, set := range h.sessions {
		for s := range set {
			if s.isPrinter {
				ids = append(ids, identity)
				break
			}
		}
	}
	return ids
}

// EvaluateConnected re-runs the rollout evaluator for every connected
// printer, pushing firmware offers that became eligible since they
// subscribed. Called by the scheduler tick.
func (h *Hub) EvaluateConnected(now time.Time) {
	for _, id := range h.ConnectedPrinterIDs() {
		printer, err := h.printers.GetByID(id)
		if err != nil {
			logging.WarnWithComponent(logging.ComponentScheduler, "Connected printer missing from store",
				"printer", id, "error", err)
			continue
		}
		frame, err := h.evaluator.Evaluate(printer, now)
		if err != nil {
			logging.ErrorWithComponent(logging.ComponentScheduler, "Rollout evaluation failed",
				"printer", id, "error", err)
			continue
		}
		if frame == nil {
			continue
		}
		if h.Broadcast(id, frame) > 0 {
			logging.InfoWithComponent(logging.ComponentScheduler, "Pushed firmware update",
				"printer", id, "version", frame.Version)
		}
	}
}

// Shutdown closes every active session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*Session
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.sessions = make(map[uuid.UUID]map[*Session]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

// Process-wide hub instance with an explicit init/shutdown pair; tests
// construct their own hubs instead.
var globalHub *Hub

// InitializeHub sets up the global hub instance.
func InitializeHub(db *gorm.DB, cfg Config) *Hub {
	globalHub = NewHub(db, cfg)
	return globalHub
}

// GetHub returns the global hub instance.
func GetHub() *Hub {
	return globalHub
}

// ShutdownHub tears down the global hub instance.
func ShutdownHub() {
	if globalHub != nil {
		globalHub.Shutdown()
		globalHub = nil
	}
}
