package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/sanitize"
	"github.com/paperminder/paperminder/internal/wire"
)

// RouteMessage sanitizes, numbers, logs and delivers one text message.
// An offline recipient is not an error: the message is cached silently and
// drained on the printer's next subscription.
func (h *Hub) RouteMessage(senderID uuid.UUID, f *wire.Message) error {
	if _, err := h.printers.GetByID(f.RecipientID); err != nil {
		return err
	}

	body := sanitize.Message(f.Message)
	senderName := sanitize.Name(f.SenderName)

	number, err := h.printers.NextDailyNumber(f.RecipientID)
	if err != nil {
		return err
	}

	if _, err := h.messages.Log(senderID, senderName, f.RecipientID, body, number); err != nil {
		return err
	}

	outbound := wire.NewOutbound(senderName, body, number, time.Now())
	if delivered := h.Broadcast(f.RecipientID, outbound); delivered > 0 {
		logging.DebugWithComponent(logging.ComponentRouter, "Message delivered",
			"recipient", f.RecipientID, "daily_number", number, "sessions", delivered)
		return nil
	}

	if _, err := h.messages.Cache(f.RecipientID, senderName, body, number); err != nil {
		return err
	}
	logging.DebugWithComponent(logging.ComponentRouter, "Recipient offline, message cached",
		"recipient", f.RecipientID, "daily_number", number)
	return nil
}

// DrainCache writes undelivered cached messages to a freshly subscribed
// session in insertion order. A row is marked delivered only after its frame
// has been handed to the socket write path without error; the first write
// failure aborts the drain and leaves the remaining rows queued.
func (h *Hub) DrainCache(printerID uuid.UUID, s *Session) error {
	rows, err := h.messages.UndeliveredCache(printerID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		outbound := wire.NewOutbound(row.SenderName, row.Body, row.DailyNumber, row.CreatedAt)
		if err := s.WriteFrame(outbound); err != nil {
			return err
		}
		if err := h.messages.MarkDelivered(row.ID); err != nil {
			// The frame is already on the wire; printers dedup by daily
			// number on the next drain.
			logging.WarnWithComponent(logging.ComponentRouter, "Failed to mark cache row delivered",
				"cache_id", row.ID, "error", err)
			return err
		}
	}

	if len(rows) > 0 {
		logging.InfoWithComponent(logging.ComponentRouter, "Cache drained",
			"printer", printerID, "messages", len(rows))
	}
	return nil
}
