// Package wire defines the JSON frames exchanged over printer and user
// websocket sessions. Every frame carries a `kind` discriminator; payloads
// are validated at the edge before any business logic sees them.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// Frame kinds, client to server.
const (
	KindSubscription     = "subscription"
	KindMessage          = "message"
	KindFirmwareProgress = "firmware_progress"
	KindFirmwareComplete = "firmware_complete"
	KindFirmwareFailed   = "firmware_failed"
	KindFirmwareDeclined = "firmware_declined"
	KindBitmapPrinting   = "bitmap_printing"
	KindBitmapError      = "bitmap_error"
)

// Frame kinds, server to client.
const (
	KindOutbound       = "outbound"
	KindStatus         = "status"
	KindFirmwareUpdate = "firmware_update"
	KindPrintBitmap    = "print_bitmap"
)

// Status levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Frame is any wire message with a kind discriminator.
type Frame interface {
	Kind() string
}

// Subscription is a printer's opening handshake announcing identity,
// platform, firmware version and update preferences. The legacy APIKey field
// is accepted but ignored; PrinterID is authoritative.
type Subscription struct {
	Type            string    `json:"kind" validate:"required,eq=subscription"`
	PrinterName     string    `json:"printer_name" validate:"required,min=1"`
	PrinterID       uuid.UUID `json:"printer_id" validate:"required"`
	Platform        string    `json:"platform,omitempty"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	AutoUpdate      *bool     `json:"auto_update,omitempty"`
	UpdateChannel   string    `json:"update_channel,omitempty" validate:"omitempty,oneof=stable beta canary"`
	APIKey          string    `json:"api_key,omitempty"`
}

func (*Subscription) Kind() string { return KindSubscription }

// AutoUpdateEnabled returns the auto_update flag, defaulting to true when the
// printer omits it.
func (s *Subscription) AutoUpdateEnabled() bool {
	if s.AutoUpdate == nil {
		return true
	}
	return *s.AutoUpdate
}

// Message is a user-to-printer text message.
type Message struct {
	Type        string    `json:"kind" validate:"required,eq=message"`
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	SenderName  string    `json:"sender_name" validate:"required,min=1"`
	Message     string    `json:"message" validate:"required,min=1,max=500"`
}

func (*Message) Kind() string { return KindMessage }

// FirmwareProgress reports download/install progress from a printer.
// Percent is 0–100, or -1 for an error condition.
type FirmwareProgress struct {
	Type    string `json:"kind" validate:"required,eq=firmware_progress"`
	Percent int    `json:"percent" validate:"gte=-1,lte=100"`
	Status  string `json:"status"`
}

func (*FirmwareProgress) Kind() string { return KindFirmwareProgress }

// FirmwareComplete reports a successful firmware install.
type FirmwareComplete struct {
	Type    string `json:"kind" validate:"required,eq=firmware_complete"`
	Version string `json:"version" validate:"required"`
}

func (*FirmwareComplete) Kind() string { return KindFirmwareComplete }

// FirmwareFailed reports a failed firmware install.
type FirmwareFailed struct {
	Type  string `json:"kind" validate:"required,eq=firmware_failed"`
	Error string `json:"error" validate:"required"`
}

func (*FirmwareFailed) Kind() string { return KindFirmwareFailed }

// FirmwareDeclined reports that the printer refused an offered update. When
// AutoUpdate is false the refusal is persistent and the server stops
// offering.
type FirmwareDeclined struct {
	Type       string `json:"kind" validate:"required,eq=firmware_declined"`
	Version    string `json:"version" validate:"required"`
	AutoUpdate bool   `json:"auto_update"`
}

func (*FirmwareDeclined) Kind() string { return KindFirmwareDeclined }

// BitmapPrinting acknowledges receipt of a print_bitmap frame.
type BitmapPrinting struct {
	Type   string `json:"kind" validate:"required,eq=bitmap_printing"`
	Width  int    `json:"width" validate:"gt=0"`
	Height int    `json:"height" validate:"gt=0"`
}

func (*BitmapPrinting) Kind() string { return KindBitmapPrinting }

// BitmapError reports a bitmap the printer could not render.
type BitmapError struct {
	Type  string `json:"kind" validate:"required,eq=bitmap_error"`
	Error string `json:"error" validate:"required"`
}

func (*BitmapError) Kind() string { return KindBitmapError }

// Outbound is a delivered text message.
type Outbound struct {
	Type        string    `json:"kind"`
	SenderName  string    `json:"sender_name"`
	Message     string    `json:"message"`
	DailyNumber int       `json:"daily_number"`
	Timestamp   time.Time `json:"timestamp"`
}

func (*Outbound) Kind() string { return KindOutbound }

// NewOutbound builds a delivery envelope for a routed message.
func NewOutbound(senderName, message string, dailyNumber int, ts time.Time) *Outbound {
	return &Outbound{
		Type:        KindOutbound,
		SenderName:  senderName,
		Message:     message,
		DailyNumber: dailyNumber,
		Timestamp:   ts.UTC(),
	}
}

// Status carries validation failures and informational notices to a client.
type Status struct {
	Type      string    `json:"kind"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (*Status) Kind() string { return KindStatus }

// NewStatus builds a status frame stamped with the current time.
func NewStatus(level, message string) *Status {
	return &Status{
		Type:      KindStatus,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// FirmwareUpdate offers a firmware binary to a printer.
type FirmwareUpdate struct {
	Type     string `json:"kind"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	URL      string `json:"url"`
	MD5      string `json:"md5"`
}

func (*FirmwareUpdate) Kind() string { return KindFirmwareUpdate }

// PrintBitmap carries a packed 1-bit bitmap to a printer. Data is base64;
// decoded length must equal width*height/8 and width must be a multiple
// of 8.
type PrintBitmap struct {
	Type    string `json:"kind" validate:"required,eq=print_bitmap"`
	Width   int    `json:"width" validate:"gt=0"`
	Height  int    `json:"height" validate:"gt=0"`
	Data    string `json:"data" validate:"required"`
	Caption string `json:"caption,omitempty"`
}

func (*PrintBitmap) Kind() string { return KindPrintBitmap }
