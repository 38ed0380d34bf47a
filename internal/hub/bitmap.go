package hub

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/wire"
)

// MaxBitmapBytes caps the decoded payload of a print_bitmap frame.
const MaxBitmapBytes = 50 * 1024

// DispatchBitmap validates a print_bitmap frame and forwards it to the
// target printer. Bitmaps are never cached: failures surface to the caller.
func (h *Hub) DispatchBitmap(printerID uuid.UUID, frame *wire.PrintBitmap) error {
	if err := validateBitmap(frame); err != nil {
		return err
	}

	if _, err := h.printers.GetByID(printerID); err != nil {
		return err
	}

	if h.Broadcast(printerID, frame) == 0 {
		return ErrRecipientNotConnected
	}

	logging.InfoWithComponent(logging.ComponentBitmap, "Bitmap dispatched",
		"printer", printerID, "width", frame.Width, "height", frame.Height)
	return nil
}

func validateBitmap(frame *wire.PrintBitmap) error {
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("%w: non-positive dimensions", ErrInvalidBitmap)
	}
	if frame.Width%8 != 0 {
		return fmt.Errorf("%w: width %d is not a multiple of 8", ErrInvalidBitmap, frame.Width)
	}

	data, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		return fmt.Errorf("%w: data is not valid base64", ErrInvalidBitmap)
	}
	if expected := frame.Width * frame.Height / 8; len(data) != expected {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d",
			ErrInvalidBitmap, len(data), expected, frame.Width, frame.Height)
	}
	if len(data) > MaxBitmapBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d byte cap", ErrInvalidBitmap, len(data), MaxBitmapBytes)
	}
	return nil
}
