package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrFrameTooLarge is returned when an inbound frame exceeds the
	// configured byte cap.
	ErrFrameTooLarge = errors.New("frame exceeds size limit")

	// ErrUnknownKind is returned for a kind the server does not accept from
	// clients.
	ErrUnknownKind = errors.New("unknown frame kind")

	// ErrMalformedFrame is returned for JSON that does not parse or does not
	// validate against the frame schema.
	ErrMalformedFrame = errors.New("malformed frame")
)

var validate = validator.New()

type probe struct {
	Kind string `json:"kind"`
}

// Parse decodes one client frame. maxBytes of 0 disables the size check.
func Parse(data []byte, maxBytes int64) (Frame, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var frame Frame
	switch p.Kind {
	case KindSubscription:
		frame = &Subscription{}
	case KindMessage:
		frame = &Message{}
	case KindFirmwareProgress:
		frame = &FirmwareProgress{}
	case KindFirmwareComplete:
		frame = &FirmwareComplete{}
	case KindFirmwareFailed:
		frame = &FirmwareFailed{}
	case KindFirmwareDeclined:
		frame = &FirmwareDeclined{}
	case KindBitmapPrinting:
		frame = &BitmapPrinting{}
	case KindBitmapError:
		frame = &BitmapError{}
	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := validate.Struct(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frame, nil
}

// Marshal encodes a frame for the wire.
func Marshal(f Frame) ([]byte, error) {
	return json.Marshal(f)
}
