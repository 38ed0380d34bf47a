package wire

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestParseDispatch(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"subscription",
			`{"kind":"subscription","printer_name":"kitchen","printer_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333","platform":"esp32c3","firmware_version":"1.2.0","auto_update":true,"update_channel":"beta"}`,
			KindSubscription,
		},
		{
			"message",
			`{"kind":"message","recipient_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333","sender_name":"Alice","message":"Hi"}`,
			KindMessage,
		},
		{
			"firmware_progress",
			`{"kind":"firmware_progress","percent":42,"status":"downloading"}`,
			KindFirmwareProgress,
		},
		{
			"firmware_complete",
			`{"kind":"firmware_complete","version":"1.5.0"}`,
			KindFirmwareComplete,
		},
		{
			"firmware_failed",
			`{"kind":"firmware_failed","error":"flash write failed"}`,
			KindFirmwareFailed,
		},
		{
			"firmware_declined",
			`{"kind":"firmware_declined","version":"1.5.0","auto_update":false}`,
			KindFirmwareDeclined,
		},
		{
			"bitmap_printing",
			`{"kind":"bitmap_printing","width":384,"height":128}`,
			KindBitmapPrinting,
		},
		{
			"bitmap_error",
			`{"kind":"bitmap_error","error":"out of paper"}`,
			KindBitmapError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Parse([]byte(tt.in), 0)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if frame.Kind() != tt.want {
				t.Errorf("Kind() = %q, want %q", frame.Kind(), tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	frames := []string{
		`{"kind":"message","recipient_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333","sender_name":"Alice","message":"Hi"}`,
		`{"kind":"firmware_progress","percent":-1,"status":"checksum mismatch"}`,
		`{"kind":"firmware_declined","version":"1.5.0","auto_update":false}`,
		`{"kind":"bitmap_printing","width":8,"height":8}`,
	}
	for _, raw := range frames {
		first, err := Parse([]byte(raw), 0)
		if err != nil {
			t.Fatalf("Parse(%s): %v", raw, err)
		}
		data, err := Marshal(first)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		second, err := Parse(data, 0)
		if err != nil {
			t.Fatalf("re-Parse(%s): %v", data, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip changed frame: %#v != %#v", first, second)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int64
		want error
	}{
		{"not json", `{{{`, 0, ErrMalformedFrame},
		{"missing kind", `{"message":"hi"}`, 0, ErrMalformedFrame},
		{"unknown kind", `{"kind":"teleport"}`, 0, ErrUnknownKind},
		{"over cap", `{"kind":"message","recipient_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333","sender_name":"Alice","message":"Hi"}`, 16, ErrFrameTooLarge},
		{"missing recipient", `{"kind":"message","sender_name":"Alice","message":"Hi"}`, 0, ErrMalformedFrame},
		{"empty message body", `{"kind":"message","recipient_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333","sender_name":"Alice","message":""}`, 0, ErrMalformedFrame},
		{"percent out of range", `{"kind":"firmware_progress","percent":101,"status":"x"}`, 0, ErrMalformedFrame},
		{"bad channel", `{"kind":"subscription","printer_name":"p","printer_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333","update_channel":"nightly"}`, 0, ErrMalformedFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in), tt.max)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscriptionDefaults(t *testing.T) {
	raw := `{"kind":"subscription","printer_name":"hall","printer_id":"2a8f1c3e-9f1b-4c2a-8d3e-111122223333"}`
	frame, err := Parse([]byte(raw), 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sub, ok := frame.(*Subscription)
	if !ok {
		t.Fatalf("expected *Subscription, got %T", frame)
	}
	if !sub.AutoUpdateEnabled() {
		t.Error("auto_update should default to enabled")
	}
}

func TestStatusFrameShape(t *testing.T) {
	data, err := Marshal(NewStatus(LevelError, "recipient not found"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["kind"] != KindStatus || m["level"] != LevelError {
		t.Errorf("unexpected status frame: %v", m)
	}
}
