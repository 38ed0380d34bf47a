package platform

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"esp8266", "esp8266"},
		{"ESP8266", "esp8266"},
		{"esp32", "esp32"},
		{"esp32c3", "esp32-c3"},
		{"esp32-c3", "esp32-c3"},
		{"esp32_c3", "esp32-c3"},
		{"ESP32_S3", "esp32-s3"},
		{"esp32s2", "esp32-s2"},
		{"  esp32-c6  ", "esp32-c6"},
		{"rp2040", "rp2040"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVariants(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"esp32-c3", []string{"esp32-c3", "esp32c3", "esp32_c3"}},
		{"esp32s3", []string{"esp32-s3", "esp32s3", "esp32_s3"}},
		{"esp8266", []string{"esp8266"}},
		{"esp32", []string{"esp32"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := Variants(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Variants(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
