// Package platform canonicalizes printer hardware platform strings.
//
// The canonical form for ESP32 variants uses a dash (esp32-c3, esp32-s3);
// historical clients report esp32c3 or esp32_s3 and both are accepted.
package platform

import (
	"regexp"
	"strings"
)

var esp32Re = regexp.MustCompile(`^esp32([-_]?[a-z0-9]+)?$`)

// Normalize returns the canonical form of a platform string, or "" for empty
// input. Unrecognized platforms are passed through lowercased.
func Normalize(p string) string {
	value := strings.ToLower(strings.TrimSpace(p))
	if value == "" {
		return ""
	}

	m := esp32Re.FindStringSubmatch(value)
	if m == nil {
		return value
	}

	suffix := strings.TrimLeft(m[1], "-_")
	if suffix == "" {
		return "esp32"
	}
	return "esp32-" + suffix
}

// Variants returns the canonical form plus every accepted spelling, for
// widening store queries. The canonical form is always first.
func Variants(p string) []string {
	normalized := Normalize(p)
	if normalized == "" {
		return nil
	}

	variants := []string{normalized}
	if suffix, ok := strings.CutPrefix(normalized, "esp32-"); ok {
		variants = append(variants, "esp32"+suffix, "esp32_"+suffix)
	}

	seen := make(map[string]bool, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
