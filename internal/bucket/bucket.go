// Package bucket assigns printers to stable gradual-rollout buckets.
package bucket

import "crypto/md5"

// Of returns the 0–99 bucket for a printer identity. The full MD5 digest is
// interpreted as a big-endian 128-bit integer and reduced mod 100, so the
// assignment is stable across restarts and deployments.
func Of(id string) int {
	sum := md5.Sum([]byte(id))

	mod := 0
	for _, b := range sum {
		mod = (mod*256 + int(b)) % 100
	}
	return mod
}
