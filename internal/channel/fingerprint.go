package channel

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// fingerprintSalt distinguishes the second 64-bit half of the fingerprint
// from the first so the two xxhash calls do not collapse onto the same
// value for any input.
const fingerprintSalt = "\x00hls-orchestrator-fingerprint-v1"

// Fingerprint derives the stable, 128-bit storage key for a source item's
// path, per spec §3 and §9: no canonicalization is attempted (symlinks are
// not resolved, case is not normalized) — moving the library re-generates
// bundles, by design. The two halves are independent xxhash.Sum64 digests
// of the path and the salted path, rendered as a 32-character hex string.
func Fingerprint(path string) string {
	high := xxhash.Sum64String(path)
	low := xxhash.Sum64String(path + fingerprintSalt)
	return fmt.Sprintf("%016x%016x", high, low)
}
