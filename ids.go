package comet

import (
	"crypto/rand"
	"encoding/hex"
)

// newChannelID returns a fresh, unguessable channel id drawn from a
// cryptographically secure source.
//
// The id is 128 random bits from crypto/rand, hex-encoded as a
// 32-character string, so guessing a live id is infeasible.
func newChannelID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("comet: reading random channel id: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
