// Package signature computes and verifies the keyed MAC that authenticates
// every frame on the wire. Both peers are provisioned with the same shared
// secret out-of-band; a mismatch silently blackholes all traffic, which is
// the primary operational failure mode the channel tests cover.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptySecret is returned when a Codec is constructed without a secret.
// Running without one would let any unsigned frame through, so it is a hard
// construction failure rather than a degraded mode.
var ErrEmptySecret = errors.New("signature: shared secret must not be empty")

// Codec signs and verifies payload bytes with an HMAC-SHA256 keyed by the
// pre-shared secret. It is stateless and safe for concurrent use.
type Codec struct {
	secret []byte
}

// NewCodec creates a Codec for the given shared secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Sign returns the hex-encoded HMAC-SHA256 of payload. Deterministic: the
// same payload and secret always produce the same signature, which both
// peers rely on when they serialize the payload identically before signing.
func (c *Codec) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the MAC over payload and compares it to sig in constant
// time. It never returns an error; any mismatch, empty signature, or
// malformed hex simply yields false so the caller can drop the frame.
func (c *Codec) Verify(payload []byte, sig string) bool {
	if sig == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
