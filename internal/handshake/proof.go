package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Header names carried on every handshake request.
const (
	HeaderTimestamp = "X-Balupi-Timestamp"
	HeaderProof     = "X-Balupi-Proof"
)

// ErrUnauthenticated marks a rejected handshake request: proof mismatch,
// replayed timestamp or malformed headers. Returned to the sender; never
// affects lifecycle state.
var ErrUnauthenticated = errors.New("unauthenticated handshake request")

// Verifier checks the per-request authenticity proof:
//
//	proof = hex(HMAC-SHA256(secret, "METHOD:path:timestamp:sha256hex(body)"))
//
// A timestamp older than the replay window, or further in the future than
// the clock-skew allowance, is rejected even with a correct proof.
type Verifier struct {
	secret       []byte
	replayWindow time.Duration
	clockSkew    time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewVerifier builds a verifier around the shared secret.
func NewVerifier(secret string, replayWindow, clockSkew time.Duration) *Verifier {
	return &Verifier{
		secret:       []byte(secret),
		replayWindow: replayWindow,
		clockSkew:    clockSkew,
		now:          time.Now,
	}
}

// ComputeProof derives the proof value for a request. Exported so the host
// side of the handshake and the tests build requests the same way.
func ComputeProof(secret []byte, method, path string, timestamp int64, body []byte) string {
	bodyDigest := sha256.Sum256(body)
	message := fmt.Sprintf("%s:%s:%d:%s", method, path, timestamp, hex.EncodeToString(bodyDigest[:]))

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks timestamp freshness and the proof for one request.
func (v *Verifier) Verify(method, path, timestampHeader, proofHeader string, body []byte) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: shared secret not configured", ErrUnauthenticated)
	}
	if timestampHeader == "" || proofHeader == "" {
		return fmt.Errorf("%w: missing proof headers", ErrUnauthenticated)
	}

	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrUnauthenticated)
	}

	now := v.now()
	age := now.Sub(time.Unix(timestamp, 0))
	if age > v.replayWindow {
		return fmt.Errorf("%w: timestamp outside replay window (%s old)", ErrUnauthenticated, age.Round(time.Second))
	}
	if age < -v.clockSkew {
		return fmt.Errorf("%w: timestamp too far in the future", ErrUnauthenticated)
	}

	expected := ComputeProof(v.secret, method, path, timestamp, body)
	if subtle.ConstantTimeCompare([]byte(proofHeader), []byte(expected)) != 1 {
		return fmt.Errorf("%w: proof mismatch", ErrUnauthenticated)
	}
	return nil
}
