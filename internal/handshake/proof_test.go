package handshake

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "test-shared-secret"

func newTestVerifier(now time.Time) *Verifier {
	v := NewVerifier(testSecret, 60*time.Second, 5*time.Second)
	v.now = func() time.Time { return now }
	return v
}

func signedHeaders(method, path string, ts int64, body []byte) (string, string) {
	return fmt.Sprintf("%d", ts), ComputeProof([]byte(testSecret), method, path, ts, body)
}

func TestVerifyAcceptsFreshRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"shares":[]}`)
	tsHeader, proof := signedHeaders("POST", "/api/v1/handshake/host-going-offline", now.Unix(), body)

	err := v.Verify("POST", "/api/v1/handshake/host-going-offline", tsHeader, proof, body)
	if err != nil {
		t.Fatalf("fresh request rejected: %v", err)
	}
}

func TestVerifyRejectsReplayedTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(now)

	// Correct proof, but the timestamp sits outside the replay window.
	old := now.Add(-61 * time.Second).Unix()
	tsHeader, proof := signedHeaders("POST", "/p", old, nil)

	err := v.Verify("POST", "/p", tsHeader, proof, nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("replayed request accepted: %v", err)
	}
}

func TestVerifyAcceptsTimestampJustInsideWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(now)

	inside := now.Add(-59 * time.Second).Unix()
	tsHeader, proof := signedHeaders("POST", "/p", inside, nil)

	if err := v.Verify("POST", "/p", tsHeader, proof, nil); err != nil {
		t.Fatalf("request one unit inside the window rejected: %v", err)
	}
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(now)

	future := now.Add(10 * time.Second).Unix()
	tsHeader, proof := signedHeaders("POST", "/p", future, nil)

	err := v.Verify("POST", "/p", tsHeader, proof, nil)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("future-dated request accepted: %v", err)
	}

	// Within the skew allowance is fine.
	near := now.Add(3 * time.Second).Unix()
	tsHeader, proof = signedHeaders("POST", "/p", near, nil)
	if err := v.Verify("POST", "/p", tsHeader, proof, nil); err != nil {
		t.Fatalf("request within clock-skew allowance rejected: %v", err)
	}
}

func TestVerifyRejectsTamperedRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(now)

	body := []byte(`{"free_bytes":1}`)
	tsHeader, proof := signedHeaders("POST", "/p", now.Unix(), body)

	// Body swapped after signing.
	err := v.Verify("POST", "/p", tsHeader, proof, []byte(`{"free_bytes":2}`))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("tampered body accepted: %v", err)
	}

	// Proof for a different path.
	err = v.Verify("POST", "/other", tsHeader, proof, body)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("cross-path proof accepted: %v", err)
	}

	// Missing headers.
	err = v.Verify("POST", "/p", "", "", body)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("missing headers accepted: %v", err)
	}
}

func TestVerifyRejectsWhenSecretMissing(t *testing.T) {
	v := NewVerifier("", time.Minute, 5*time.Second)
	tsHeader, proof := signedHeaders("POST", "/p", time.Now().Unix(), nil)

	if err := v.Verify("POST", "/p", tsHeader, proof, nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("request accepted with no configured secret: %v", err)
	}
}
