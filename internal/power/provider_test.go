package power

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSamplerCachesReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"outlet_id":"nas","power_w":42.5}`)
	}))
	defer srv.Close()

	s := NewSampler(zap.NewNop(), srv.URL, time.Minute, time.Minute)
	s.sample(context.Background())

	watts, ok := s.LatestWatts()
	if !ok {
		t.Fatalf("sample not cached")
	}
	if watts != 42.5 {
		t.Fatalf("watts = %v, want 42.5", watts)
	}
}

func TestSamplerConvertsMilliwatts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"outlet_id":"nas","power_mw":1500}`)
	}))
	defer srv.Close()

	s := NewSampler(zap.NewNop(), srv.URL, time.Minute, time.Minute)
	s.sample(context.Background())

	watts, ok := s.LatestWatts()
	if !ok || watts != 1.5 {
		t.Fatalf("watts = (%v, %v), want (1.5, true)", watts, ok)
	}
}

func TestSamplerReportsAbsence(t *testing.T) {
	s := NewSampler(zap.NewNop(), "http://127.0.0.1:0", time.Minute, time.Minute)

	// No sample taken yet.
	if _, ok := s.LatestWatts(); ok {
		t.Fatalf("empty cache reported a reading")
	}

	// An aged sample is treated as absent, not as a zero-watt reading.
	s.Set(55, time.Now().Add(-2*time.Hour))
	if _, ok := s.LatestWatts(); ok {
		t.Fatalf("stale cache reported a reading")
	}

	// A failed refresh keeps the absence.
	s2 := NewSampler(zap.NewNop(), "http://127.0.0.1:0", time.Minute, time.Minute)
	s2.sample(context.Background())
	if _, ok := s2.LatestWatts(); ok {
		t.Fatalf("failed sample populated the cache")
	}
}
