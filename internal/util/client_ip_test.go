package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPDirectPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:4411"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("forwarded header must be ignored for a non-loopback peer, got %q", got)
	}
}

func TestClientIPBehindLocalProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:4411"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	if got := ClientIP(r); got != "198.51.100.1" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:4411"
	if got := ClientIP(r); got != "127.0.0.1" {
		t.Fatalf("expected loopback fallback, got %q", got)
	}
}
