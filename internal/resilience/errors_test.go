package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("api call failed: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"regular", errors.New("invalid input: missing field"), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"network timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"tls pattern", errors.New("net/http: TLS handshake timeout"), true},
		{"eof pattern", errors.New("openai: read body: unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("openai", 503, "overloaded")
	var te *TransientError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Fatalf("expected transient 503, got %v", err)
	}
	if !strings.Contains(err.Error(), "openai: API returned 503: overloaded") {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = StatusError("openai", 401, strings.Repeat("x", 2000))
	if IsTransient(err) {
		t.Error("401 should not be transient")
	}
	if len(err.Error()) > 600 {
		t.Errorf("body not truncated: %d bytes", len(err.Error()))
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("expected error message %q, got %q", inner.Error(), te.Error())
	}
}
