package errors

import (
	stderrs "errors"
	"net/http"
	"testing"
)

func TestWrapPreservesCodeAndCause(t *testing.T) {
	cause := stderrs.New("boom")
	err := Wrapf(cause, ErrorCodeUpstream, "dld request failed")

	if got := CodeOf(err); got != ErrorCodeUpstream {
		t.Fatalf("CodeOf = %d, want ErrorCodeUpstream", got)
	}
	if Root(err) != cause {
		t.Fatalf("Root did not return the original cause")
	}
	if !IsCode(err, ErrorCodeUpstream) {
		t.Fatalf("IsCode(ErrorCodeUpstream) = false")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(nil, ErrorCodeDB, "x") != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
	if Wrapf(nil, ErrorCodeDB, "x") != nil {
		t.Fatalf("Wrapf(nil) should be nil")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeAuthFailed, http.StatusBadGateway},
		{ErrorCodeUpstream, http.StatusBadGateway},
		{ErrorCodeTooManyRequests, http.StatusTooManyRequests},
		{ErrorCodeConflict, http.StatusConflict},
		{ErrorCodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.code); got != tt.want {
			t.Errorf("HTTPStatusCode(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWithOpCopyOnWrite(t *testing.T) {
	base := New(ErrorCodeUpstream, "request failed")
	tagged := WithOp(base, "GET /properties")

	e, ok := As(tagged)
	if !ok {
		t.Fatalf("WithOp lost the *Error type")
	}
	if e.Op() != "GET /properties" {
		t.Fatalf("op = %q", e.Op())
	}
	if base.Op() != "" {
		t.Fatalf("WithOp mutated the original")
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if got := CodeOf(stderrs.New("plain")); got != ErrorCodeUnknown {
		t.Fatalf("CodeOf(plain) = %d, want Unknown", got)
	}
}
