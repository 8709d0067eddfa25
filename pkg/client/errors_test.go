package client

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestTransportError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TransportError
		expected string
	}{
		{
			name: "status error",
			err: &TransportError{
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			expected: "comments server error (status 503): 503 Service Unavailable",
		},
		{
			name: "network error with cause",
			err: &TransportError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        io.ErrUnexpectedEOF,
			},
			expected: "comments network error (status 0): request failed: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransport bool
		wantCancelled bool
	}{
		{
			name:          "transport error",
			err:           &TransportError{StatusCode: 500, ErrorClass: ErrorClassServer},
			wantTransport: true,
		},
		{
			name:          "parse error is a transport error",
			err:           &ParseError{Page: 2, Err: errors.New("bad json")},
			wantTransport: true,
		},
		{
			name:          "cancelled error",
			err:           &CancelledError{Page: 1, Err: context.Canceled},
			wantCancelled: true,
		},
		{
			name:          "wrapped cancelled error",
			err:           errors.Join(errors.New("outer"), &CancelledError{Page: 3, Err: context.Canceled}),
			wantCancelled: true,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, ErrTransport); got != tt.wantTransport {
				t.Errorf("errors.Is(err, ErrTransport) = %v, want %v", got, tt.wantTransport)
			}
			if got := IsCancelled(tt.err); got != tt.wantCancelled {
				t.Errorf("IsCancelled() = %v, want %v", got, tt.wantCancelled)
			}
		})
	}
}

func TestCancelledError_UnwrapsContextError(t *testing.T) {
	err := &CancelledError{Page: 1, Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("CancelledError should unwrap to the context error")
	}
	if errors.Is(err, ErrTransport) {
		t.Error("cancellation must not be reported as a transport error")
	}
}
