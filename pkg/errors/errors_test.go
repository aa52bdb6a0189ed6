package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	verr := NewValidationError()
	verr.Add("key", "key is required")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "x"), http.StatusTeapot},
		{"wrapped not found", fmt.Errorf("loading: %w", ErrProjectNotFound), http.StatusNotFound},
		{"conflict", ErrProjectExists, http.StatusConflict},
		{"validation", verr, http.StatusBadRequest},
		{"unknown field", ErrUnknownField, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidationErrorKeepsFirstMessage(t *testing.T) {
	verr := NewValidationError()
	if verr.OrNil() != nil {
		t.Fatal("empty collection must be nil")
	}
	verr.Add("name", "name is required")
	verr.Add("name", "name is too long")
	verr.Add("key", "key is required")

	if got := verr.Fields["name"]; got != "name is required" {
		t.Errorf("name message = %q", got)
	}
	if got := verr.Error(); got != "key: key is required; name: name is required" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(verr.OrNil(), ErrInvalidInput) {
		t.Error("validation error must unwrap to ErrInvalidInput")
	}
}
