package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestFieldErrorNamesFieldAndUnwraps(t *testing.T) {
	err := InvalidQuantity("packs_on_hand", "must not be negative")
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("errors.Is: expected ErrInvalidQuantity, got %v", err)
	}
	if !strings.Contains(err.Error(), "packs_on_hand") {
		t.Fatalf("message should name the field: %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{InvalidQuantity("pack_size", "must be at least 1"), http.StatusBadRequest},
		{fmt.Errorf("adjust: %w", ErrMissingReason), http.StatusBadRequest},
		{ErrInvalidSnoozeWindow, http.StatusBadRequest},
		{NotFound("course"), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v): want=%d got=%d", tc.err, tc.want, got)
		}
	}
}

func TestNotFoundMessageIsUniform(t *testing.T) {
	if NotFound("course").Error() != "course not found" {
		t.Fatalf("unexpected message: %q", NotFound("course").Error())
	}
}
