package apierror

import (
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *ApiError
		want int
	}{
		{BadRequest("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.Status(); got != tc.want {
			t.Fatalf("Status() = %d, want %d", got, tc.want)
		}
	}
}

func TestBody(t *testing.T) {
	err := ValidatorNotFound("5F...")
	body := err.Body()
	if len(body["errors"]) != 1 {
		t.Fatalf("expected a single error message, got %v", body)
	}
}
