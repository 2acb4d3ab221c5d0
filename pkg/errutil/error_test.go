package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusForDomainCodes(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusInvalidTransition:   http.StatusConflict,
		StatusSessionExpired:      http.StatusBadRequest,
		StatusPlatformMismatch:    http.StatusBadRequest,
		StatusInvalidState:        http.StatusBadRequest,
		StatusSelectionNotFound:   http.StatusNotFound,
		StatusSignatureInvalid:    http.StatusForbidden,
		StatusUnsupportedPlatform: http.StatusBadRequest,
		StatusInternal:            http.StatusInternalServerError,
		CoreStatus("SOMETHING"):   http.StatusInternalServerError,
	}

	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestStatusOfWrappedError(t *testing.T) {
	base := New(StatusSelectionNotFound, "page not found")
	wrapped := fmt.Errorf("connect: %w", base)

	require.Equal(t, StatusSelectionNotFound, StatusOf(wrapped))
	require.True(t, HasStatus(wrapped, StatusSelectionNotFound))
	require.Equal(t, StatusUnknown, StatusOf(errors.New("plain")))
	require.Equal(t, CoreStatus(""), StatusOf(nil))
}

func TestHelpersKeepCause(t *testing.T) {
	cause := errors.New("db down")
	err := Internal("failed to load", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "db down")

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, StatusInternal, be.Code)
}

func TestURLEncodesErrorForRedirect(t *testing.T) {
	err := New(StatusInvalidState, "state expired").(BaseError)
	require.Equal(t, "error=invalid_state&error_description=state+expired", err.URL())
}
