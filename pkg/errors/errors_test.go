package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeDeleteBlocked, http.StatusConflict},
		{CodeValidation, http.StatusUnprocessableEntity},
		// Inverted on purpose, see HTTPStatus.
		{CodeUnauthenticated, http.StatusForbidden},
		{CodeForbidden, http.StatusUnauthorized},
		{CodeAuthzBackend, http.StatusInternalServerError},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			require.Equal(t, tc.want, HTTPStatus(New(tc.code, "boom")))
		})
	}
}

func TestHTTPStatusAuthzBackendTimeout(t *testing.T) {
	err := Wrap(fmt.Errorf("policy engine: %w", context.DeadlineExceeded), CodeAuthzBackend, "policy engine unreachable")
	require.Equal(t, http.StatusGatewayTimeout, HTTPStatus(err))
}

func TestHTTPStatusPlainError(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("boom")))
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(CodeConflict, "already exists")
	outer := fmt.Errorf("create template: %w", inner)
	require.True(t, IsCode(outer, CodeConflict))
	require.False(t, IsCode(outer, CodeNotFound))
	require.Equal(t, "already exists", Message(outer))
}
