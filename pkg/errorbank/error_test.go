package errorbank

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   codes.Code
	}{
		{BadRequest("x"), http.StatusBadRequest, codes.InvalidArgument},
		{Unauthorized("x"), http.StatusUnauthorized, codes.Unauthenticated},
		{Forbidden("x"), http.StatusForbidden, codes.PermissionDenied},
		{NotFound("x"), http.StatusNotFound, codes.NotFound},
		{Conflict("x"), http.StatusConflict, codes.AlreadyExists},
		{Unprocessable("x"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Internal("x"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.StatusCode())
			assert.Equal(t, tc.code, tc.err.GRPCCode())
		})
	}
}

func TestFromWrapsPlainErrors(t *testing.T) {
	cause := errors.New("boom")
	appErr := From(cause)
	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)

	conflict := Conflict("busy", WithDetail("order_id", 7))
	wrapped := From(errors.Join(errors.New("ctx"), conflict))
	assert.Equal(t, KindConflict, wrapped.Kind())
	assert.Equal(t, 7, wrapped.Details()["order_id"])

	assert.Nil(t, From(nil))
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(NotFound("missing"), KindNotFound))
	assert.False(t, IsKind(NotFound("missing"), KindConflict))
	assert.False(t, IsKind(errors.New("plain"), KindInternal))
}

func TestMessageDefaultsToKind(t *testing.T) {
	err := New(KindForbidden, "")
	assert.Equal(t, "forbidden", err.Message())
	assert.Equal(t, "forbidden", err.Error())
}
