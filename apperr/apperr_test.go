package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindAuthentication, http.StatusUnauthorized},
		{KindAuthorization, http.StatusForbidden},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindState, http.StatusUnprocessableEntity},
		{KindInternal, http.StatusInternalServerError},
		{Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.status, tt.kind.HTTPStatus(), "kind %s", tt.kind)
	}
}

func TestError_IsAndKindOf(t *testing.T) {
	err := NotFound("Tag not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(Conflict("Tag with this name already exists"), ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))

	// 经过 fmt.Errorf 包装后仍能识别
	wrapped := fmt.Errorf("load tag: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, IsKind(wrapped, KindNotFound))

	// 普通错误视为内部错误
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestError_Internalf(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := Internalf(cause, "query tag %d", 3)

	assert.Equal(t, "query tag 3: driver: bad connection", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())

	v := Validation("name", "Tag name must be at least 2 characters")
	assert.Equal(t, "name", v.Field)
	assert.Equal(t, "Tag name must be at least 2 characters", v.Error())
}
