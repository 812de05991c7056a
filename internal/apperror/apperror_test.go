package apperror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusClassification(t *testing.T) {
	assert.Equal(t, "fail", BadRequest("bad").Status())
	assert.Equal(t, "fail", Forbidden("nope").Status())
	assert.Equal(t, "error", Internal("boom").Status())
}

func TestAsUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("send message: %w", NotFound("Session not found"))

	appErr, ok := As(err)
	if assert.True(t, ok) {
		assert.Equal(t, http.StatusNotFound, appErr.Code)
		assert.Equal(t, "Session not found", appErr.Message)
	}
	assert.True(t, HasCode(err, http.StatusNotFound))
	assert.False(t, HasCode(err, http.StatusForbidden))

	_, ok = As(fmt.Errorf("plain"))
	assert.False(t, ok)
}
