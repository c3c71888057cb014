package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "safereport/pkg/domain-errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("plain error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("validation error includes field", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Validation("description", "too short"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "validation_error", body["error"])
		assert.Equal(t, "too short", body["error_description"])
		assert.Equal(t, "description", body["field"])
	})

	t.Run("permission denied carries role and action", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.PermissionDenied("edit", "member"))

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decode(t, w)
		assert.Equal(t, "permission_denied", body["reason"])
		assert.Equal(t, "member", body["role"])
	})

	t.Run("rate limit sets retry-after", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.RateLimitExceeded(12))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "720", w.Header().Get("Retry-After"))
		assert.EqualValues(t, 12, decode(t, w)["minutes_until_reset"])
	})
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Reason string `json:"reason"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"dup"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "dup", dst.Reason)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"team_id":"x","reason":"late"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "late", dst.Reason)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":`))
	assert.True(t, dErrors.HasCode(DecodeJSON(r, &dst), dErrors.CodeBadRequest))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.True(t, dErrors.HasCode(DecodeJSON(r, &dst), dErrors.CodeBadRequest))
}
