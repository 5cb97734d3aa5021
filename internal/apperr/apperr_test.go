package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, FieldValidation("invalid month", "month", "13", "month must be between 1 and 12"), "unused")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":{"code":"VALIDATION_ERROR","message":"invalid month",
		"details":{"field":"month","value":"13","constraint":"month must be between 1 and 12"}}}`,
		rec.Body.String())
}

func TestWriteWrappedAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, fmt.Errorf("lookup: %w", NotFound("lecture not found")), "unused")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, CodeNotFound, body["error"]["code"])
	require.NotContains(t, body["error"], "details")
}

func TestWriteSanitizesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, errors.New("pq: password authentication failed for user app"), "failed to load lectures")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
	require.JSONEq(t, `{"error":{"code":"INTERNAL_SERVER_ERROR","message":"failed to load lectures"}}`, rec.Body.String())
}
