package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

func TestErrorSetsRetryAfterForRetryableErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.WrapAs(fmt.Errorf("boom"), appErrors.ErrAllocationExhausted, ""))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "ALLOCATION_EXHAUSTED", body.Error.Code)
	assert.True(t, body.Error.Retryable)
}

func TestErrorOmitsRetryAfterForClientErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, appErrors.Clone(appErrors.ErrNotFound, "candidate not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestUnknownErrorsBecomeInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, fmt.Errorf("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAttachmentHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Attachment(c, `roster"2025.csv`, "text/csv; charset=utf-8")
	_, _ = c.Writer.WriteString("nim\n")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="roster2025.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
