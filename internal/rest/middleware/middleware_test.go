package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveError(t *testing.T, err error) (int, ierr.ErrorResponse) {
	t.Helper()

	r := gin.New()
	r.Use(ErrorHandler(logger.NewNoopLogger(), nil))
	r.GET("/", func(c *gin.Context) { c.Error(err) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp ierr.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantDetails map[string]any
	}{
		{
			name:        "not found uses the hint",
			err:         ierr.NewError("plan not found").WithHint("Plan not found").Mark(ierr.ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Plan not found",
		},
		{
			name: "validation carries reportable details",
			err: ierr.NewError("bad amount").
				WithHint("Amount must be positive").
				WithReportableDetails(map[string]any{"amount": float64(-5)}).
				Mark(ierr.ErrValidation),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Amount must be positive",
			wantDetails: map[string]any{"amount": float64(-5)},
		},
		{
			name:        "plain errors are hidden behind a generic message",
			err:         errors.New("pq: relation does not exist"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := serveError(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMessage, resp.Error.Display)
			assert.Equal(t, tt.wantDetails, resp.Error.Details)
			assert.Empty(t, resp.Error.InternalError)
		})
	}
}

func TestErrorHandlerPassesSuccess(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(logger.NewNoopLogger(), nil))
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestIDMiddleware)
	r.GET("/", func(c *gin.Context) {
		seen = types.GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(types.HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(types.HeaderRequestID, "req_given")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req_given", seen)
	assert.Equal(t, "req_given", w.Header().Get(types.HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	called := false
	r := gin.New()
	r.Use(CORSMiddleware)
	r.OPTIONS("/v1/customers", func(c *gin.Context) { called = true })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/customers", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, called)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), types.HeaderAPIKey)
}
