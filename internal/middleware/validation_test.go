package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "emspulse/internal/errors"
)

func newValidation() *ValidationMiddleware {
	logger := testLogger()
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false))
}

func TestValidateRequest(t *testing.T) {
	m := newValidation()
	h := m.ValidateRequest(okHandler())

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantStatus  int
	}{
		{"get passes without body checks", http.MethodGet, "", "", http.StatusOK},
		{"valid json passes", http.MethodPost, `{"link":"x"}`, "application/json", http.StatusOK},
		{"invalid json rejected", http.MethodPost, `{"link":`, "application/json", http.StatusBadRequest},
		{"empty body passes", http.MethodPost, "", "application/json", http.StatusOK},
		{"multipart exempt", http.MethodPost, "not json at all", "multipart/form-data; boundary=x", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestValidateRequest_BodyIsRestored(t *testing.T) {
	m := newValidation()
	var seen string
	h := m.ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		seen = string(buf[:n])
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, `{"a":1}`, seen)
}

func TestValidateStruct(t *testing.T) {
	m := newValidation()

	type linkReq struct {
		Link string `json:"link" validate:"required,drivelink"`
	}
	type columnsReq struct {
		Columns []string `json:"columns" validate:"required,min=1,max=3,dive,columnname"`
	}

	tests := []struct {
		name  string
		value any
		valid bool
	}{
		{"open link", &linkReq{Link: "https://drive.google.com/open?id=abc123"}, true},
		{"file link", &linkReq{Link: "https://drive.google.com/file/d/abc123/view"}, true},
		{"not a drive link", &linkReq{Link: "https://example.com/data.csv"}, false},
		{"missing link", &linkReq{}, false},
		{"good columns", &columnsReq{Columns: []string{"Gender", "AgeGroup"}}, true},
		{"column with space", &columnsReq{Columns: []string{"US Census Division"}}, true},
		{"injection-shaped column", &columnsReq{Columns: []string{"Gender; DROP"}}, false},
		{"leading digit", &columnsReq{Columns: []string{"1Gender"}}, false},
		{"too many columns", &columnsReq{Columns: []string{"A", "B", "C", "D"}}, false},
		{"empty columns", &columnsReq{Columns: []string{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateStruct(tt.value)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				var apiErr *apierrors.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			}
		})
	}
}

func TestValidateStruct_UsesJSONFieldNames(t *testing.T) {
	m := newValidation()

	type req struct {
		Link string `json:"link" validate:"required"`
	}
	err := m.ValidateStruct(&req{})
	require.Error(t, err)

	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	details, ok := apiErr.Details.(map[string]any)
	require.True(t, ok)
	errs, ok := details["errors"].([]apierrors.ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "link", errs[0].Field)
	assert.Equal(t, "this field is required", errs[0].Message)
}
