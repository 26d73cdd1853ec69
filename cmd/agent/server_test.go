package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpsMux(t *testing.T) {
	cfg := testConfig()
	var readyErr error
	mux := newOpsMux(cfg, func(context.Context) error { return readyErr })

	tests := []struct {
		name     string
		path     string
		readyErr error
		want     int
		body     string
	}{
		{"live", "/health/live", nil, http.StatusOK, `"status":"ok"`},
		{"ready", "/health/ready", nil, http.StatusOK, `"status":"ok"`},
		{"not ready", "/health/ready", errors.New("connection refused"), http.StatusServiceUnavailable, "connection refused"},
		{"metrics", "/metrics", nil, http.StatusOK, "go_goroutines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readyErr = tt.readyErr
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestOpsMux_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	mux := newOpsMux(cfg, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
