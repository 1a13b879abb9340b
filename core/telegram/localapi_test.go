package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeLocalAPI(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		available bool
	}{
		{name: "root not found", status: http.StatusNotFound, available: true},
		{name: "ok", status: http.StatusOK, available: true},
		{name: "bad gateway", status: http.StatusBadGateway, available: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			res := ProbeLocalAPI(context.Background(), srv.Client(), srv.URL+"/")
			assert.Equal(t, tt.available, res.Available)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, srv.URL, res.URL)
			assert.NoError(t, res.Err)
			if !tt.available {
				assert.Equal(t, "unexpected status 502", res.ErrorText())
			}
		})
	}
}

func TestProbeLocalAPIUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := ProbeLocalAPI(context.Background(), nil, url)
	assert.False(t, res.Available)
	assert.Error(t, res.Err)
	assert.Equal(t, "Connection refused", res.ErrorText())
}
