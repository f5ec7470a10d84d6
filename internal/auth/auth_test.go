package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"probe", "GET", "/healthz", "", http.StatusNoContent},
		{"metrics", "GET", "/metrics", "", http.StatusNoContent},
		{"tle metadata", "GET", "/api/v1/tle/metadata", "", http.StatusNoContent},
		{"comet catalogue", "GET", "/api/v1/comets/halley/position", "", http.StatusNoContent},
		{"planet", "GET", "/api/v1/bodies/mars/position", "", http.StatusNoContent},
		{"satellite without token", "GET", "/api/v1/satellites/25544/position", "", http.StatusUnauthorized},
		{"fetch without token", "POST", "/api/v1/tle/fetch", "", http.StatusUnauthorized},
		{"wrong token", "PUT", "/api/v1/tle/25544", "Bearer nope", http.StatusUnauthorized},
		{"missing scheme", "GET", "/api/v1/propagate", "s3cret", http.StatusUnauthorized},
		{"valid token", "GET", "/api/v1/propagate", "Bearer s3cret", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/tle/fetch", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}
