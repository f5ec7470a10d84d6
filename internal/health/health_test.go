package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	var loaded bool
	h := Readyz(Check{Name: "tle_dataset", Fn: func() error {
		if !loaded {
			return errors.New("no TLE dataset loaded")
		}
		return nil
	}})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tle_dataset: no TLE dataset loaded") {
		t.Errorf("body = %q", w.Body.String())
	}

	loaded = true
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ready\n" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestReadyzNoChecks(t *testing.T) {
	w := httptest.NewRecorder()
	Readyz()(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
