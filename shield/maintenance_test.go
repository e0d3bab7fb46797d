package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestMaintenance_Off(t *testing.T) {
	mm := NewMaintenanceMode()

	handler := mm.Middleware(okHandler())
	req := httptest.NewRequest("POST", "/api/generate-polyglot", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when maintenance off, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("expected OK body, got %q", w.Body.String())
	}
}

func TestMaintenance_On(t *testing.T) {
	mm := NewMaintenanceMode()
	mm.Enable("shutting down")

	if !mm.Active() {
		t.Fatal("expected maintenance active")
	}
	handler := mm.Middleware(okHandler())
	req := httptest.NewRequest("POST", "/api/generate-polyglot", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"detail":"shutting down"`) {
		t.Errorf("expected detail in body, got %q", w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestMaintenance_ExcludedPaths(t *testing.T) {
	mm := NewMaintenanceMode("/healthz")
	mm.Enable("")

	handler := mm.Middleware(okHandler())
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/healthz should bypass maintenance, got %d", w.Code)
	}
	if mm.Message() != defaultMaintenanceMessage {
		t.Errorf("empty message must keep the default, got %q", mm.Message())
	}
}

func TestMaintenance_Toggle(t *testing.T) {
	mm := NewMaintenanceMode()
	mm.Enable("x")
	mm.Disable()

	handler := mm.Middleware(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/combinations", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after disable, got %d", w.Code)
	}
}
