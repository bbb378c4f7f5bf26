package httpctrl

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/testutil"
)

func TestGET_v1_ReturnsStrings(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[map[string]any](t, rr)
	if got["heating_state"] != "off" {
		t.Fatalf("expected heating_state=off, got %v", got["heating_state"])
	}
	if got["display_units"] != "celsius" {
		t.Fatalf("expected display_units=celsius, got %v", got["display_units"])
	}
	if got["device_id"] != "default" {
		t.Fatalf("expected device_id=default, got %v", got["device_id"])
	}
	if got["threshold_temperature"] != 24.0 {
		t.Fatalf("expected threshold_temperature=24, got %v", got["threshold_temperature"])
	}
}

func TestPOST_target_state_Valid(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/target_state", "auto")
	assertStatus(t, rr, http.StatusOK)

	if !f.SetTargetStateCalled || f.SetTargetStateArg != heater.TargetAuto {
		t.Fatalf("expected SetTargetState(Auto) called, got called=%v arg=%v", f.SetTargetStateCalled, f.SetTargetStateArg)
	}
	if got := decodeJSON[map[string]any](t, rr); got["heating_state"] != "heat" {
		t.Fatalf("expected heating_state=heat, got %v", got["heating_state"])
	}
}

func TestPOST_target_state_InvalidPayload(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/target_state", map[string]any{
		"state": "heat",
	})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_target_state_InvalidString(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/target_state", "weird")
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
	if f.SetTargetStateCalled {
		t.Fatal("expected SetTargetState not called")
	}
}

func TestPOST_target_state_RelayFailure(t *testing.T) {
	srv, f := newTestServer()
	f.SetTargetStateErr = errors.New("gpio busy")

	rr := postValueEndpoint(t, srv, "/v1/target_state", "heat")
	assertStatus(t, rr, http.StatusBadGateway)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_target_temperature(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/target_temperature", 18.5)
	assertStatus(t, rr, http.StatusOK)

	if !f.SetTargetTemperatureCalled || f.S.TargetTemperature != 18.5 {
		t.Fatalf("expected target=18.5, got called=%v value=%v", f.SetTargetTemperatureCalled, f.S.TargetTemperature)
	}
}

func TestPOST_threshold_temperature(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/threshold_temperature", 26.0)
	assertStatus(t, rr, http.StatusOK)

	if f.S.ThresholdTemperature != 26.0 {
		t.Fatalf("expected threshold=26, got %v", f.S.ThresholdTemperature)
	}
}

func TestPOST_display_units(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/display_units", "fahrenheit")
	assertStatus(t, rr, http.StatusOK)
	if f.S.DisplayUnits != heater.Fahrenheit {
		t.Fatalf("expected fahrenheit, got %v", f.S.DisplayUnits)
	}

	rr = postValueEndpoint(t, srv, "/v1/display_units", "kelvin")
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/target_temperature", bytes.NewReader([]byte(`{"value":`)))
	srv.srv.Handler.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestGET_healthz(t *testing.T) {
	srv, _ := newTestServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "ok" {
		t.Fatalf("expected body 'ok', got %s", rr.Body.String())
	}
}

func TestGET_metrics(t *testing.T) {
	f := testutil.NewFakeHeaterService()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("heater_relay_on 0\n"))
	})
	srv := New(f, ":0", "default", metrics)

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/metrics", nil)
	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "heater_relay_on 0\n" {
		t.Fatalf("unexpected metrics body %q", rr.Body.String())
	}

	srv, _ = newTestServer()
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/metrics", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

// ---- test helpers ----

func newTestServer() (*Server, *testutil.FakeHeaterService) {
	f := testutil.NewFakeHeaterService()
	deviceID := "default"
	return New(f, ":0", deviceID, nil), f
}

func doJSONRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("json.Unmarshal: %v body=%s", err, rr.Body.String())
	}
	return v
}

// Handy when you only care about error responses.
func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeJSON[struct {
		Error string `json:"error"`
	}](t, rr)
	if resp.Error == "" {
		t.Fatalf("expected non-empty error field, got body=%s", rr.Body.String())
	}
	return resp.Error
}

func postValueEndpoint[T any](t *testing.T, srv *Server, path string, value T) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONRequest(t, srv.srv.Handler, http.MethodPost, path, struct {
		Value T `json:"value"`
	}{Value: value})
}
