package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/ports"
)

type Server struct {
	svc      ports.HeaterService
	srv      *http.Server
	deviceID string
}

// New returns a runnable server. metrics, when non-nil, is mounted on
// GET /metrics.
func New(svc ports.HeaterService, addr string, deviceID string, metrics http.Handler) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc, deviceID: deviceID}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)

	// Write: one endpoint per variable
	mux.HandleFunc("POST /v1/target_state", s.handlePostTargetState)
	mux.HandleFunc("POST /v1/target_temperature", s.handlePostTargetTemperature)
	mux.HandleFunc("POST /v1/threshold_temperature", s.handlePostThresholdTemperature)
	mux.HandleFunc("POST /v1/display_units", s.handlePostDisplayUnits)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type snapshotDTO struct {
	DeviceID             string  `json:"device_id"`
	Name                 string  `json:"name"`
	CurrentTemperature   float64 `json:"current_temperature"`
	TargetTemperature    float64 `json:"target_temperature"`
	ThresholdTemperature float64 `json:"threshold_temperature"`
	DisplayUnits         string  `json:"display_units"`
	HeatingState         string  `json:"heating_state"`
}

func toDTO(s heater.Snapshot) snapshotDTO {
	return snapshotDTO{
		Name:                 s.Name,
		CurrentTemperature:   s.CurrentTemperature,
		TargetTemperature:    s.TargetTemperature,
		ThresholdTemperature: s.ThresholdTemperature,
		DisplayUnits:         s.DisplayUnits.String(),
		HeatingState:         s.Heating.String(),
	}
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handlePostTargetState(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "heat"}
	postValue(s, w, r, func(v string) error {
		st, err := heater.ParseTargetState(v)
		if err != nil {
			return err
		}
		return s.svc.SetTargetState(r.Context(), st)
	})
}

func (s *Server) handlePostTargetTemperature(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetTargetTemperature(r.Context(), v)
	})
}

func (s *Server) handlePostThresholdTemperature(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetThresholdTemperature(r.Context(), v)
	})
}

func (s *Server) handlePostDisplayUnits(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "fahrenheit"}
	postValue(s, w, r, func(v string) error {
		u, err := heater.ParseDisplayUnits(v)
		if err != nil {
			return err
		}
		return s.svc.SetDisplayUnits(u)
	})
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}

	s.respondSnapshot(w)
}

// statusFor separates bad input from a relay that failed to switch.
func statusFor(err error) int {
	if errors.Is(err, heater.ErrInvalidTargetState) || errors.Is(err, heater.ErrInvalidDisplayUnits) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
