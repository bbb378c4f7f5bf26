package heater

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Agrid-Dev/jemheater/internal/storage"
)

const DefaultTargetTemperature = 20.0

// Setpoints is the user-facing configuration persisted across restarts.
type Setpoints struct {
	TargetTemperature    float64      `json:"targetTemperature"`
	ThresholdTemperature float64      `json:"thresholdTemperature"`
	DisplayUnits         DisplayUnits `json:"displayUnitPreference"`
}

// Validate flags a threshold below the target. Such setpoints are kept
// as-is; the two hysteresis branches then fight each other.
func (s Setpoints) Validate() error {
	if s.ThresholdTemperature < s.TargetTemperature {
		return ErrInvertedThresholds
	}
	return nil
}

type persistedSetpoints struct {
	TargetTemperature    *float64      `json:"targetTemperature"`
	ThresholdTemperature *float64      `json:"thresholdTemperature"`
	DisplayUnits         *DisplayUnits `json:"displayUnitPreference"`
}

// Store is the persistence collaborator: one small blob per key.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, data []byte) error
}

// loadSetpoints reads the document stored under name. A missing document
// or missing fields fall back to defaults. The threshold always comes from
// the caller since it is a deployment constant.
func loadSetpoints(store Store, name string, threshold float64) (Setpoints, error) {
	sp := Setpoints{
		TargetTemperature:    DefaultTargetTemperature,
		ThresholdTemperature: threshold,
		DisplayUnits:         Celsius,
	}

	data, err := store.Get(name)
	if errors.Is(err, storage.ErrNotFound) {
		return sp, nil
	}
	if err != nil {
		return sp, fmt.Errorf("load setpoints %q: %w", name, err)
	}

	var p persistedSetpoints
	if err := json.Unmarshal(data, &p); err != nil {
		return sp, fmt.Errorf("%w %q: %v", ErrCorruptSetpoints, name, err)
	}
	if p.TargetTemperature != nil {
		sp.TargetTemperature = *p.TargetTemperature
	}
	if p.DisplayUnits != nil {
		sp.DisplayUnits = *p.DisplayUnits
	}
	return sp, nil
}

func saveSetpoints(store Store, name string, sp Setpoints) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("encode setpoints: %w", err)
	}
	if err := store.Set(name, data); err != nil {
		return fmt.Errorf("save setpoints %q: %w", name, err)
	}
	return nil
}
