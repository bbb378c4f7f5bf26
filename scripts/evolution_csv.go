package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-logr/logr"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/relay"
	"github.com/Agrid-Dev/jemheater/internal/storage"
	"github.com/Agrid-Dev/jemheater/internal/temperature"
)

type SetpointCommand struct {
	IterationNumber int
	Value           float64
}

type reading struct{ v float64 }

func (r *reading) CurrentValue() float64 { return r.v }

// SimulateHeater runs the hysteresis against the heat-loss model, one poll
// per iteration, and writes the trace to filename.
func SimulateHeater(iterations int, poll time.Duration, filename string, setpointCommands []SetpointCommand) error {
	term := relay.NewFakeTerminal(false)
	sim, err := temperature.NewSimulator(temperature.SimulatorParams{
		InitialTemperature: 18,
		OutdoorTemperature: 5,
		Coefficient:        1e-3,
		HeatingRate:        5e-3,
	}, term.Value)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %v", err)
	}

	stateDir, err := os.MkdirTemp("", "jemheater-sim")
	if err != nil {
		return err
	}
	defer os.RemoveAll(stateDir)

	cur := &reading{v: temperature.DefaultValue}
	h, err := heater.New(heater.Config{Name: "Simulated Heater", ThresholdTemperature: 22},
		term, cur, storage.NewFileStore(stateDir), logr.Discard())
	if err != nil {
		return fmt.Errorf("failed to create heater: %v", err)
	}

	// Create CSV file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write CSV header
	if err := writer.Write([]string{"Iteration", "Current", "Target", "Threshold", "Heating"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	ctx := context.Background()
	for i := range iterations {
		for _, cmd := range setpointCommands {
			if cmd.IterationNumber == i+1 {
				if err := h.SetTargetTemperature(ctx, cmd.Value); err != nil {
					return fmt.Errorf("failed to update target: %v", err)
				}
				break
			}
		}

		v := math.Round(sim.Step(poll)*10) / 10
		if v != cur.v {
			cur.v = v
			if err := h.OnTemperatureChanged(ctx, v); err != nil {
				return fmt.Errorf("evaluate: %v", err)
			}
		}

		snapshot := h.Get()
		if err := writer.Write([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f", snapshot.CurrentTemperature),
			fmt.Sprintf("%.2f", snapshot.TargetTemperature),
			fmt.Sprintf("%.2f", snapshot.ThresholdTemperature),
			snapshot.Heating.String(),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}
	}

	return nil
}

func main() {
	commands := []SetpointCommand{
		{
			IterationNumber: 200,
			Value:           21.0,
		},
	}
	if err := SimulateHeater(1000, time.Minute, "jemheater.csv", commands); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
