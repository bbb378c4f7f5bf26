package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/Agrid-Dev/jemheater/cmd/app"
	homekitctrl "github.com/Agrid-Dev/jemheater/internal/controllers/homekit"
	httpctrl "github.com/Agrid-Dev/jemheater/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/jemheater/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/jemheater/internal/controllers/mqtt"
	"github.com/Agrid-Dev/jemheater/internal/device"
	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/logging"
	"github.com/Agrid-Dev/jemheater/internal/metrics"
	"github.com/Agrid-Dev/jemheater/internal/relay"
	"github.com/Agrid-Dev/jemheater/internal/storage"
	"github.com/Agrid-Dev/jemheater/internal/switchbot"
	"github.com/Agrid-Dev/jemheater/internal/temperature"
)

const metricsInterval = 10 * time.Second

func main() {
	var (
		configPath  string
		printConfig bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if printConfig {
		b, err := cfg.YAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(b)
		return
	}

	log, closer, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(err, "exiting")
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.Config, log logr.Logger) error {
	m := metrics.New()

	term, fetcher, err := newHardware(cfg, log)
	if err != nil {
		return err
	}
	term.Subscribe(m.ObserveRelay)

	src := temperature.NewSource(fetcher, log, temperature.WithPollObserver(m.ObservePoll))

	h, err := heater.New(heater.Config{
		Name:                 cfg.Name,
		ThresholdTemperature: cfg.Options.ThresholdTemperature,
	}, m.InstrumentRelay(term), src, storage.NewFileStore(cfg.StateDir), log)
	if err != nil {
		return fmt.Errorf("load setpoints: %w", err)
	}

	dev := device.New(cfg.DeviceID, h, src, term, log)
	if err := dev.Ready(cfg.Options.PollInterval()); err != nil {
		return err
	}
	defer func() {
		if err := dev.Shutdown(); err != nil {
			log.Error(err, "shutdown")
		}
	}()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(err, "controller exited", "controller", name)
			}
		}()
	}

	start("metrics", func(ctx context.Context) error {
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()
		for {
			m.ObserveSnapshot(h.Get())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	c := cfg.Controllers
	if c.HTTP.Enabled {
		srv := httpctrl.New(h, c.HTTP.Addr, cfg.DeviceID, m.Handler())
		log.Info("http listening", "addr", c.HTTP.Addr)
		start("http", srv.Run)
	}
	if c.MQTT.Enabled {
		mc, err := mqttctrl.New(h, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       c.MQTT.BrokerURL,
			ClientID:        c.MQTT.ClientID,
			BaseTopic:       c.MQTT.BaseTopic,
			QoS:             c.MQTT.QoS,
			RetainSnapshot:  c.MQTT.RetainSnapshot,
			PublishInterval: c.MQTT.PublishInterval,
			Username:        c.MQTT.Username,
			Password:        c.MQTT.Password,
		}, log)
		if err != nil {
			return err
		}
		start("mqtt", mc.Run)
	}
	if c.MODBUS.Enabled {
		mb, err := modbusctrl.New(h, modbusctrl.Config{
			DeviceID: cfg.DeviceID,
			Addr:     c.MODBUS.Addr,
			UnitID:   c.MODBUS.UnitID,
		}, log)
		if err != nil {
			return err
		}
		start("modbus", mb.Run)
	}
	if c.HomeKit.Enabled {
		hk, err := homekitctrl.New(h, h, homekitctrl.Config{
			DeviceID:     cfg.DeviceID,
			Name:         cfg.Name,
			Pin:          c.HomeKit.Pin,
			Addr:         c.HomeKit.Addr,
			StoreDir:     c.HomeKit.StoreDir,
			SyncInterval: c.HomeKit.SyncInterval,
		}, log)
		if err != nil {
			return err
		}
		start("homekit", hk.Run)
	}

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	return nil
}

// newHardware returns the relay terminal and the temperature fetcher, real
// or simulated.
func newHardware(cfg app.Config, log logr.Logger) (relay.Terminal, temperature.Fetcher, error) {
	if cfg.Options.Simulate {
		term := relay.NewFakeTerminal(false)
		sim, err := temperature.NewSimulator(temperature.SimulatorParams{
			InitialTemperature: cfg.Simulator.InitialTemperature,
			OutdoorTemperature: cfg.Simulator.OutdoorTemperature,
			Coefficient:        cfg.Simulator.Coefficient,
			HeatingRate:        cfg.Simulator.HeatingRate,
		}, term.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("simulator: %w", err)
		}
		log.Info("running simulated relay and sensor")
		return term, sim, nil
	}

	sb, err := switchbot.New(switchbot.Config{
		BaseURL:  cfg.Options.BaseURL,
		Token:    cfg.Options.Token,
		DeviceID: cfg.Options.DeviceID,
	}, nil)
	if err != nil {
		return nil, nil, err
	}
	term := relay.NewJEMATerminal(relay.JEMAConfig{
		Chip:          cfg.Terminal.Chip,
		ControlPin:    cfg.Terminal.ControlPin,
		MonitorPin:    cfg.Terminal.MonitorPin,
		PulseDuration: cfg.Terminal.Pulse,
		ActiveLow:     cfg.Terminal.ActiveLow,
	})
	return term, sb, nil
}
