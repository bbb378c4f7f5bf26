package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/ports"
)

const commandTimeout = 5 * time.Second

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc ports.HeaterService
	cfg Config
	log logr.Logger

	client mqtt.Client
}

func New(svc ports.HeaterService, cfg Config, log logr.Logger) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "jemheater/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "jemheater-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: log.WithName("mqtt"),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		// Subscribe to all set commands under BaseTopic.
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error(err, "subscribe failed", "topic", topic)
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.log.Info("connected", "broker", c.cfg.BrokerURL, "base_topic", c.cfg.BaseTopic)

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	var last heater.Snapshot
	first := true

	// publish immediately once
	c.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			cur := c.svc.Get()
			if first || !reflect.DeepEqual(cur, last) {
				c.publishSnapshot()
				last = cur
				first = false
			}
		}
	}
}

func (c *Controller) publishSnapshot() {
	s := c.svc.Get()
	dto := snapshotDTO{
		Name:                 s.Name,
		CurrentTemperature:   s.CurrentTemperature,
		TargetTemperature:    s.TargetTemperature,
		ThresholdTemperature: s.ThresholdTemperature,
		DisplayUnits:         s.DisplayUnits.String(),
		HeatingState:         s.Heating.String(),
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic("snapshot"), c.cfg.QoS, c.cfg.RetainSnapshot, b)
}

type snapshotDTO struct {
	Name                 string  `json:"name"`
	CurrentTemperature   float64 `json:"current_temperature"`
	TargetTemperature    float64 `json:"target_temperature"`
	ThresholdTemperature float64 `json:"threshold_temperature"`
	DisplayUnits         string  `json:"display_units"`
	HeatingState         string  `json:"heating_state"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := c.cfg.BaseTopic + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	// Dispatch by field
	switch field {
	case "target_state":
		var s string
		if s, err = decodeValueStrict[string](payload); err != nil {
			break
		}
		var st heater.TargetState
		if st, err = heater.ParseTargetState(s); err != nil {
			break
		}
		err = c.svc.SetTargetState(ctx, st)

	case "target_temperature":
		var v float64
		if v, err = decodeValueStrict[float64](payload); err != nil {
			break
		}
		err = c.svc.SetTargetTemperature(ctx, v)

	case "threshold_temperature":
		var v float64
		if v, err = decodeValueStrict[float64](payload); err != nil {
			break
		}
		err = c.svc.SetThresholdTemperature(ctx, v)

	case "display_units":
		var s string
		if s, err = decodeValueStrict[string](payload); err != nil {
			break
		}
		var u heater.DisplayUnits
		if u, err = heater.ParseDisplayUnits(s); err != nil {
			break
		}
		err = c.svc.SetDisplayUnits(u)

	default:
		c.log.V(1).Info("ignoring unknown field", "topic", t)
		return
	}

	if err != nil {
		c.log.Error(err, "command rejected", "field", field)
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
