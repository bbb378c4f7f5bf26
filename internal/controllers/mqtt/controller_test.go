package mqttctrl

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/testutil"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeToken struct {
	err  error
	done chan struct{}
}

func (t fakeToken) Done() <-chan struct{} {
	if t.done == nil {
		t.done = make(chan struct{})
		close(t.done)
	}
	return t.done
}

func (t fakeToken) Wait() bool                       { return true }
func (t fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t fakeToken) Error() error                     { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	publishes []publishCall
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return fakeToken{} }
func (c *fakeClient) Disconnect(_ uint)      {}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	default:
		// shouldn't happen in our controller, but keep it safe
		tmp, _ := json.Marshal(v)
		b = tmp
	}
	c.publishes = append(c.publishes, publishCall{
		topic: topic, qos: qos, retain: retained, payload: b,
	})
	return fakeToken{}
}
func (c *fakeClient) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) Unsubscribe(_ ...string) mqtt.Token       { return fakeToken{} }
func (c *fakeClient) AddRoute(_ string, _ mqtt.MessageHandler) {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader  { return mqtt.ClientOptionsReader{} }

// ---- tests ----
func newDefaultSvc() *testutil.FakeHeaterService {
	return testutil.NewFakeHeaterService()
}

func newTestController(t *testing.T, svc *testutil.FakeHeaterService) (*Controller, *fakeClient) {
	t.Helper()
	c, err := New(svc, Config{DeviceID: "room101"}, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	fc := &fakeClient{}
	c.client = fc
	return c, fc
}

func TestNewDefaults(t *testing.T) {
	svc := newDefaultSvc()
	c, err := New(svc, Config{DeviceID: "room101"}, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}

	if c.cfg.BrokerURL != "tcp://localhost:1883" {
		t.Fatalf("expected default BrokerURL, got %q", c.cfg.BrokerURL)
	}
	if c.cfg.BaseTopic != "jemheater/room101" {
		t.Fatalf("expected default BaseTopic, got %q", c.cfg.BaseTopic)
	}
	if c.cfg.ClientID != "jemheater-room101" {
		t.Fatalf("expected default ClientID, got %q", c.cfg.ClientID)
	}
	if c.cfg.PublishInterval != 1*time.Second {
		t.Fatalf("expected default PublishInterval, got %v", c.cfg.PublishInterval)
	}
}

func TestNewValidation(t *testing.T) {
	svc := newDefaultSvc()

	if _, err := New(svc, Config{}, logr.Discard()); err == nil {
		t.Fatal("expected error when DeviceID missing")
	}

	if _, err := New(svc, Config{DeviceID: "x", QoS: 2}, logr.Discard()); err == nil {
		t.Fatal("expected error when QoS > 1")
	}
}

func TestTopicJoin(t *testing.T) {
	svc := newDefaultSvc()
	c, err := New(svc, Config{DeviceID: "room101", BaseTopic: "jemheater/room101/"}, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if got := c.topic("snapshot"); got != "jemheater/room101/snapshot" {
		t.Fatalf("expected topic without double slashes, got %q", got)
	}
}

func TestDecodeValueStrict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		v, err := decodeValueStrict[float64]([]byte(`{"value": 12.5}`))
		if err != nil {
			t.Fatal(err)
		}
		if v != 12.5 {
			t.Fatalf("expected 12.5, got %v", v)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		_, err := decodeValueStrict[bool]([]byte(`{}`))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := decodeValueStrict[string]([]byte(`{"value":"heat","extra":1}`))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeValueStrict[string]([]byte(`{"value":`))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestOnMessage_IgnoresWrongPrefix(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "otherprefix/set/target_state",
		payload: []byte(`{"value":"heat"}`),
	})

	if svc.SetTargetStateCalled {
		t.Fatal("expected SetTargetState not called")
	}
}

func TestOnMessage_TargetState(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/target_state",
		payload: []byte(`{"value":"heat"}`),
	})

	if !svc.SetTargetStateCalled || svc.SetTargetStateArg != heater.TargetHeat {
		t.Fatalf("expected SetTargetState(Heat), got called=%v arg=%v", svc.SetTargetStateCalled, svc.SetTargetStateArg)
	}
}

func TestOnMessage_TargetStateInvalid_DoesNotCallService(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/target_state",
		payload: []byte(`{"value":"weird"}`),
	})

	if svc.SetTargetStateCalled {
		t.Fatal("expected SetTargetState not called")
	}
}

func TestOnMessage_TargetTemperature(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/target_temperature",
		payload: []byte(`{"value":18.5}`),
	})

	if !svc.SetTargetTemperatureCalled || svc.SetTargetTemperatureArg != 18.5 {
		t.Fatalf("expected SetTargetTemperature(18.5), got called=%v arg=%v", svc.SetTargetTemperatureCalled, svc.SetTargetTemperatureArg)
	}
}

func TestOnMessage_ThresholdTemperature(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/threshold_temperature",
		payload: []byte(`{"value":25}`),
	})

	if !svc.SetThresholdTemperatureCalled || svc.SetThresholdTemperatureArg != 25 {
		t.Fatalf("expected SetThresholdTemperature(25), got called=%v arg=%v", svc.SetThresholdTemperatureCalled, svc.SetThresholdTemperatureArg)
	}
}

func TestOnMessage_DisplayUnits(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/display_units",
		payload: []byte(`{"value":"fahrenheit"}`),
	})

	if !svc.SetDisplayUnitsCalled || svc.SetDisplayUnitsArg != heater.Fahrenheit {
		t.Fatalf("expected SetDisplayUnits(Fahrenheit), got called=%v arg=%v", svc.SetDisplayUnitsCalled, svc.SetDisplayUnitsArg)
	}
}

func TestOnMessage_DisplayUnitsInvalid_DoesNotCallService(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/display_units",
		payload: []byte(`{"value":"kelvin"}`),
	})

	if svc.SetDisplayUnitsCalled {
		t.Fatal("expected SetDisplayUnits not called")
	}
}

func TestPublishSnapshot_PublishesJSON(t *testing.T) {
	svc := newDefaultSvc()
	c, _ := New(svc, Config{DeviceID: "room101", QoS: 1, RetainSnapshot: true}, logr.Discard())

	fc := &fakeClient{}
	c.client = fc

	c.publishSnapshot()

	if len(fc.publishes) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(fc.publishes))
	}

	p := fc.publishes[0]
	if p.topic != "jemheater/room101/snapshot" {
		t.Fatalf("expected snapshot topic, got %q", p.topic)
	}
	if p.qos != 1 || p.retain != true {
		t.Fatalf("expected qos=1 retain=true, got qos=%d retain=%v", p.qos, p.retain)
	}

	var got map[string]any
	if err := json.Unmarshal(p.payload, &got); err != nil {
		t.Fatalf("invalid published json: %v payload=%s", err, string(p.payload))
	}
	if got["heating_state"] != "off" {
		t.Fatalf("expected heating_state=off, got %v", got["heating_state"])
	}
	if got["display_units"] != "celsius" {
		t.Fatalf("expected display_units=celsius, got %v", got["display_units"])
	}
}

// Service errors are logged, not propagated to the broker.
func TestOnMessage_ServiceError_IsIgnored(t *testing.T) {
	svc := newDefaultSvc()
	svc.SetTargetTemperatureErr = errors.New("boom")
	c, _ := newTestController(t, svc)

	c.onMessage(nil, fakeMessage{
		topic:   "jemheater/room101/set/target_temperature",
		payload: []byte(`{"value":25}`),
	})

	if !svc.SetTargetTemperatureCalled {
		t.Fatal("expected SetTargetTemperature called")
	}
}
