package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"
	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/ports"
)

// Register map.
//
//	coil 0            relay (write: 0xFF00 heat, 0x0000 off)
//	holding 0         target temperature  (x100, signed)
//	holding 1         threshold temperature (x100, signed)
//	holding 2         display units (0 celsius, 1 fahrenheit)
//	input 0           current temperature (x100, signed)
//	input 1           heating state (0 off, 1 heat)
const (
	holdingRegisters = 3
	inputRegisters   = 2
)

const commandTimeout = 5 * time.Second

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.HeaterService
	cfg Config
	log logr.Logger

	serv *mbserver.Server
}

func New(svc ports.HeaterService, cfg Config, log logr.Logger) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	return &Controller{svc: svc, cfg: cfg, log: log.WithName("modbus")}, nil
}

// Run starts the Modbus server and registers handlers that apply writes immediately and
// provide reads directly from the heater service. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.readHoldingRegisters)
	serv.RegisterFunctionHandler(4, c.readInputRegisters)
	serv.RegisterFunctionHandler(5, c.writeSingleCoil)
	serv.RegisterFunctionHandler(6, c.writeSingleRegister)
	serv.RegisterFunctionHandler(16, c.writeMultipleRegisters)

	// Now start listening after all handlers are registered.
	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}
	c.log.Info("listening", "addr", c.cfg.Addr, "unit_id", c.cfg.UnitID)

	// Block until ctx.Done()
	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

// Read Coils (function 1) - coil 0 is the relay.
func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ok := readRequest(frame)
	if !ok || qty == 0 || qty > 2000 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start != 0 || qty != 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	coilByte := byte(0)
	if c.svc.Get().Heating == heater.HeatingHeat {
		coilByte = 0x01
	}
	// response: byte count (1) + coil bytes
	return []byte{1, coilByte}, &mbserver.Success
}

// Read Holding Registers (function 3).
func (c *Controller) readHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ok := readRequest(frame)
	if !ok || qty == 0 || qty > 125 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start+qty > holdingRegisters {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	snap := c.svc.Get()
	all := []uint16{
		encodeTemp(snap.TargetTemperature),
		encodeTemp(snap.ThresholdTemperature),
		uint16(snap.DisplayUnits),
	}
	return registerResponse(all[start : start+qty]), &mbserver.Success
}

// Read Input Registers (function 4).
func (c *Controller) readInputRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ok := readRequest(frame)
	if !ok || qty == 0 || qty > 125 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start+qty > inputRegisters {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	snap := c.svc.Get()
	all := []uint16{
		encodeTemp(snap.CurrentTemperature),
		uint16(snap.Heating),
	}
	return registerResponse(all[start : start+qty]), &mbserver.Success
}

// Write Single Coil (function 5) - relay.
func (c *Controller) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if addr != 0 {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	var state heater.TargetState
	switch value {
	case 0x0000:
		state = heater.TargetOff
	case 0xFF00:
		state = heater.TargetHeat
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.svc.SetTargetState(ctx, state); err != nil {
		c.log.Error(err, "set target state failed")
		return []byte{}, &mbserver.SlaveDeviceFailure
	}

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Single Register (function 6)
func (c *Controller) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if exc := c.writeRegister(int(addr), value); exc != nil {
		return []byte{}, exc
	}

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Multiple Registers (function 16)
func (c *Controller) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	for i := 0; i < int(quantity); i++ {
		val := binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
		if exc := c.writeRegister(int(start)+i, val); exc != nil {
			return []byte{}, exc
		}
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

func (c *Controller) writeRegister(addr int, value uint16) *mbserver.Exception {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch addr {
	case 0:
		err = c.svc.SetTargetTemperature(ctx, decodeTemp(value))
	case 1:
		err = c.svc.SetThresholdTemperature(ctx, decodeTemp(value))
	case 2:
		u := heater.DisplayUnits(value)
		if !u.Valid() {
			return &mbserver.IllegalDataValue
		}
		err = c.svc.SetDisplayUnits(u)
	default:
		return &mbserver.IllegalDataAddress
	}
	if err != nil {
		c.log.Error(err, "register write failed", "register", addr)
		return &mbserver.SlaveDeviceFailure
	}
	return nil
}

func readRequest(frame mbserver.Framer) (start, qty int, ok bool) {
	data := frame.GetData()
	if len(data) < 4 {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(data[0:2])), int(binary.BigEndian.Uint16(data[2:4])), true
}

// registerResponse builds byte count + register bytes.
func registerResponse(regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[1+i*2:1+i*2+2], r)
	}
	return resp
}

const TemperatureScale int = 100

func encodeTemp(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16), math.MaxInt16)
	return uint16(int16(r))
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}
