// Package telemetry reads the current plant state — battery SOC, solar
// power, and grid connection status — from the microgrid's inverter
// over Modbus, the same register layout and client shape the teacher's
// sigenergy package used for live control. Here it only reads: its one
// caller is cmd/suryadrishti's -info flag, which prints a snapshot; the
// dispatch engine's InitialSOC comes from the store, not from this
// package.
package telemetry

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// PlantAddress is the Sigenergy plant-level Modbus slave address.
const PlantAddress = 247

// Reading is one snapshot of the plant's current operating state.
type Reading struct {
	Timestamp      time.Time
	BatterySOC     float64 // fraction, 0..1
	SolarPowerKW   float64
	GridPowerKW    float64 // positive = import, negative = export
	BatteryPowerKW float64 // positive = charging, negative = discharging
	GridConnected  bool
}

// Client reads plant telemetry over Modbus. NewRTUClient and
// NewTCPClient construct one against a physical inverter; the interface
// lets another implementation stand in for the inverter.
type Client interface {
	ReadCurrent() (Reading, error)
	Close() error
}

type modbusClient struct {
	client     modbus.Client
	handler    *modbus.RTUClientHandler
	tcpHandler *modbus.TCPClientHandler
}

// NewRTUClient dials a Sigenergy-compatible inverter over RS-485.
func NewRTUClient(device string, baudRate int) (Client, error) {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = PlantAddress
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("telemetry: failed to connect RTU: %w", err)
	}
	return &modbusClient{client: modbus.NewClient(handler), handler: handler}, nil
}

// NewTCPClient dials a Sigenergy-compatible inverter over Modbus TCP.
func NewTCPClient(address string) (Client, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = PlantAddress
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("telemetry: failed to connect TCP: %w", err)
	}
	return &modbusClient{client: modbus.NewClient(handler), tcpHandler: handler}, nil
}

func (c *modbusClient) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	if c.tcpHandler != nil {
		return c.tcpHandler.Close()
	}
	return nil
}

// ReadCurrent reads the plant running-information block (52 input
// registers, 30000-30051) and extracts the fields the dispatch pipeline needs.
func (c *modbusClient) ReadCurrent() (Reading, error) {
	data, err := c.client.ReadInputRegisters(30000, 52)
	if err != nil {
		return Reading{}, fmt.Errorf("telemetry: failed to read plant running info: %w", err)
	}

	gridSensorStatus := bytesToU16(data[8:10])
	plantActivePower := float64(bytesToS32(data[62:66])) / 1000.0
	pvPower := float64(bytesToS32(data[70:74])) / 1000.0
	essPower := float64(bytesToS32(data[74:78])) / 1000.0
	essSOC := float64(bytesToU16(data[28:30])) / 10.0

	return Reading{
		Timestamp:      time.Now(),
		BatterySOC:     essSOC / 100.0,
		SolarPowerKW:   pvPower,
		GridPowerKW:    plantActivePower - pvPower + essPower,
		BatteryPowerKW: essPower,
		GridConnected:  gridSensorStatus == 1,
	}, nil
}

func bytesToU16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func bytesToS32(data []byte) int32 {
	return int32(binary.BigEndian.Uint32(data))
}
