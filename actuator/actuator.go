// Package actuator sends the dispatch engine's activate/deactivate/
// power-level decisions to a controllable device over a small text-line
// TCP protocol, the same request/response shape the teacher used to
// drive Avalon miners — a single line out, a single line (or JSON
// document) back, over a short-lived connection.
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// PowerLevel generalizes the teacher's Eco/Standard/Super miner work
// modes into the three tiers a flexible or optional device can be
// asked to run at.
type PowerLevel int

const (
	PowerLevelLow PowerLevel = iota
	PowerLevelNormal
	PowerLevelHigh
)

func (l PowerLevel) String() string {
	switch l {
	case PowerLevelLow:
		return "low"
	case PowerLevelNormal:
		return "normal"
	case PowerLevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Endpoint is a device's actuation address — the network location the
// allocation engine's decisions for this device ID get sent to.
type Endpoint struct {
	DeviceID string
	Address  string
	Port     int
}

// Device issues activation commands to a single controllable load.
// send() and dial() carry one request/response exchange per command.
type Device struct {
	Endpoint Endpoint
	dialer   net.Dialer
	timeout  time.Duration
}

// NewDevice constructs a Device actuator for the given endpoint, with a
// one-second timeout on dialing the endpoint; reading the response has
// no deadline of its own.
func NewDevice(ep Endpoint) *Device {
	return &Device{Endpoint: ep, timeout: time.Second}
}

// Activate brings the device out of standby.
func (d *Device) Activate(ctx context.Context) (string, error) {
	return d.send(ctx, func(conn net.Conn) error {
		_, err := fmt.Fprintf(conn, "ascset|0,softon,1: %d", time.Now().Unix())
		return err
	})
}

// Deactivate puts the device into standby, conserving power without
// fully powering it down.
func (d *Device) Deactivate(ctx context.Context) (string, error) {
	return d.send(ctx, func(conn net.Conn) error {
		_, err := fmt.Fprintf(conn, "ascset|0,softoff,1: %d", time.Now().Unix())
		return err
	})
}

// SetPowerLevel requests the device run at the given tier — used for
// flexible/optional devices that support throttled operation rather
// than a strict on/off.
func (d *Device) SetPowerLevel(ctx context.Context, level PowerLevel) (string, error) {
	return d.send(ctx, func(conn net.Conn) error {
		_, err := fmt.Fprintf(conn, "ascset|0,workmode,set,%d", level)
		return err
	})
}

// Status queries the device's current JSON status document.
func (d *Device) Status(ctx context.Context, out any) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(&struct {
		Command string `json:"command"`
	}{Command: "status"}); err != nil {
		return fmt.Errorf("actuator: failed to write status command: %w", err)
	}

	dec := json.NewDecoder(conn)
	return dec.Decode(out)
}

func (d *Device) send(ctx context.Context, write func(net.Conn) error) (string, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := write(conn); err != nil {
		return "", fmt.Errorf("actuator: failed to write command to %s: %w", d.Endpoint.DeviceID, err)
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("actuator: failed to read response from %s: %w", d.Endpoint.DeviceID, err)
	}
	return string(reply), nil
}

func (d *Device) dial(ctx context.Context) (net.Conn, error) {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", d.Endpoint.Address, d.Endpoint.Port))
	if err != nil {
		return nil, fmt.Errorf("actuator: failed to dial %s: %w", d.Endpoint.DeviceID, err)
	}
	return conn, nil
}
