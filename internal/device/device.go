// Package device opens the connection to a companion radio and answers
// capability questions about its firmware. The console talks to the radio
// exclusively through pilottypes.Link; this package decides which driver
// backs that interface for a given address.
package device

import (
	"errors"
	"fmt"
	"strings"

	"meshpilot/internal/device/devicesim"
	"meshpilot/internal/logger"
	"meshpilot/internal/version"
	"meshpilot/pkg/pilottypes"
)

// ErrUnsupported marks address schemes whose transport driver is not
// compiled into this binary.
var ErrUnsupported = errors.New("unsupported transport")

// Firmware minimums for optional companion features, quoted in the errors
// a gated command reports on older firmware.
const (
	MinPendingFirmware   = "1.5.0"
	MinTelemetryFirmware = "1.4.0"
)

// Open connects to the device named by a scheme-qualified address:
//
//	sim:            built-in simulator with a default scenario
//	sim:<file.yaml> built-in simulator driven by a scenario file
//	tcp://host:port companion over WiFi (external driver)
//	serial:<dev>    companion over USB (external driver)
//	ble:<name>      companion over Bluetooth LE (external driver)
//
// Only the simulator ships in-process; radio transports are separate
// drivers and report ErrUnsupported here.
func Open(address string) (pilottypes.Link, error) {
	scheme, rest, found := strings.Cut(address, ":")
	if !found {
		// A bare token is a BLE device name, the historical default.
		scheme, rest = "ble", address
	}

	logger.Debug("Opening device", "scheme", scheme, "address", address)

	switch scheme {
	case "sim":
		return devicesim.Open(rest)
	case "tcp", "serial", "ble":
		return nil, fmt.Errorf("%w: %s requires an external transport driver", ErrUnsupported, scheme)
	default:
		return nil, fmt.Errorf("%w: unknown address scheme %q", ErrUnsupported, scheme)
	}
}

// SupportsPending reports whether the firmware pushes advertisements for
// unknown identities as pending contacts instead of auto-adding them.
func SupportsPending(info pilottypes.DeviceInfo) bool {
	return version.FirmwareAtLeast(info.FirmwareVersion, MinPendingFirmware)
}

// SupportsTelemetry reports whether the firmware answers telemetry
// requests.
func SupportsTelemetry(info pilottypes.DeviceInfo) bool {
	return version.FirmwareAtLeast(info.FirmwareVersion, MinTelemetryFirmware)
}
