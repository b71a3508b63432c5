package config

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultAckTimeout is the fallback wait for a delivery acknowledgment when
// neither the contact nor the device suggests anything better.
const DefaultAckTimeout = 5 * time.Second

// Console option names accepted by `set`/`get`.
const (
	OptColor      = "color"
	OptPrintSNR   = "print_snr"
	OptJSONMsgs   = "json_msgs"
	OptAckTimeout = "ack_timeout"
)

// Options holds the console's runtime-tunable settings. One instance is
// shared between the session loop, the printer, and the `set`/`get`
// commands, so access is mutex-guarded.
type Options struct {
	mu sync.RWMutex

	color         bool
	printSNR      bool
	jsonMessages  bool
	machineOutput bool
	ackTimeout    time.Duration
}

// NewOptions returns options with defaults: color on, SNR and JSON rendering
// off, the standard ack timeout.
func NewOptions() *Options {
	return &Options{
		color:      true,
		ackTimeout: DefaultAckTimeout,
	}
}

// Color reports whether styled output is enabled.
func (o *Options) Color() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.color
}

// SetColor toggles styled output.
func (o *Options) SetColor(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.color = on
}

// PrintSNR reports whether incoming messages show their signal quality.
func (o *Options) PrintSNR() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.printSNR
}

// SetPrintSNR toggles signal quality display.
func (o *Options) SetPrintSNR(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.printSNR = on
}

// JSONMessages reports whether incoming messages render as JSON objects.
func (o *Options) JSONMessages() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.jsonMessages
}

// SetJSONMessages toggles JSON message rendering.
func (o *Options) SetJSONMessages(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jsonMessages = on
}

// MachineOutput reports whether command results render machine-readable.
func (o *Options) MachineOutput() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.machineOutput
}

// SetMachineOutput toggles machine-readable command results.
func (o *Options) SetMachineOutput(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.machineOutput = on
}

// AckTimeout returns the fallback acknowledgment wait.
func (o *Options) AckTimeout() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ackTimeout
}

// SetAckTimeout replaces the fallback acknowledgment wait. Non-positive
// values restore the default.
func (o *Options) SetAckTimeout(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if d <= 0 {
		d = DefaultAckTimeout
	}
	o.ackTimeout = d
}

// ConsoleOptionNames lists the names `set`/`get` accept, sorted.
func ConsoleOptionNames() []string {
	names := []string{OptColor, OptPrintSNR, OptJSONMsgs, OptAckTimeout}
	sort.Strings(names)
	return names
}

// SetByName applies a console option from its string form. Boolean options
// accept on/off, true/false and 1/0.
func (o *Options) SetByName(name, value string) error {
	switch name {
	case OptColor:
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		o.SetColor(on)
	case OptPrintSNR:
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		o.SetPrintSNR(on)
	case OptJSONMsgs:
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		o.SetJSONMessages(on)
	case OptAckTimeout:
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil || secs < 0 {
			return fmt.Errorf("invalid timeout %q: want seconds", value)
		}
		o.SetAckTimeout(time.Duration(secs * float64(time.Second)))
	default:
		return fmt.Errorf("unknown console option %q", name)
	}
	return nil
}

// GetByName returns a console option's string form.
func (o *Options) GetByName(name string) (string, bool) {
	switch name {
	case OptColor:
		return formatBool(o.Color()), true
	case OptPrintSNR:
		return formatBool(o.PrintSNR()), true
	case OptJSONMsgs:
		return formatBool(o.JSONMessages()), true
	case OptAckTimeout:
		return strconv.FormatFloat(o.AckTimeout().Seconds(), 'g', -1, 64), true
	default:
		return "", false
	}
}

func parseBool(s string) (bool, error) {
	switch s {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q: want on or off", s)
	}
}

func formatBool(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
