// Package devicesim is an in-process companion device. It implements the
// same Link contract a radio transport driver does, driven by a scenario
// instead of RF: configured contacts answer sends with acknowledgments,
// repeaters accept logins and status requests, and scripted events arrive
// on a timetable. Sessions reach it through sim: addresses; tests drive it
// directly through its injection hooks.
package devicesim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"meshpilot/pkg/pilottypes"
)

// Scenario describes the simulated node and the mesh around it. Delays are
// in milliseconds, matching the device wire convention.
type Scenario struct {
	Node     NodeConfig      `yaml:"node"`
	Contacts []ContactConfig `yaml:"contacts"`
	Script   []ScriptedEvent `yaml:"script"`

	// CLIReplies answers SendCLI lines by exact match.
	CLIReplies map[string]string `yaml:"cli_replies"`
}

// NodeConfig is the simulated device itself.
type NodeConfig struct {
	Name        string  `yaml:"name"`
	PublicKey   string  `yaml:"public_key"`
	Firmware    string  `yaml:"firmware"`
	Build       string  `yaml:"build"`
	Model       string  `yaml:"model"`
	MaxChannels int     `yaml:"max_channels"`
	BatteryMV   int     `yaml:"battery_mv"`
	TxPower     int     `yaml:"tx_power"`
	Lat         float64 `yaml:"lat"`
	Lon         float64 `yaml:"lon"`
	Freq        string  `yaml:"freq"`
	BW          string  `yaml:"bw"`
	SF          int     `yaml:"sf"`
	CR          int     `yaml:"cr"`
}

// ContactConfig is one simulated peer and how it behaves.
type ContactConfig struct {
	Name      string `yaml:"name"`
	PublicKey string `yaml:"public_key"`
	Kind      string `yaml:"kind"` // chat|repeater|room|sensor
	OutPath   string `yaml:"out_path"`

	// Behavior knobs
	AckDelayMS       int    `yaml:"ack_delay_ms"`       // 0 = DefaultAckDelay
	ReplyDelayMS     int    `yaml:"reply_delay_ms"`     // login/status/command replies
	DropAcks         bool   `yaml:"drop_acks"`          // never acknowledge sends
	SuggestTimeoutMS int    `yaml:"suggest_timeout_ms"` // advertised in SendResult
	Echo             bool   `yaml:"echo"`               // echoes direct messages back
	Password         string `yaml:"password"`           // login secret; "" accepts any
	Admin            bool   `yaml:"admin"`              // grant admin on login

	Status         map[string]any    `yaml:"status"`          // status reply payload
	Telemetry      map[string]any    `yaml:"telemetry"`       // telemetry reply payload
	CommandReplies map[string]string `yaml:"command_replies"` // remote command answers
}

// ScriptedEvent is a timetable entry emitted after the session starts.
type ScriptedEvent struct {
	AfterMS int     `yaml:"after_ms"`
	Kind    string  `yaml:"kind"` // message|channel|advert|path_update|new_contact
	From    string  `yaml:"from"` // contact name for message/path_update kinds
	Name    string  `yaml:"name"` // advert/new_contact display name
	Key     string  `yaml:"key"`  // advert/new_contact identity; derived from name if empty
	Text    string  `yaml:"text"`
	Channel int     `yaml:"channel"`
	Path    string  `yaml:"path"`
	SNR     float64 `yaml:"snr"`
}

// LoadScenario reads a scenario from a yaml file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	return &sc, nil
}

// DefaultScenario is the mesh a bare sim: address connects to: an echoing
// chat peer, a password-protected repeater, a room server and a sensor.
func DefaultScenario() *Scenario {
	return &Scenario{
		Node: NodeConfig{
			Name:        "sim-base",
			Firmware:    "1.7.0",
			Build:       "sim",
			Model:       "Simulated Companion",
			MaxChannels: 4,
			BatteryMV:   4096,
			TxPower:     22,
			Freq:        "869.525",
			BW:          "250",
			SF:          11,
			CR:          5,
		},
		Contacts: []ContactConfig{
			{Name: "alice", Kind: "chat", Echo: true},
			{Name: "ridge-rpt", Kind: "repeater", OutPath: "23", Password: "campfire", Admin: true,
				Status: map[string]any{"bat": 4012, "uptime": 86400, "airtime": 1220},
				CommandReplies: map[string]string{
					"ver": "MeshCore repeater v1.7.0",
				}},
			{Name: "camp-room", Kind: "room", Password: ""},
			{Name: "meteo-1", Kind: "sensor",
				Telemetry: map[string]any{"temperature": 18.5, "humidity": 61}},
		},
		CLIReplies: map[string]string{
			"ver": "Simulated Companion v1.7.0",
		},
	}
}

// IdentityFor derives the deterministic 32-byte identity the simulator
// assigns to a name when the scenario does not pin a public key.
func IdentityFor(name string) string {
	sum := sha256.Sum256([]byte("devicesim:" + name))
	return hex.EncodeToString(sum[:])
}

// AckFor predicts the acknowledgment code the simulator generates for a
// direct message, so tests can register exact-token waits up front.
func AckFor(identity, text string) pilottypes.AckCode {
	sum := sha256.Sum256([]byte(identity + "|" + text))
	return pilottypes.AckCodeFromBytes(sum[:4])
}

func (c ContactConfig) contact() pilottypes.Contact {
	kind, ok := pilottypes.ParseContactKind(c.Kind)
	if !ok {
		kind = pilottypes.KindChat
	}
	identity := c.PublicKey
	if identity == "" {
		identity = IdentityFor(c.Name)
	}
	return pilottypes.Contact{
		Identity: identity,
		Name:     c.Name,
		Kind:     kind,
		OutPath:  c.OutPath,
	}
}

func (c ContactConfig) ackDelay() time.Duration {
	if c.AckDelayMS > 0 {
		return time.Duration(c.AckDelayMS) * time.Millisecond
	}
	return DefaultAckDelay
}

func (c ContactConfig) replyDelay() time.Duration {
	if c.ReplyDelayMS > 0 {
		return time.Duration(c.ReplyDelayMS) * time.Millisecond
	}
	return DefaultReplyDelay
}
