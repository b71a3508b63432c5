package pilottypes

import (
	"context"
	"time"
)

// DeviceInfo describes the connected node as reported at connect time.
type DeviceInfo struct {
	Name            string // node name, also the self target label
	PublicKey       string // full hex identity of the node
	FirmwareVersion string // semantic version string, e.g. "1.7.2"
	FirmwareBuild   string // build date or hash as reported
	Model           string
	MaxChannels     int // number of broadcast channels the firmware exposes

	TxPower  int     // dBm
	Lat, Lon float64 // configured node position

	// Radio parameters
	Freq string // MHz
	BW   string // kHz
	SF   int    // spreading factor
	CR   int    // coding rate
}

// SelfContact returns a synthetic contact describing the node itself.
func (d DeviceInfo) SelfContact() Contact {
	return Contact{Identity: d.PublicKey, Name: d.Name, Kind: KindChat}
}

// Link is the transport-level connection to a companion radio. All blocking
// operations honor their context; asynchronous traffic surfaces on Events.
//
// Send-style operations return a SendResult carrying the acknowledgment
// token the caller can wait on. Operations that only push bytes to the radio
// return plain errors.
type Link interface {
	// Info returns the device description captured during the handshake.
	Info() DeviceInfo

	// Contacts fetches the node's synced contact list.
	Contacts(ctx context.Context) ([]Contact, error)

	// SendMessage sends a direct text message to a contact.
	SendMessage(ctx context.Context, c Contact, text string) (SendResult, error)

	// SendChannelMessage broadcasts text on a channel. Broadcasts are not
	// acknowledged, so the result carries no token.
	SendChannelMessage(ctx context.Context, channel int, text string) (SendResult, error)

	// SendCommand sends a repeater or room-server command line. The answer
	// arrives as a command-reply message event.
	SendCommand(ctx context.Context, c Contact, cmd string) (SendResult, error)

	// Login authenticates against a room server or repeater. The outcome
	// arrives as a login result event.
	Login(ctx context.Context, c Contact, password string) (SendResult, error)

	// Logout ends an authenticated session with a node.
	Logout(ctx context.Context, c Contact) error

	// StatusRequest asks a repeater for its status block.
	StatusRequest(ctx context.Context, c Contact) (SendResult, error)

	// TelemetryRequest asks a node for its telemetry block.
	TelemetryRequest(ctx context.Context, c Contact) (SendResult, error)

	// SendCLI passes a raw command line to the device's own CLI and returns
	// its textual reply.
	SendCLI(ctx context.Context, line string) (string, error)

	// QueryDevice runs a device query ("q" verb) and returns its reply.
	QueryDevice(ctx context.Context, query string) (string, error)

	// AddContact pushes a contact record to the node.
	AddContact(ctx context.Context, c Contact) error

	// RemoveContact deletes a contact from the node.
	RemoveContact(ctx context.Context, c Contact) error

	// ResetPath clears the stored route for a contact, reverting to flood.
	ResetPath(ctx context.Context, c Contact) error

	// ChangePath installs an explicit route for a contact.
	ChangePath(ctx context.Context, c Contact, path string) error

	// ShareContact rebroadcasts a contact so nearby nodes can learn it.
	ShareContact(ctx context.Context, c Contact) error

	// ExportContact serializes a contact (or the node itself when c is nil)
	// to a shareable URI.
	ExportContact(ctx context.Context, c *Contact) (string, error)

	// ImportContact ingests a shareable contact URI.
	ImportContact(ctx context.Context, uri string) error

	// SendAdvert broadcasts the node's own advertisement. flood selects a
	// network-wide advert over a zero-hop one.
	SendAdvert(ctx context.Context, flood bool) error

	// Time reads the device clock.
	Time(ctx context.Context) (time.Time, error)

	// SetTime sets the device clock.
	SetTime(ctx context.Context, t time.Time) error

	// Battery reads the battery level in millivolts.
	Battery(ctx context.Context) (int, error)

	// SetName renames the node.
	SetName(ctx context.Context, name string) error

	// SetTxPower sets the transmit power in dBm.
	SetTxPower(ctx context.Context, dbm int) error

	// SetRadio configures frequency, bandwidth, spreading factor and coding
	// rate in one call.
	SetRadio(ctx context.Context, freq, bw string, sf, cr int) error

	// SetCoords sets the node's advertised position.
	SetCoords(ctx context.Context, lat, lon float64) error

	// SetPin sets the pairing PIN; empty disables it.
	SetPin(ctx context.Context, pin string) error

	// SetTuning adjusts the delay factors used when sizing reply waits.
	SetTuning(ctx context.Context, rxDelayBase, afterTx int) error

	// Reboot restarts the device.
	Reboot(ctx context.Context) error

	// NextMessage pulls one queued message when the device signals a
	// non-empty queue. ok is false when the queue is empty.
	NextMessage(ctx context.Context) (ev Event, ok bool, err error)

	// Events is the stream of asynchronous device events. It closes when
	// the link shuts down.
	Events() <-chan Event

	// Close tears the connection down. Safe to call more than once.
	Close() error
}
