package devicesim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"meshpilot/internal/logger"
	"meshpilot/pkg/pilottypes"
)

// Reply scheduling defaults. Acks lag a little so callers have time to
// register their wait after the send returns, like a real radio's airtime.
const (
	DefaultAckDelay   = 10 * time.Millisecond
	DefaultReplyDelay = 10 * time.Millisecond

	// SenderPrefixLen is the truncated-identity length the simulator puts
	// in message metadata, matching companion firmware.
	SenderPrefixLen = 12

	eventBuffer = 256
)

// ErrClosed is returned by operations on a shut-down simulator.
var ErrClosed = errors.New("simulator closed")

// ErrUnknownContact is returned when an operation names a contact the
// simulated node has not synced.
var ErrUnknownContact = errors.New("unknown contact")

// Sim is the simulated companion device.
type Sim struct {
	mu        sync.Mutex
	info      pilottypes.DeviceInfo
	batteryMV int
	contacts  []pilottypes.Contact
	behavior  map[string]ContactConfig // keyed by identity
	loggedIn  map[string]bool
	queue     []pilottypes.Event // pull queue for NextMessage
	clockOff  time.Duration
	closed    bool
	events    chan pilottypes.Event
	cliReply  map[string]string
	log       *log.Logger
}

var _ pilottypes.Link = (*Sim)(nil)

// Open builds a simulator from a scenario path; an empty path selects the
// default scenario.
func Open(scenarioPath string) (*Sim, error) {
	if scenarioPath == "" {
		return New(DefaultScenario()), nil
	}
	sc, err := LoadScenario(scenarioPath)
	if err != nil {
		return nil, err
	}
	return New(sc), nil
}

// New builds a simulator from an in-memory scenario and starts its script.
func New(sc *Scenario) *Sim {
	node := sc.Node
	if node.Name == "" {
		node.Name = "sim-base"
	}
	if node.PublicKey == "" {
		node.PublicKey = IdentityFor(node.Name)
	}
	if node.Firmware == "" {
		node.Firmware = "1.7.0"
	}
	if node.MaxChannels <= 0 {
		node.MaxChannels = 4
	}
	if node.BatteryMV <= 0 {
		node.BatteryMV = 4096
	}

	s := &Sim{
		info: pilottypes.DeviceInfo{
			Name:            node.Name,
			PublicKey:       node.PublicKey,
			FirmwareVersion: node.Firmware,
			FirmwareBuild:   node.Build,
			Model:           node.Model,
			MaxChannels:     node.MaxChannels,
			TxPower:         node.TxPower,
			Lat:             node.Lat,
			Lon:             node.Lon,
			Freq:            node.Freq,
			BW:              node.BW,
			SF:              node.SF,
			CR:              node.CR,
		},
		batteryMV: node.BatteryMV,
		behavior:  make(map[string]ContactConfig, len(sc.Contacts)),
		loggedIn:  make(map[string]bool),
		events:    make(chan pilottypes.Event, eventBuffer),
		cliReply:  sc.CLIReplies,
		log:       logger.NewStyledLogger("DeviceSim"),
	}

	for _, cc := range sc.Contacts {
		c := cc.contact()
		s.contacts = append(s.contacts, c)
		s.behavior[c.Identity] = cc
	}

	for _, ev := range sc.Script {
		s.scheduleScripted(ev)
	}

	return s
}

// Info returns the device description.
func (s *Sim) Info() pilottypes.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Contacts returns the synced contact list.
func (s *Sim) Contacts(_ context.Context) ([]pilottypes.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]pilottypes.Contact, len(s.contacts))
	copy(out, s.contacts)
	return out, nil
}

// SendMessage acknowledges after the contact's ack delay unless the contact
// drops acks; echo contacts also send the text back.
func (s *Sim) SendMessage(_ context.Context, c pilottypes.Contact, text string) (pilottypes.SendResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pilottypes.SendResult{}, ErrClosed
	}
	cfg, known := s.behavior[c.Identity]
	s.mu.Unlock()
	if !known {
		return pilottypes.SendResult{}, fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
	}

	code := AckFor(c.Identity, text)
	logger.DeviceTraffic("tx", "msg", "to", c.Name, "ack", string(code))
	if !cfg.DropAcks {
		s.after(cfg.ackDelay(), pilottypes.Event{Kind: pilottypes.EventAck, AckCode: code})
	}
	if cfg.Echo {
		s.after(cfg.ackDelay()+DefaultReplyDelay, pilottypes.Event{
			Kind: pilottypes.EventContactMessage,
			Message: &pilottypes.Message{
				SenderPrefix: prefix(c.Identity),
				Text:         text,
				PathLen:      pilottypes.DirectPathLen,
				Timestamp:    s.now(),
			},
		})
	}

	return pilottypes.SendResult{
		ExpectedAck:      code,
		SuggestedTimeout: time.Duration(cfg.SuggestTimeoutMS) * time.Millisecond,
	}, nil
}

// SendChannelMessage broadcasts; broadcasts are never acknowledged.
func (s *Sim) SendChannelMessage(_ context.Context, channel int, _ string) (pilottypes.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pilottypes.SendResult{}, ErrClosed
	}
	if channel < 0 || channel >= s.info.MaxChannels {
		return pilottypes.SendResult{}, fmt.Errorf("channel %d out of range", channel)
	}
	return pilottypes.SendResult{}, nil
}

// SendCommand answers with a command-reply message per the contact's
// configured replies.
func (s *Sim) SendCommand(_ context.Context, c pilottypes.Contact, cmd string) (pilottypes.SendResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pilottypes.SendResult{}, ErrClosed
	}
	cfg, known := s.behavior[c.Identity]
	s.mu.Unlock()
	if !known {
		return pilottypes.SendResult{}, fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
	}

	reply, ok := cfg.CommandReplies[cmd]
	if !ok {
		reply = "ok"
	}
	s.after(cfg.replyDelay(), pilottypes.Event{
		Kind: pilottypes.EventContactMessage,
		Message: &pilottypes.Message{
			SenderPrefix: prefix(c.Identity),
			Text:         reply,
			PathLen:      pilottypes.DirectPathLen,
			CommandReply: true,
			Timestamp:    s.now(),
		},
	})
	return pilottypes.SendResult{
		SuggestedTimeout: time.Duration(cfg.SuggestTimeoutMS) * time.Millisecond,
	}, nil
}

// Login succeeds when the password matches the contact's secret (or the
// contact has none) and reports the outcome as a login result event.
func (s *Sim) Login(_ context.Context, c pilottypes.Contact, password string) (pilottypes.SendResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pilottypes.SendResult{}, ErrClosed
	}
	cfg, known := s.behavior[c.Identity]
	s.mu.Unlock()
	if !known {
		return pilottypes.SendResult{}, fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
	}

	success := cfg.Password == "" || password == cfg.Password
	if success {
		s.mu.Lock()
		s.loggedIn[c.Identity] = true
		s.mu.Unlock()
	}
	s.after(cfg.replyDelay(), pilottypes.Event{
		Kind: pilottypes.EventLoginResult,
		Login: &pilottypes.LoginResult{
			Success:      success,
			SenderPrefix: prefix(c.Identity),
			IsAdmin:      success && cfg.Admin,
		},
	})
	return pilottypes.SendResult{
		SuggestedTimeout: time.Duration(cfg.SuggestTimeoutMS) * time.Millisecond,
	}, nil
}

// Logout drops the authenticated session, if any.
func (s *Sim) Logout(_ context.Context, c pilottypes.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.loggedIn, c.Identity)
	return nil
}

// LoggedIn reports whether a login for the contact succeeded. Test hook.
func (s *Sim) LoggedIn(c pilottypes.Contact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn[c.Identity]
}

// StatusRequest answers with the contact's configured status payload.
func (s *Sim) StatusRequest(_ context.Context, c pilottypes.Contact) (pilottypes.SendResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pilottypes.SendResult{}, ErrClosed
	}
	cfg, known := s.behavior[c.Identity]
	s.mu.Unlock()
	if !known {
		return pilottypes.SendResult{}, fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
	}

	status := cfg.Status
	if status == nil {
		status = map[string]any{"bat": s.batteryMV, "uptime": 3600}
	}
	s.after(cfg.replyDelay(), pilottypes.Event{Kind: pilottypes.EventStatusResponse, Status: status})
	return pilottypes.SendResult{
		SuggestedTimeout: time.Duration(cfg.SuggestTimeoutMS) * time.Millisecond,
	}, nil
}

// TelemetryRequest answers with the contact's configured telemetry payload.
func (s *Sim) TelemetryRequest(_ context.Context, c pilottypes.Contact) (pilottypes.SendResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pilottypes.SendResult{}, ErrClosed
	}
	cfg, known := s.behavior[c.Identity]
	s.mu.Unlock()
	if !known {
		return pilottypes.SendResult{}, fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
	}

	telemetry := cfg.Telemetry
	if telemetry == nil {
		telemetry = map[string]any{"bat_mv": s.batteryMV}
	}
	s.after(cfg.replyDelay(), pilottypes.Event{Kind: pilottypes.EventTelemetryResponse, Telemetry: telemetry})
	return pilottypes.SendResult{
		SuggestedTimeout: time.Duration(cfg.SuggestTimeoutMS) * time.Millisecond,
	}, nil
}

// SendCLI answers device CLI lines from the scenario's reply table.
func (s *Sim) SendCLI(_ context.Context, line string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if reply, ok := s.cliReply[line]; ok {
		return reply, nil
	}
	return "ok", nil
}

// QueryDevice answers device queries with a short description.
func (s *Sim) QueryDevice(_ context.Context, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	switch query {
	case "", "ver":
		return fmt.Sprintf("%s %s (%s)", s.info.Model, s.info.FirmwareVersion, s.info.FirmwareBuild), nil
	default:
		return "", fmt.Errorf("unknown query %q", query)
	}
}

// AddContact pushes a contact record to the node.
func (s *Sim) AddContact(_ context.Context, c pilottypes.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := range s.contacts {
		if s.contacts[i].Identity == c.Identity {
			s.contacts[i] = c
			return nil
		}
	}
	s.contacts = append(s.contacts, c)
	if _, ok := s.behavior[c.Identity]; !ok {
		s.behavior[c.Identity] = ContactConfig{Name: c.Name, Kind: c.Kind.String()}
	}
	return nil
}

// RemoveContact deletes a contact from the node.
func (s *Sim) RemoveContact(_ context.Context, c pilottypes.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := range s.contacts {
		if s.contacts[i].Identity == c.Identity {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
}

// ResetPath clears the stored route, reverting the contact to flood.
func (s *Sim) ResetPath(ctx context.Context, c pilottypes.Contact) error {
	return s.ChangePath(ctx, c, "")
}

// ChangePath installs an explicit route for a contact.
func (s *Sim) ChangePath(_ context.Context, c pilottypes.Contact, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := range s.contacts {
		if s.contacts[i].Identity == c.Identity {
			s.contacts[i].OutPath = path
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
}

// ShareContact rebroadcasts a contact. The simulator has no neighbors, so
// this only validates the contact.
func (s *Sim) ShareContact(_ context.Context, c pilottypes.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.behavior[c.Identity]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, c.Name)
	}
	return nil
}

// ExportContact serializes a contact, or the node itself when c is nil, to
// a shareable URI.
func (s *Sim) ExportContact(_ context.Context, c *pilottypes.Contact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if c == nil {
		return contactURI(s.info.PublicKey, s.info.Name), nil
	}
	return contactURI(c.Identity, c.Name), nil
}

// ImportContact ingests a URI produced by ExportContact.
func (s *Sim) ImportContact(ctx context.Context, uri string) error {
	identity, name, err := parseContactURI(uri)
	if err != nil {
		return err
	}
	return s.AddContact(ctx, pilottypes.Contact{Identity: identity, Name: name, Kind: pilottypes.KindChat})
}

// SendAdvert broadcasts the node's advertisement. No neighbors hear it.
func (s *Sim) SendAdvert(_ context.Context, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Time reads the simulated device clock.
func (s *Sim) Time(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, ErrClosed
	}
	return time.Now().Add(s.clockOff), nil
}

// SetTime sets the simulated device clock.
func (s *Sim) SetTime(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.clockOff = time.Until(t)
	return nil
}

// Battery reads the battery level in millivolts.
func (s *Sim) Battery(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.batteryMV, nil
}

// SetName renames the node.
func (s *Sim) SetName(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.info.Name = name
	return nil
}

// SetTxPower sets the transmit power in dBm.
func (s *Sim) SetTxPower(_ context.Context, dbm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.info.TxPower = dbm
	return nil
}

// SetRadio configures the radio parameters.
func (s *Sim) SetRadio(_ context.Context, freq, bw string, sf, cr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.info.Freq, s.info.BW, s.info.SF, s.info.CR = freq, bw, sf, cr
	return nil
}

// SetCoords sets the node's advertised position.
func (s *Sim) SetCoords(_ context.Context, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.info.Lat, s.info.Lon = lat, lon
	return nil
}

// SetPin accepts any PIN.
func (s *Sim) SetPin(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SetTuning accepts the delay factors without simulating them.
func (s *Sim) SetTuning(_ context.Context, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Reboot drops the connection the way a real restart does.
func (s *Sim) Reboot(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.emitLocked(pilottypes.Event{Kind: pilottypes.EventDisconnected, Err: errors.New("device rebooting")})
	s.mu.Unlock()
	return s.Close()
}

// NextMessage pulls one queued message; ok is false when the queue is
// drained.
func (s *Sim) NextMessage(_ context.Context) (pilottypes.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pilottypes.Event{}, false, ErrClosed
	}
	if len(s.queue) == 0 {
		return pilottypes.Event{Kind: pilottypes.EventNoMoreMessages}, false, nil
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true, nil
}

// Events is the asynchronous event stream. Closed on shutdown.
func (s *Sim) Events() <-chan pilottypes.Event {
	return s.events
}

// Close shuts the simulator down. Safe to call more than once.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// InjectEvent pushes an event onto the stream as if the radio produced it.
// Test hook.
func (s *Sim) InjectEvent(ev pilottypes.Event) {
	s.emit(ev)
}

// QueueMessage appends a message to the pull queue served by NextMessage.
// Test hook.
func (s *Sim) QueueMessage(ev pilottypes.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, ev)
}

func (s *Sim) emit(ev pilottypes.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

func (s *Sim) emitLocked(ev pilottypes.Event) {
	if s.closed {
		return
	}
	logger.DeviceTraffic("rx", ev.Kind.String())
	select {
	case s.events <- ev:
	default:
		s.log.Warn("Event buffer full, dropping", "event", ev.Kind.String())
	}
}

func (s *Sim) after(delay time.Duration, ev pilottypes.Event) {
	time.AfterFunc(delay, func() { s.emit(ev) })
}

func (s *Sim) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Add(s.clockOff)
}

func (s *Sim) scheduleScripted(se ScriptedEvent) {
	ev, ok := s.buildScripted(se)
	if !ok {
		s.log.Warn("Skipping malformed scripted event", "event", se.Kind)
		return
	}
	s.after(time.Duration(se.AfterMS)*time.Millisecond, ev)
}

func (s *Sim) buildScripted(se ScriptedEvent) (pilottypes.Event, bool) {
	switch se.Kind {
	case "message":
		from, ok := s.contactByName(se.From)
		if !ok {
			return pilottypes.Event{}, false
		}
		return pilottypes.Event{
			Kind: pilottypes.EventContactMessage,
			Message: &pilottypes.Message{
				SenderPrefix: prefix(from.Identity),
				Text:         se.Text,
				PathLen:      pilottypes.DirectPathLen,
				SNR:          se.SNR,
				HasSNR:       se.SNR != 0,
				Timestamp:    s.now(),
			},
		}, true
	case "channel":
		return pilottypes.Event{
			Kind: pilottypes.EventChannelMessage,
			Message: &pilottypes.Message{
				Channel:   se.Channel,
				Text:      se.Text,
				PathLen:   1,
				SNR:       se.SNR,
				HasSNR:    se.SNR != 0,
				Timestamp: s.now(),
			},
		}, true
	case "advert":
		key := se.Key
		if key == "" {
			key = IdentityFor(se.Name)
		}
		return pilottypes.Event{
			Kind:    pilottypes.EventAdvertisement,
			Pending: &pilottypes.PendingContact{Identity: key, Name: se.Name, Seen: s.now()},
		}, true
	case "path_update":
		from, ok := s.contactByName(se.From)
		if !ok {
			return pilottypes.Event{}, false
		}
		return pilottypes.Event{
			Kind: pilottypes.EventPathUpdate,
			Path: &pilottypes.PathUpdate{IdentityPrefix: prefix(from.Identity), OutPath: se.Path},
		}, true
	case "new_contact":
		key := se.Key
		if key == "" {
			key = IdentityFor(se.Name)
		}
		return pilottypes.Event{
			Kind:    pilottypes.EventNewContact,
			Contact: &pilottypes.Contact{Identity: key, Name: se.Name, Kind: pilottypes.KindChat},
		}, true
	default:
		return pilottypes.Event{}, false
	}
}

func (s *Sim) contactByName(name string) (pilottypes.Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.Name == name {
			return c, true
		}
	}
	return pilottypes.Contact{}, false
}

func prefix(identity string) string {
	if len(identity) <= SenderPrefixLen {
		return identity
	}
	return identity[:SenderPrefixLen]
}

func contactURI(identity, name string) string {
	return fmt.Sprintf("meshcore://%s/%s", identity, name)
}

func parseContactURI(uri string) (identity, name string, err error) {
	rest, ok := strings.CutPrefix(uri, "meshcore://")
	if !ok {
		return "", "", fmt.Errorf("not a contact URI: %q", uri)
	}
	identity, name, ok = strings.Cut(rest, "/")
	if !ok || identity == "" || name == "" {
		return "", "", fmt.Errorf("malformed contact URI: %q", uri)
	}
	return identity, name, nil
}
