package pilottypes

import (
	"encoding/hex"
	"time"
)

// EventKind identifies the type of an asynchronous device event.
type EventKind int

// Device event kinds.
const (
	EventContactMessage EventKind = iota + 1 // direct message from a contact
	EventChannelMessage                      // broadcast message on a channel
	EventAdvertisement                       // node advertisement (may introduce a pending contact)
	EventPathUpdate                          // route to a contact changed
	EventNewContact                          // device reports a newly synced contact
	EventAck                                 // delivery acknowledgment, carries a correlation code
	EventLoginResult                         // login succeeded or failed
	EventStatusResponse                      // reply to a status request
	EventTelemetryResponse                   // reply to a telemetry request
	EventNoMoreMessages                      // message queue drained (pull path only)
	EventDisconnected                        // connection lost; terminal
)

// String returns the wire-style name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventContactMessage:
		return "contact_msg"
	case EventChannelMessage:
		return "channel_msg"
	case EventAdvertisement:
		return "advertisement"
	case EventPathUpdate:
		return "path_update"
	case EventNewContact:
		return "new_contact"
	case EventAck:
		return "ack"
	case EventLoginResult:
		return "login_result"
	case EventStatusResponse:
		return "status_response"
	case EventTelemetryResponse:
		return "telemetry_response"
	case EventNoMoreMessages:
		return "no_more_msgs"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// AckCode is an opaque correlation key matching a delivery acknowledgment to
// the send operation that produced it. Only equality is meaningful; the hex
// backing is an encoding detail.
type AckCode string

// AckCodeFromBytes builds an AckCode from the raw code bytes a send result
// carries.
func AckCodeFromBytes(b []byte) AckCode { return AckCode(hex.EncodeToString(b)) }

// IsZero reports whether the code is unset.
func (c AckCode) IsZero() bool { return c == "" }

// DirectPathLen is the path length value devices report for a message that
// arrived without repeater hops.
const DirectPathLen = 255

// Message is the payload of a contact or channel message event.
type Message struct {
	SenderPrefix string    // truncated hex identity of the sender (direct messages)
	AuthorPrefix string    // original author within a room, if relayed by a room server
	Channel      int       // channel index (channel messages)
	Text         string    // message body
	PathLen      int       // hops taken; DirectPathLen means direct
	SNR          float64   // signal-to-noise in dB, 0 if not reported
	HasSNR       bool      // whether SNR was reported
	CommandReply bool      // true for remote command output rather than chat text
	Timestamp    time.Time // device receive time
}

// LoginResult is the payload of a login result event.
type LoginResult struct {
	Success      bool
	SenderPrefix string // identity prefix of the node that answered
	IsAdmin      bool   // granted admin rights, when reported
}

// PathUpdate is the payload of a path update event.
type PathUpdate struct {
	IdentityPrefix string // truncated identity of the affected contact
	OutPath        string // new route hint; "" means flood
}

// Event is a typed asynchronous event delivered by the device link. Exactly
// one payload field matching Kind is set.
type Event struct {
	Kind      EventKind
	Message   *Message        // ContactMessage, ChannelMessage
	Pending   *PendingContact // Advertisement
	Contact   *Contact        // NewContact
	Path      *PathUpdate     // PathUpdate
	AckCode   AckCode         // Ack
	Login     *LoginResult    // LoginResult
	Status    map[string]any  // StatusResponse
	Telemetry map[string]any  // TelemetryResponse
	Err       error           // Disconnected reason, may be nil on clean close
}

// Token returns the correlation token embedded in the event, or "" for
// kinds that carry none.
func (e Event) Token() string {
	if e.Kind == EventAck {
		return string(e.AckCode)
	}
	return ""
}

// SendResult is the immediate reply a device returns for an operation that
// expects a correlated asynchronous answer.
type SendResult struct {
	ExpectedAck      AckCode       // token the coming acknowledgment will carry; may be zero
	SuggestedTimeout time.Duration // device's hint for sizing the reply wait; 0 = none
}
