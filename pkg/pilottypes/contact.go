// Package pilottypes provides the shared type definitions for meshpilot.
// It defines the contact/target data model, device event model, and the
// collaborator interfaces implemented by the internal packages.
package pilottypes

import (
	"strings"
	"time"
)

// IdentityHexLen is the length of a full hex-encoded contact identity
// (a 32-byte public key).
const IdentityHexLen = 64

// ContactKind classifies a contact by the role its node advertises.
// The numeric values match the advertisement type codes reported by the
// companion device.
type ContactKind int

// Contact kinds, in device advertisement order.
const (
	KindChat     ContactKind = 1 // regular chat peer
	KindRepeater ContactKind = 2
	KindRoom     ContactKind = 3 // room server
	KindSensor   ContactKind = 4
)

// String returns the lowercase kind name used in listings and scenarios.
func (k ContactKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindRepeater:
		return "repeater"
	case KindRoom:
		return "room"
	case KindSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// ParseContactKind converts a kind name back to its ContactKind. The empty
// string counts as chat, the device default; anything else unknown reports
// ok false.
func ParseContactKind(s string) (ContactKind, bool) {
	switch strings.ToLower(s) {
	case "", "chat":
		return KindChat, true
	case "repeater":
		return KindRepeater, true
	case "room":
		return KindRoom, true
	case "sensor":
		return KindSensor, true
	default:
		return KindChat, false
	}
}

// Contact is an identity record for a known node.
//
// Identity is the full hex-encoded public key and never changes after
// creation. Name is the advertised display name; it is mutable and not
// guaranteed unique (lookups by name are first-match-wins, see the registry
// package).
type Contact struct {
	Identity        string        // hex public key, unique, immutable
	Name            string        // advertised display name, collisions allowed
	Kind            ContactKind   // chat peer, repeater, room server, sensor
	OutPath         string        // route hint; "" means flood
	ResponseTimeout time.Duration // per-contact reply timeout override; 0 = unset
	LastAdvert      time.Time     // last advertisement seen, zero if never
}

// IdentityPrefix returns the first n hex characters of the identity, or the
// whole identity if it is shorter. Message metadata carries truncated
// identities, so prefixes are the common join key.
func (c Contact) IdentityPrefix(n int) string {
	if len(c.Identity) <= n {
		return c.Identity
	}
	return c.Identity[:n]
}

// FloodPath reports whether the contact routes by flood (no stored path).
func (c Contact) FloodPath() bool { return c.OutPath == "" }

// PendingContact is an advertised-but-not-yet-accepted identity. Pending
// entries carry only identity and display name; they are destroyed on
// promotion to a Contact or on an explicit flush.
type PendingContact struct {
	Identity string
	Name     string
	Seen     time.Time
}
