package pilottypes

import "fmt"

// TargetKind discriminates the Target tagged union.
type TargetKind int

// Target kinds.
const (
	TargetNone TargetKind = iota // no recipient selected (root before first navigation)
	TargetSelf                   // the connected device itself
	TargetContact
	TargetChannel
)

// Target is a resolved recipient of console actions: a contact, a channel,
// the device itself, or nothing. Exactly one Target is current in the
// session at any time.
type Target struct {
	Kind    TargetKind
	Contact *Contact // set when Kind == TargetContact
	Channel int      // set when Kind == TargetChannel; 0 is the public channel
}

// NoTarget returns the empty root target.
func NoTarget() Target { return Target{Kind: TargetNone} }

// SelfTarget returns a target addressing the connected device.
func SelfTarget() Target { return Target{Kind: TargetSelf} }

// ContactTarget returns a target addressing the given contact.
func ContactTarget(c *Contact) Target { return Target{Kind: TargetContact, Contact: c} }

// ChannelTarget returns a target addressing channel n (0 = public).
func ChannelTarget(n int) Target { return Target{Kind: TargetChannel, Channel: n} }

// Equal reports whether two targets address the same recipient. Contact
// targets compare by identity, not by pointer.
func (t Target) Equal(o Target) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TargetContact:
		return t.Contact != nil && o.Contact != nil && t.Contact.Identity == o.Contact.Identity
	case TargetChannel:
		return t.Channel == o.Channel
	default:
		return true
	}
}

// String returns the navigation token that resolves back to this target.
func (t Target) String() string {
	switch t.Kind {
	case TargetSelf:
		return "~"
	case TargetContact:
		if t.Contact == nil {
			return ""
		}
		return t.Contact.Name
	case TargetChannel:
		if t.Channel == 0 {
			return "public"
		}
		return fmt.Sprintf("ch%d", t.Channel)
	default:
		return ""
	}
}
