// Package target resolves navigation tokens typed at the console into
// concrete recipients. Resolution is a pure read over the session view; it
// never mutates the contact registry or the last-sender slot.
package target

import (
	"errors"
	"strconv"
	"strings"

	"meshpilot/pkg/pilottypes"
)

// Resolution errors. All are user-facing and non-fatal; the session reports
// them and keeps the current target.
var (
	// ErrNotFound indicates the token matched no contact, or a channel
	// reference carried a malformed index.
	ErrNotFound = errors.New("target not found")

	// ErrNoLastSender indicates a reply reference ("!") with no message
	// received yet this session.
	ErrNoLastSender = errors.New("no message received yet")

	// ErrNoPrevious indicates an undo reference ("..") before any
	// navigation has happened.
	ErrNoPrevious = errors.New("no previous target")
)

// Lookup is the contact search a resolution needs. *registry.Registry
// satisfies it.
type Lookup interface {
	// FindByName returns the first contact whose display name equals name,
	// case sensitively.
	FindByName(name string) (*pilottypes.Contact, bool)
}

// View is a snapshot of the session state a resolution reads: the current
// target, the one-slot undo memory, the last-seen sender (a contact or a
// channel), and the device's own name. Zero values mean "unset".
type View struct {
	Current     pilottypes.Target
	Previous    pilottypes.Target
	HasPrevious bool
	LastSender  *pilottypes.Target
	SelfName    string
	Contacts    Lookup
}

// Resolve maps a raw token to a Target:
//
//	""              the current target, unchanged
//	"public", "chN" channel N (public is channel 0)
//	".."            the previously current target (single-level undo)
//	"~", "/"        the connected device itself, as is its own name
//	"!"             the origin of the most recently received message
//	anything else   exact display-name lookup, first match wins
//
// Unknown names, malformed channel indexes, an unset last sender, and an
// empty undo slot each return a distinct sentinel error.
func Resolve(token string, view View) (pilottypes.Target, error) {
	if token == "" {
		return view.Current, nil
	}
	if token == "public" {
		return pilottypes.ChannelTarget(0), nil
	}
	if n, ok, err := parseChannel(token); ok {
		if err != nil {
			return pilottypes.Target{}, err
		}
		return pilottypes.ChannelTarget(n), nil
	}
	if token == ".." {
		if !view.HasPrevious {
			return pilottypes.Target{}, ErrNoPrevious
		}
		return view.Previous, nil
	}
	if token == "~" || token == "/" || (view.SelfName != "" && token == view.SelfName) {
		return pilottypes.SelfTarget(), nil
	}
	if token == "!" {
		if view.LastSender == nil {
			return pilottypes.Target{}, ErrNoLastSender
		}
		return *view.LastSender, nil
	}
	if view.Contacts != nil {
		if c, ok := view.Contacts.FindByName(token); ok {
			return pilottypes.ContactTarget(c), nil
		}
	}
	return pilottypes.Target{}, ErrNotFound
}

// parseChannel recognizes "ch<N>" references. A token is a channel reference
// when "ch" is followed by a digit or sign; anything after that which fails
// to parse as a non-negative integer is malformed rather than a contact
// name. Tokens like "chris" are left for the name lookup.
func parseChannel(token string) (n int, isChannel bool, err error) {
	rest, ok := strings.CutPrefix(token, "ch")
	if !ok || rest == "" {
		return 0, false, nil
	}
	if c := rest[0]; (c < '0' || c > '9') && c != '-' && c != '+' {
		return 0, false, nil
	}
	n, perr := strconv.Atoi(rest)
	if perr != nil || n < 0 {
		return 0, true, ErrNotFound
	}
	return n, true, nil
}
