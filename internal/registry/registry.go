// Package registry maintains the console's live view of contacts and
// pending contacts. Contacts are keyed by their public identity and kept in
// insertion order for stable display; pending contacts are an ordered list
// that may hold duplicate identities until flushed or promoted.
//
// The registry is mutated from the event-delivery path and read from the
// session loop, so every method is safe for concurrent use. Lookups return
// copies; callers never share memory with the registry.
package registry

import (
	"errors"
	"strings"
	"sync"
	"time"

	"meshpilot/pkg/pilottypes"
)

// ErrNotPending is returned by Promote when no pending entry carries the
// requested identity.
var ErrNotPending = errors.New("no pending contact with that identity")

// Registry holds confirmed and pending contacts.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	byIdentity map[string]*pilottypes.Contact
	pending    []pilottypes.PendingContact
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byIdentity: make(map[string]*pilottypes.Contact)}
}

// Add inserts a contact, or updates it in place when the identity is
// already known. Updates keep the original display position and carry the
// console-local fields over: device records never report a reply timeout
// override or an advert time, so zero values there mean "unchanged".
func (r *Registry) Add(c pilottypes.Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(c)
}

func (r *Registry) add(c pilottypes.Contact) {
	if existing, ok := r.byIdentity[c.Identity]; ok {
		if c.ResponseTimeout == 0 {
			c.ResponseTimeout = existing.ResponseTimeout
		}
		if c.LastAdvert.IsZero() {
			c.LastAdvert = existing.LastAdvert
		}
		*existing = c
		return
	}
	stored := c
	r.byIdentity[c.Identity] = &stored
	r.order = append(r.order, c.Identity)
}

// Remove deletes a contact by identity and reports whether it existed.
func (r *Registry) Remove(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byIdentity[identity]; !ok {
		return false
	}
	delete(r.byIdentity, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of confirmed contacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}

// List returns all contacts in insertion order.
func (r *Registry) List() []pilottypes.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pilottypes.Contact, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byIdentity[id])
	}
	return out
}

// Get returns the contact with the given identity.
func (r *Registry) Get(identity string) (*pilottypes.Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byIdentity[identity]
	if !ok {
		return nil, false
	}
	copied := *c
	return &copied, true
}

// FindByName returns the first contact, in insertion order, whose display
// name matches exactly. Names are not unique; earlier entries shadow later
// ones.
func (r *Registry) FindByName(name string) (*pilottypes.Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if c := r.byIdentity[id]; c.Name == name {
			copied := *c
			return &copied, true
		}
	}
	return nil, false
}

// FindByPrefix returns the first contact, in insertion order, whose identity
// starts with the given hex prefix. Prefixes may be any length; when a
// truncated prefix collides across contacts the earliest match wins, which
// callers display as-is rather than trying to disambiguate.
func (r *Registry) FindByPrefix(hexPrefix string) (*pilottypes.Contact, bool) {
	if hexPrefix == "" {
		return nil, false
	}
	needle := strings.ToLower(hexPrefix)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if strings.HasPrefix(strings.ToLower(id), needle) {
			copied := *r.byIdentity[id]
			return &copied, true
		}
	}
	return nil, false
}

// Rename changes a contact's display name.
func (r *Registry) Rename(identity, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byIdentity[identity]
	if !ok {
		return false
	}
	c.Name = name
	return true
}

// UpdatePath replaces a contact's route hint; "" reverts it to flood.
func (r *Registry) UpdatePath(identity, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byIdentity[identity]
	if !ok {
		return false
	}
	c.OutPath = path
	return true
}

// SetTimeout stores a contact's reply-wait override; 0 clears it.
func (r *Registry) SetTimeout(identity string, d time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byIdentity[identity]
	if !ok {
		return false
	}
	c.ResponseTimeout = d
	return true
}

// MarkAdvert records when a known contact was last heard advertising.
func (r *Registry) MarkAdvert(identity string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byIdentity[identity]
	if !ok {
		return false
	}
	c.LastAdvert = at
	return true
}

// ReplaceAll swaps in a full contact snapshot, as produced by a device
// contact sync. The snapshot's order becomes the new display order.
// Pending entries and the console-local fields of surviving identities are
// untouched.
func (r *Registry) ReplaceAll(contacts []pilottypes.Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byIdentity
	r.order = r.order[:0]
	r.byIdentity = make(map[string]*pilottypes.Contact, len(contacts))
	for _, c := range contacts {
		if old, ok := prev[c.Identity]; ok {
			if c.ResponseTimeout == 0 {
				c.ResponseTimeout = old.ResponseTimeout
			}
			if c.LastAdvert.IsZero() {
				c.LastAdvert = old.LastAdvert
			}
		}
		r.add(c)
	}
}

// AddPending appends a pending contact. Duplicate identities are allowed;
// they accumulate until promoted or flushed.
func (r *Registry) AddPending(p pilottypes.PendingContact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, p)
}

// PendingList returns the pending contacts in arrival order.
func (r *Registry) PendingList() []pilottypes.PendingContact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pilottypes.PendingContact, len(r.pending))
	copy(out, r.pending)
	return out
}

// PendingByName returns the first pending entry with the given display name.
func (r *Registry) PendingByName(name string) (pilottypes.PendingContact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.pending {
		if p.Name == name {
			return p, true
		}
	}
	return pilottypes.PendingContact{}, false
}

// FlushPending drops all pending entries and returns how many were removed.
func (r *Registry) FlushPending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	r.pending = nil
	return n
}

// Promote moves a pending contact into the confirmed set: the earliest
// pending entry with the identity supplies the display name, every pending
// entry with that identity is deleted, and the new contact is returned.
// Promoting an identity that is already confirmed just clears its pending
// entries.
func (r *Registry) Promote(identity string) (*pilottypes.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first *pilottypes.PendingContact
	kept := r.pending[:0]
	for i := range r.pending {
		if r.pending[i].Identity == identity {
			if first == nil {
				p := r.pending[i]
				first = &p
			}
			continue
		}
		kept = append(kept, r.pending[i])
	}
	if first == nil {
		return nil, ErrNotPending
	}
	r.pending = kept

	if existing, ok := r.byIdentity[identity]; ok {
		copied := *existing
		return &copied, nil
	}

	c := pilottypes.Contact{
		Identity:   identity,
		Name:       first.Name,
		Kind:       pilottypes.KindChat,
		LastAdvert: first.Seen,
	}
	r.add(c)
	return &c, nil
}
