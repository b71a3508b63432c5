package commands

import (
	"fmt"
	"sync"
)

// Registry manages verb registration and lookup. Lookup covers canonical
// names and aliases; listing preserves registration order.
type Registry struct {
	mu    sync.RWMutex
	names []string           // canonical names in registration order
	verbs map[string]Command // keyed by canonical name and every alias
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{verbs: make(map[string]Command)}
}

// Register adds a command under its name and aliases. Returns an error if
// the name is empty or any spelling is already taken.
func (r *Registry) Register(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd.Name() == "" {
		return fmt.Errorf("command name cannot be empty")
	}

	spellings := append([]string{cmd.Name()}, cmd.Aliases()...)
	for _, s := range spellings {
		if _, exists := r.verbs[s]; exists {
			return fmt.Errorf("command %s already registered", s)
		}
	}
	for _, s := range spellings {
		r.verbs[s] = cmd
	}
	r.names = append(r.names, cmd.Name())
	return nil
}

// Get retrieves a command by any of its spellings.
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, exists := r.verbs[name]
	return cmd, exists
}

// All returns the registered commands in registration order, one entry per
// command regardless of aliases.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]Command, 0, len(r.names))
	for _, name := range r.names {
		cmds = append(cmds, r.verbs[name])
	}
	return cmds
}

// IsValidCommand checks whether a spelling resolves to a command.
func (r *Registry) IsValidCommand(name string) bool {
	_, exists := r.Get(name)
	return exists
}

// GlobalRegistry is the process-wide command registry. Verbs register
// themselves with it during initialization.
var GlobalRegistry = NewRegistry()
