// Package commands defines the console vocabulary: the Command interface,
// the registry verbs register into, and the chain processor that executes
// tokenized command sequences against a connected device.
package commands

import (
	"context"
	"errors"
	"fmt"

	"meshpilot/internal/await"
	"meshpilot/internal/config"
	"meshpilot/internal/output"
	"meshpilot/internal/registry"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

// TargetRule states how a verb obtains its contact argument.
type TargetRule int

const (
	// TargetNone marks verbs that take no contact argument.
	TargetNone TargetRule = iota
	// TargetImplicit marks per-target verbs: the chain form names the
	// contact explicitly, the interactive form injects the current target.
	TargetImplicit
	// TargetNamed marks verbs that name their contact explicitly in both
	// forms.
	TargetNamed
)

// ArgSpec bounds a verb's argument count. Greedy marks the final argument
// as free text: the interactive router passes it through unsplit, and chain
// consumption does not yield it to a following verb even when it spells a
// command name.
type ArgSpec struct {
	Min    int
	Max    int
	Greedy bool
}

// SessionState is the slice of session state the vocabulary may touch.
// The session implements it in both modes; chain invocations simply start
// with no current target.
type SessionState interface {
	// Current returns the session's target.
	Current() pilottypes.Target

	// Resolve maps a target token to a Target against current state.
	Resolve(token string) (pilottypes.Target, error)

	// Navigate adopts a target, keeping the old one in the undo slot when
	// the target actually changes. Reports whether it changed.
	Navigate(t pilottypes.Target) bool

	// LastSender returns the origin of the most recent incoming message,
	// a contact or a channel, if any arrived yet.
	LastSender() (pilottypes.Target, bool)

	// SetLastAck records whether the latest direct send was acknowledged.
	SetLastAck(ok bool)

	// Self describes the connected node.
	Self() pilottypes.DeviceInfo

	// RequestChat asks for interactive mode on the given target.
	RequestChat(t pilottypes.Target)

	// RequestQuit asks the session loop to wind down.
	RequestQuit()
}

// Env carries the collaborators a command executes against. Machine is true
// when this one invocation must produce machine-readable output, either
// from the global flag or from a per-command dot prefix.
type Env struct {
	Ctx      context.Context
	Link     pilottypes.Link
	Registry *registry.Registry
	Waits    *await.Coordinator
	Options  *config.Options
	Printer  *output.Printer
	Archive  *store.Archive
	Session  SessionState

	Machine bool
}

// Command is one console verb.
type Command interface {
	// Name returns the canonical verb.
	Name() string

	// Aliases returns alternate spellings for the verb.
	Aliases() []string

	// Summary returns the one-line help text.
	Summary() string

	// Usage returns the argument synopsis, e.g. "msg <name> <text>".
	Usage() string

	// Args bounds the argument count for chain consumption.
	Args() ArgSpec

	// Target states how the verb obtains its contact argument.
	Target() TargetRule

	// Execute runs the verb with its consumed arguments.
	Execute(env *Env, args []string) error
}

// ErrQuit is returned by the quit verb. The chain processor stops on it
// without reporting an error.
var ErrQuit = errors.New("quit requested")

// UsageError reports a malformed invocation. The chain processor stops the
// rest of the chain on it; other command errors abort only their own verb.
type UsageError struct {
	Cmd    string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cmd, e.Reason)
}

// Usagef builds a UsageError for a verb.
func Usagef(cmd, format string, args ...interface{}) error {
	return &UsageError{Cmd: cmd, Reason: fmt.Sprintf(format, args...)}
}
