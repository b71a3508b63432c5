package commands

import (
	"errors"
	"strings"

	"meshpilot/internal/logger"
	"meshpilot/internal/output"
	"meshpilot/pkg/pilottypes"
)

// RunChain executes a tokenized command sequence. Each verb consumes its
// own arguments and the remainder starts the next verb, so several commands
// chain on one line. Optional arguments yield to the next verb: a token in
// an optional position that spells a command name starts a new verb, which
// reads "clock sync" as one command and "clock ver" as two.
//
// A dot prefix on a verb switches that one verb to machine output. When
// machine output is on globally, the chain's outputs are bracketed into a
// JSON array. Errors are reported per verb; a malformed or unknown verb
// aborts the rest of the chain, a failing device operation only its own.
//
// A head token that is no verb but names a confirmed contact requests
// interactive mode on that contact, matching the command line shorthand
// of naming a peer to chat with.
func RunChain(env *Env, tokens []string) {
	first := true
	if env.Machine {
		env.Printer.Println("[")
	}
	for len(tokens) > 0 {
		if env.Machine && !first {
			env.Printer.Println(",")
		}
		first = false

		rest, err := runOne(env, tokens)
		tokens = rest
		if err != nil {
			if errors.Is(err, ErrQuit) {
				break
			}
			var ue *UsageError
			if errors.As(err, &ue) {
				break
			}
		}
	}
	if env.Machine {
		env.Printer.Println("]")
	}
}

func runOne(env *Env, tokens []string) ([]string, error) {
	verb := tokens[0]
	machine := env.Machine
	if strings.HasPrefix(verb, ".") && len(verb) > 1 {
		machine = true
		verb = verb[1:]
	}
	if strings.HasPrefix(verb, "@") && len(verb) > 1 {
		tokens = append([]string{"cli", verb[1:]}, tokens[1:]...)
		verb = "cli"
	}

	cmd, ok := GlobalRegistry.Get(verb)
	if !ok {
		if env.Registry != nil && env.Session != nil {
			if c, found := env.Registry.FindByName(verb); found {
				env.Session.RequestChat(pilottypes.ContactTarget(c))
				return tokens[1:], nil
			}
		}
		err := Usagef(verb, "unknown command")
		reportError(env, machine, err)
		return nil, err
	}

	args, rest, err := consume(cmd, tokens[1:])
	if err != nil {
		reportError(env, machine, err)
		return rest, err
	}

	logger.CommandExecution(cmd.Name(), args)

	unit := *env
	unit.Machine = machine
	if err := cmd.Execute(&unit, args); err != nil {
		if !errors.Is(err, ErrQuit) {
			reportError(env, machine, err)
		}
		return rest, err
	}
	return rest, nil
}

// consume splits a verb's arguments from the tokens that follow it.
func consume(cmd Command, rest []string) (args, remainder []string, err error) {
	spec := cmd.Args()
	n := 0
	for n < len(rest) && n < spec.Max {
		if !spec.Greedy && n >= spec.Min && GlobalRegistry.IsValidCommand(rest[n]) {
			break
		}
		n++
	}
	if n < spec.Min {
		return nil, nil, Usagef(cmd.Name(), "usage: %s", cmd.Usage())
	}
	return rest[:n], rest[n:], nil
}

func reportError(env *Env, machine bool, err error) {
	if machine {
		env.Printer.Println(output.MachineValue(map[string]string{"error": err.Error()}))
		return
	}
	env.Printer.Errorf("Error: %v", err)
}
