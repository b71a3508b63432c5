package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"meshpilot/internal/commands"
	"meshpilot/internal/output"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

// HelpCommand lists the vocabulary, or details one verb.
type HelpCommand struct{}

// Name returns the canonical verb.
func (c *HelpCommand) Name() string { return "help" }

// Aliases returns alternate spellings.
func (c *HelpCommand) Aliases() []string { return []string{"h", "?"} }

// Summary returns the one-line help text.
func (c *HelpCommand) Summary() string { return "list commands, or describe one" }

// Usage returns the argument synopsis.
func (c *HelpCommand) Usage() string { return "help [command]" }

// Args bounds the argument count. The optional argument names a verb, so
// it is greedy and chain consumption keeps it.
func (c *HelpCommand) Args() commands.ArgSpec {
	return commands.ArgSpec{Min: 0, Max: 1, Greedy: true}
}

// Target states how the verb obtains its contact.
func (c *HelpCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute renders the help table, through glamour when color is on.
func (c *HelpCommand) Execute(env *commands.Env, args []string) error {
	if len(args) == 1 {
		return c.describe(env, args[0])
	}

	all := commands.GlobalRegistry.All()
	if env.Machine {
		payload := make([]map[string]any, 0, len(all))
		for _, cmd := range all {
			payload = append(payload, map[string]any{
				"command": cmd.Name(),
				"aliases": cmd.Aliases(),
				"usage":   cmd.Usage(),
				"help":    cmd.Summary(),
			})
		}
		env.Printer.Println(output.MachineValue(payload))
		return nil
	}

	if env.Options.Color() {
		if rendered, err := renderHelpMarkdown(all); err == nil {
			env.Printer.Println(rendered)
			return nil
		}
	}
	for _, cmd := range all {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = "(" + strings.Join(cmd.Aliases(), ", ") + ")"
		}
		env.Printer.Printf("%-16s %-14s %s\n", cmd.Name(), aliases, cmd.Summary())
	}
	return nil
}

func (c *HelpCommand) describe(env *commands.Env, name string) error {
	cmd, ok := commands.GlobalRegistry.Get(name)
	if !ok {
		return commands.Usagef(c.Name(), "unknown command %q", name)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{
			"command": cmd.Name(),
			"aliases": cmd.Aliases(),
			"usage":   cmd.Usage(),
			"help":    cmd.Summary(),
		}))
		return nil
	}
	env.Printer.Printf("usage: %s\n", cmd.Usage())
	if len(cmd.Aliases()) > 0 {
		env.Printer.Printf("aliases: %s\n", strings.Join(cmd.Aliases(), ", "))
	}
	env.Printer.Println(cmd.Summary())
	return nil
}

func renderHelpMarkdown(all []commands.Command) (string, error) {
	var b strings.Builder
	b.WriteString("# Commands\n\n")
	b.WriteString("| Command | Aliases | Usage | Description |\n")
	b.WriteString("|---------|---------|-------|-------------|\n")
	for _, cmd := range all {
		fmt.Fprintf(&b, "| %s | %s | `%s` | %s |\n",
			cmd.Name(), strings.Join(cmd.Aliases(), ", "), cmd.Usage(), cmd.Summary())
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(b.String())
}

// HistoryCommand shows archived messages, optionally filtered by
// counterpart name or channel label. A numeric argument bounds the count.
type HistoryCommand struct{}

// Name returns the canonical verb.
func (c *HistoryCommand) Name() string { return "history" }

// Aliases returns alternate spellings.
func (c *HistoryCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *HistoryCommand) Summary() string { return "show archived messages" }

// Usage returns the argument synopsis.
func (c *HistoryCommand) Usage() string { return "history [name] [count]" }

// Args bounds the argument count.
func (c *HistoryCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 0, Max: 2} }

// Target states how the verb obtains its contact.
func (c *HistoryCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute renders the archive slice, oldest first.
func (c *HistoryCommand) Execute(env *commands.Env, args []string) error {
	if env.Archive == nil {
		return fmt.Errorf("message archive is disabled")
	}

	name := ""
	limit := 20
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			limit = n
			continue
		}
		name = a
	}

	entries, err := env.Archive.Recent(name, limit)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	if env.Machine {
		payload := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			payload = append(payload, historyPayload(e))
		}
		env.Printer.Println(output.MachineValue(payload))
		return nil
	}
	if len(entries) == 0 {
		env.Printer.Dimf("No messages")
		return nil
	}
	for _, e := range entries {
		label := e.CounterpartName
		if label == "" {
			label = e.Counterpart
		}
		dir := "<"
		suffix := ""
		if e.Direction == store.Out {
			dir = ">"
			if e.Acked {
				suffix = " (acked)"
			}
		}
		env.Printer.Printf("%s %s %s: %s%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), dir, label, e.Text, suffix)
	}
	return nil
}

func historyPayload(e store.Entry) map[string]any {
	payload := map[string]any{
		"dir":  string(e.Direction),
		"text": e.Text,
		"time": e.CreatedAt.Unix(),
	}
	if e.CounterpartName != "" {
		payload["name"] = e.CounterpartName
	}
	if e.Counterpart != "" {
		payload["public_key"] = e.Counterpart
	}
	if e.Channel >= 0 {
		payload["channel"] = e.Channel
	}
	if e.SNR != 0 {
		payload["snr"] = e.SNR
	}
	if e.Direction == store.Out {
		payload["acked"] = e.Acked
	}
	return payload
}

// SleepCommand pauses a chain for a number of seconds.
type SleepCommand struct{}

// Name returns the canonical verb.
func (c *SleepCommand) Name() string { return "sleep" }

// Aliases returns alternate spellings.
func (c *SleepCommand) Aliases() []string { return []string{"s"} }

// Summary returns the one-line help text.
func (c *SleepCommand) Summary() string { return "pause for a number of seconds" }

// Usage returns the argument synopsis.
func (c *SleepCommand) Usage() string { return "sleep <seconds>" }

// Args bounds the argument count.
func (c *SleepCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *SleepCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits out the pause, or returns early when the context ends.
func (c *SleepCommand) Execute(env *commands.Env, args []string) error {
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || secs < 0 {
		return commands.Usagef(c.Name(), "invalid duration %q: want seconds", args[0])
	}
	timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-env.Ctx.Done():
		return env.Ctx.Err()
	case <-timer.C:
	}
	return nil
}

// ChatCommand enters interactive mode on the current target.
type ChatCommand struct{}

// Name returns the canonical verb.
func (c *ChatCommand) Name() string { return "chat" }

// Aliases returns alternate spellings.
func (c *ChatCommand) Aliases() []string { return []string{"interactive", "im"} }

// Summary returns the one-line help text.
func (c *ChatCommand) Summary() string { return "enter interactive mode" }

// Usage returns the argument synopsis.
func (c *ChatCommand) Usage() string { return "chat" }

// Args bounds the argument count.
func (c *ChatCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *ChatCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute requests interactive mode.
func (c *ChatCommand) Execute(env *commands.Env, args []string) error {
	if env.Session == nil {
		return fmt.Errorf("interactive mode unavailable")
	}
	env.Session.RequestChat(env.Session.Current())
	return nil
}

// ChatToCommand navigates to a target and enters interactive mode. Bare it
// prints the current target.
type ChatToCommand struct{}

// Name returns the canonical verb.
func (c *ChatToCommand) Name() string { return "chat_to" }

// Aliases returns alternate spellings.
func (c *ChatToCommand) Aliases() []string { return []string{"imto", "to"} }

// Summary returns the one-line help text.
func (c *ChatToCommand) Summary() string { return "switch target and chat, bare shows the target" }

// Usage returns the argument synopsis.
func (c *ChatToCommand) Usage() string { return "to [target]" }

// Args bounds the argument count.
func (c *ChatToCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 0, Max: 1} }

// Target states how the verb obtains its contact. The token is a target,
// not a contact name, so resolution happens in Execute.
func (c *ChatToCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute resolves and adopts the target. A failed resolution leaves the
// current target unchanged.
func (c *ChatToCommand) Execute(env *commands.Env, args []string) error {
	if env.Session == nil {
		return fmt.Errorf("interactive mode unavailable")
	}
	if len(args) == 0 {
		cur := env.Session.Current()
		switch {
		case env.Machine:
			env.Printer.Println(output.MachineValue(map[string]any{"target": cur.String()}))
		case cur.Kind == pilottypes.TargetNone:
			env.Printer.Dimf("No current target")
		default:
			env.Printer.Println(cur.String())
		}
		return nil
	}

	t, err := env.Session.Resolve(args[0])
	if err != nil {
		return err
	}
	env.Session.Navigate(t)
	env.Session.RequestChat(t)
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"target": t.String()}))
	}
	return nil
}

// QuitCommand leaves interactive mode and stops the running chain.
type QuitCommand struct{}

// Name returns the canonical verb.
func (c *QuitCommand) Name() string { return "quit" }

// Aliases returns alternate spellings.
func (c *QuitCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *QuitCommand) Summary() string { return "leave the console" }

// Usage returns the argument synopsis.
func (c *QuitCommand) Usage() string { return "quit" }

// Args bounds the argument count.
func (c *QuitCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *QuitCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute requests shutdown.
func (c *QuitCommand) Execute(env *commands.Env, args []string) error {
	if env.Session != nil {
		env.Session.RequestQuit()
	}
	return commands.ErrQuit
}

func init() {
	for _, cmd := range []commands.Command{
		&HelpCommand{},
		&HistoryCommand{},
		&SleepCommand{},
		&ChatCommand{},
		&ChatToCommand{},
		&QuitCommand{},
	} {
		if err := commands.GlobalRegistry.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register %s command: %v", cmd.Name(), err))
		}
	}
}
