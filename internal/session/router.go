package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"meshpilot/internal/commands"
	"meshpilot/internal/target"
	"meshpilot/pkg/pilottypes"
)

// route interprets one input line the way the terminal chat reads it. A few
// prefixes escape to other surfaces, known verbs dispatch with the current
// target injected where the verb wants one, and everything else is message
// text for the current target.
func (s *Session) route(ctx context.Context, line string) {
	switch {
	case strings.TrimSpace(line) == "":
		return
	case strings.HasPrefix(line, "$"):
		s.runLine(ctx, line[1:])
	case strings.HasPrefix(line, "."):
		// Dot prefixed verbs run as a chain; the chain flips them to
		// machine output.
		s.runLine(ctx, line)
	case strings.HasPrefix(line, "!"):
		s.reply(ctx, line[1:])
	case strings.HasPrefix(line, ":"):
		s.remote(ctx, line[1:])
	case strings.HasPrefix(line, "@"):
		commands.RunChain(s.env(ctx), []string{"cli", strings.TrimLeft(line[1:], " ")})
	default:
		s.routeVerb(ctx, line)
	}
}

// runLine tokenizes an escaped line and runs it as a command chain.
func (s *Session) runLine(ctx context.Context, line string) {
	tokens, err := shellquote.Split(line)
	if err != nil {
		s.printer.Errorf("Parse error: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	commands.RunChain(s.env(ctx), tokens)
}

// routeVerb dispatches a line whose head spells a verb, or falls back to
// sending the line as message text.
func (s *Session) routeVerb(ctx context.Context, line string) {
	if line == "reset path" {
		line = "reset_path"
	}
	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimLeft(rest, " ")

	// Chat-mode spellings the vocabulary reads differently: "q" is the
	// query verb in chains but quits a chat, "list" is the one-line
	// contact roll, "to" is navigation with undo bookkeeping.
	switch head {
	case "to":
		s.navigate(strings.TrimSpace(rest))
		return
	case "quit", "q":
		s.RequestQuit()
		return
	case "list":
		if rest == "" {
			s.printContactsLine()
			return
		}
	}

	cmd, ok := commands.GlobalRegistry.Get(head)
	if !ok {
		s.send(ctx, line)
		return
	}

	tokens, err := s.verbTokens(cmd, head, rest)
	if err != nil {
		s.printer.Errorf("Error: %v", err)
		return
	}
	commands.RunChain(s.env(ctx), tokens)

	// Requests whose reply arrives as an event get their wait chained on,
	// so the chat form behaves like request plus wait.
	switch cmd.Name() {
	case "login":
		commands.RunChain(s.env(ctx), []string{"wait_login"})
	case "req_status":
		commands.RunChain(s.env(ctx), []string{"wait_status"})
	case "req_telemetry":
		commands.RunChain(s.env(ctx), []string{"wait_telemetry"})
	}
}

// verbTokens builds the chain invocation for a verb typed at the prompt.
// Implicit-target verbs get the current contact injected; greedy verbs keep
// their free-text tail exactly as typed.
func (s *Session) verbTokens(cmd commands.Command, head, rest string) ([]string, error) {
	spec := cmd.Args()
	tokens := []string{head}

	if cmd.Target() == commands.TargetImplicit {
		cur := s.Current()
		if cur.Kind != pilottypes.TargetContact || cur.Contact == nil {
			return nil, fmt.Errorf("%s needs a contact target, not %q", cmd.Name(), cur.String())
		}
		tokens = append(tokens, cur.Contact.Name)
	}

	if rest == "" {
		return tokens, nil
	}
	if spec.Greedy {
		lead := spec.Max - len(tokens)
		tokens = append(tokens, greedySplit(rest, lead)...)
		return tokens, nil
	}
	split, err := shellquote.Split(rest)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", cmd.Name(), err)
	}
	return append(tokens, split...), nil
}

// greedySplit cuts lead whitespace-separated tokens off rest and keeps the
// remainder as one final token.
func greedySplit(rest string, lead int) []string {
	var args []string
	for i := 0; i < lead && rest != ""; i++ {
		head, tail, _ := strings.Cut(rest, " ")
		args = append(args, head)
		rest = strings.TrimLeft(tail, " ")
	}
	if rest != "" {
		args = append(args, rest)
	}
	return args
}

// navigate switches the current target. A bare "to" prints it instead.
func (s *Session) navigate(token string) {
	if token == "" {
		s.printer.Println(s.Current().String())
		return
	}
	t, err := s.Resolve(token)
	switch {
	case errors.Is(err, target.ErrNotFound):
		s.printer.Errorf("Contact '%s' not found in contacts", token)
	case err != nil:
		s.printer.Errorf("%v", err)
	default:
		s.Navigate(t)
	}
}

// reply sends text back to where the most recent message came from,
// a contact or a channel.
func (s *Session) reply(ctx context.Context, text string) {
	last, ok := s.LastSender()
	if !ok {
		s.printer.Errorf("no message received yet")
		return
	}
	s.sendTo(ctx, last, strings.TrimLeft(text, " "))
}

// remote forwards raw text to the current contact's command interpreter.
func (s *Session) remote(ctx context.Context, text string) {
	cur := s.Current()
	if cur.Kind != pilottypes.TargetContact || cur.Contact == nil {
		s.printer.Errorf("remote commands need a contact target")
		return
	}
	commands.RunChain(s.env(ctx), []string{"cmd", cur.Contact.Name, strings.TrimLeft(text, " ")})
}

// send delivers free text to the current target. A leading double quote
// escapes text whose first word would otherwise read as a verb.
func (s *Session) send(ctx context.Context, line string) {
	s.sendTo(ctx, s.Current(), strings.TrimPrefix(line, "\""))
}

// sendTo picks the send operation a target kind wants. Contact sends wait
// for the acknowledgment; channel broadcasts return once the device accepts
// them; the root target has nobody to deliver to.
func (s *Session) sendTo(ctx context.Context, t pilottypes.Target, text string) {
	switch t.Kind {
	case pilottypes.TargetContact:
		if t.Contact == nil {
			return
		}
		commands.RunChain(s.env(ctx), []string{"send", t.Contact.Name, text})
	case pilottypes.TargetChannel:
		commands.RunChain(s.env(ctx), []string{"chan", strconv.Itoa(t.Channel), text})
	default:
		s.printer.Errorf("No recipient selected, use \"to\" first")
	}
}

// printContactsLine lists contact names on one line, the terse chat form of
// the contacts command.
func (s *Session) printContactsLine() {
	names := make([]string, 0, s.registry.Len())
	for _, c := range s.registry.List() {
		names = append(names, c.Name)
	}
	s.printer.Println(strings.Join(names, ", "))
}
