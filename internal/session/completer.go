package session

import (
	"sort"
	"strings"

	"meshpilot/internal/commands"
	"meshpilot/internal/config"
	"meshpilot/internal/registry"
	"meshpilot/pkg/pilottypes"
)

// deviceParams names the device parameters set and get complete.
var deviceParams = []string{"coords", "lat", "lon", "name", "pin", "radio", "tuning", "tx"}

// repeaterVerbs only make sense against an authenticating peer, so they are
// offered for repeater and room targets.
var repeaterVerbs = map[string]bool{
	"login": true, "logout": true, "wait_login": true,
	"req_status": true, "wait_status": true, "cmd": true,
}

// telemetryVerbs are offered for target kinds that report telemetry.
var telemetryVerbs = map[string]bool{
	"req_telemetry": true, "wait_telemetry": true,
}

// targetSource is the slice of session state completion reads.
type targetSource interface {
	Current() pilottypes.Target
}

// Completer proposes completions for the interactive prompt: verbs at the
// head of the line, contact names where a verb takes one, parameter names
// for set and get. Offers follow the session state: repeater verbs only
// show for repeater and room targets, pending subcommands only when
// something is pending. Implements readline.AutoCompleter.
type Completer struct {
	verbs    *commands.Registry
	contacts *registry.Registry
	state    targetSource
}

// NewCompleter builds a completer over the command vocabulary and the
// contact registry.
func NewCompleter(verbs *commands.Registry, contacts *registry.Registry, state targetSource) *Completer {
	return &Completer{verbs: verbs, contacts: contacts, state: state}
}

// Do implements the readline.AutoCompleter interface. It completes the word
// under the cursor from candidates fitting the words before it, returning
// the suffixes to append and the length of the word being completed.
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, offset int) {
	lineStr := string(line)
	if pos > len(lineStr) {
		pos = len(lineStr)
	}
	wordStart := findWordStart(lineStr, pos)
	currentWord := lineStr[wordStart:pos]

	// An escape sigil is not part of the word it starts.
	word := currentWord
	if wordStart == 0 && word != "" && (word[0] == '$' || word[0] == '.') {
		word = word[1:]
	}

	var suggestions [][]rune
	for _, cand := range c.candidates(lineStr[:wordStart]) {
		if strings.HasPrefix(cand, word) {
			suggestions = append(suggestions, []rune(strings.TrimPrefix(cand, word)))
		}
	}
	return suggestions, len(currentWord)
}

// candidates picks the completion set fitting the words before the cursor.
func (c *Completer) candidates(prefix string) []string {
	escaped := strings.HasPrefix(prefix, "$") || strings.HasPrefix(prefix, ".")
	fields := strings.Fields(prefix)
	if len(fields) > 0 {
		fields[0] = strings.TrimLeft(fields[0], "$.")
		if fields[0] == "" {
			fields = fields[1:]
		}
	}

	if len(fields) == 0 {
		return c.headCandidates()
	}

	verb := fields[0]
	argPos := len(fields)
	cmd, known := c.verbs.Get(verb)
	if known {
		verb = cmd.Name()
	}

	switch {
	case verb == "to" || verb == "chat_to":
		if argPos == 1 {
			return c.targetCandidates()
		}
	case verb == "set" || verb == "get":
		if argPos == 1 {
			params := append([]string{}, deviceParams...)
			if verb == "get" {
				params = append(params, "bat")
			}
			params = append(params, config.ConsoleOptionNames()...)
			sort.Strings(params)
			return params
		}
		if verb == "set" && argPos == 2 && isBoolOption(fields[1]) {
			return []string{"off", "on"}
		}
	case verb == "pending":
		if len(c.contacts.PendingList()) == 0 {
			return nil
		}
		if argPos == 1 {
			return []string{"add", "flush"}
		}
		if argPos == 2 && fields[1] == "add" {
			return c.pendingNames()
		}
	case verb == "clock":
		if argPos == 1 {
			return []string{"sync"}
		}
	}

	if known && argPos == 1 {
		switch cmd.Target() {
		case commands.TargetNamed:
			return c.contactNames()
		case commands.TargetImplicit:
			// Escaped chains name the contact explicitly; the prompt form
			// injects it, so the first word there is payload.
			if escaped {
				return c.contactNames()
			}
		}
	}
	return nil
}

// headCandidates lists what a line can start with: the vocabulary filtered
// by the current target's kind, plus the chat-mode spellings the router
// reads itself.
func (c *Completer) headCandidates() []string {
	kind := pilottypes.KindChat
	if t := c.state.Current(); t.Kind == pilottypes.TargetContact && t.Contact != nil {
		kind = t.Contact.Kind
	}

	names := []string{"to", "list"}
	for _, cmd := range c.verbs.All() {
		name := cmd.Name()
		if repeaterVerbs[name] && kind != pilottypes.KindRepeater && kind != pilottypes.KindRoom {
			continue
		}
		if telemetryVerbs[name] && kind != pilottypes.KindRepeater &&
			kind != pilottypes.KindRoom && kind != pilottypes.KindSensor {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// targetCandidates lists what navigation accepts: contact names and the
// special spellings.
func (c *Completer) targetCandidates() []string {
	names := append(c.contactNames(), "public", "~", "..")
	sort.Strings(names)
	return names
}

func (c *Completer) contactNames() []string {
	list := c.contacts.List()
	names := make([]string, 0, len(list))
	for _, ct := range list {
		names = append(names, ct.Name)
	}
	sort.Strings(names)
	return names
}

func (c *Completer) pendingNames() []string {
	pend := c.contacts.PendingList()
	names := make([]string, 0, len(pend))
	for _, p := range pend {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func isBoolOption(name string) bool {
	switch name {
	case config.OptColor, config.OptPrintSNR, config.OptJSONMsgs:
		return true
	}
	return false
}

// findWordStart scans back from the cursor to the start of the word being
// completed.
func findWordStart(line string, pos int) int {
	for i := pos - 1; i >= 0; i-- {
		if i < len(line) && line[i] == ' ' {
			return i + 1
		}
	}
	return 0
}
