package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"meshpilot/internal/config"
	"meshpilot/pkg/pilottypes"
)

// Printer renders console output. It consults the shared options on every
// call so `set color off` or `set json_msgs on` take effect immediately,
// and it is safe to use from both the session loop and the event pump.
type Printer struct {
	mu     sync.Mutex
	writer io.Writer
	opts   *config.Options
}

// Option configures a Printer.
type Option func(*Printer)

// WithWriter directs output to the given writer instead of os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(p *Printer) {
		if w != nil {
			p.writer = w
		}
	}
}

// New creates a printer bound to the shared console options.
func New(opts *config.Options, options ...Option) *Printer {
	p := &Printer{writer: os.Stdout, opts: opts}
	for _, o := range options {
		o(p)
	}
	return p
}

// SetWriter swaps the output destination. The session points this at the
// readline proxy so event traffic prints above the prompt.
func (p *Printer) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w != nil {
		p.writer = w
	}
}

// Println writes a plain line.
func (p *Printer) Println(text string) {
	p.write(text + "\n")
}

// Printf writes formatted plain text.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.write(fmt.Sprintf(format, args...))
}

// Errorf writes a styled error line.
func (p *Printer) Errorf(format string, args ...interface{}) {
	p.write(p.styled(errorStyle, fmt.Sprintf(format, args...)) + "\n")
}

// Successf writes a styled success line.
func (p *Printer) Successf(format string, args ...interface{}) {
	p.write(p.styled(successStyle, fmt.Sprintf(format, args...)) + "\n")
}

// Warnf writes a styled warning line.
func (p *Printer) Warnf(format string, args ...interface{}) {
	p.write(p.styled(warningStyle, fmt.Sprintf(format, args...)) + "\n")
}

// Dimf writes a styled low-emphasis line, used for command replies and
// session notices.
func (p *Printer) Dimf(format string, args ...interface{}) {
	p.write(p.styled(dimStyle, fmt.Sprintf(format, args...)) + "\n")
}

// Result renders a command result. Machine mode produces one compact JSON
// value per result; otherwise maps render as sorted "key: value" lines and
// everything else prints naturally.
func (p *Printer) Result(v any, machine bool) {
	if machine {
		p.Println(MachineValue(v))
		return
	}
	switch val := v.(type) {
	case nil:
	case string:
		if val != "" {
			p.Println(val)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.Printf("%s: %v\n", k, val[k])
		}
	default:
		p.Printf("%v\n", val)
	}
}

// MachineValue encodes a result as compact JSON, the machine-output wire
// form. Unencodable values degrade to their string form.
func MachineValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	return string(data)
}

// MessageView is one incoming message prepared for display: the session
// resolves sender prefixes to labels before handing it over.
type MessageView struct {
	Kind         pilottypes.ContactKind // sender kind for direct messages
	FromLabel    string                 // resolved display label
	Channel      int                    // channel index; <0 for direct messages
	Text         string
	SNR          float64
	HasSNR       bool
	PathLen      int
	CommandReply bool
	Timestamp    time.Time
}

// ViewFromEvent prepares an incoming message event for display. lookup
// resolves a truncated sender identity to a contact; unresolvable senders
// keep the raw prefix as their label, the same way unknown peers show up
// on the air.
func ViewFromEvent(ev pilottypes.Event, lookup func(prefix string) (*pilottypes.Contact, bool)) MessageView {
	v := MessageView{Channel: -1}
	m := ev.Message
	if m == nil {
		return v
	}
	v.Text = m.Text
	v.SNR = m.SNR
	v.HasSNR = m.HasSNR
	v.PathLen = m.PathLen
	v.CommandReply = m.CommandReply
	v.Timestamp = m.Timestamp

	if ev.Kind == pilottypes.EventChannelMessage {
		v.Channel = m.Channel
		return v
	}

	v.FromLabel = m.SenderPrefix
	if lookup != nil {
		if c, ok := lookup(m.SenderPrefix); ok {
			v.FromLabel = c.Name
			v.Kind = c.Kind
		}
	}
	// Room servers relay on behalf of an author; show both.
	if m.AuthorPrefix != "" {
		author := m.AuthorPrefix
		if lookup != nil {
			if c, ok := lookup(m.AuthorPrefix); ok {
				author = c.Name
			}
		}
		v.FromLabel += "/" + author
	}
	return v
}

// Payload is the machine-readable form of a message, used for json_msgs
// display and for machine-mode message commands.
func (v MessageView) Payload() map[string]any {
	entry := map[string]any{
		"from": v.FromLabel,
		"text": v.Text,
		"time": v.Timestamp.Unix(),
	}
	if v.Channel >= 0 {
		entry["channel"] = v.Channel
		entry["from"] = ChannelLabel(v.Channel)
	}
	if v.HasSNR {
		entry["snr"] = v.SNR
	}
	if v.PathLen == pilottypes.DirectPathLen {
		entry["direct"] = true
	} else {
		entry["path_len"] = v.PathLen
	}
	if v.CommandReply {
		entry["cmd_reply"] = true
	}
	return entry
}

// Message renders incoming traffic. Honors the json_msgs and print_snr
// options.
func (p *Printer) Message(v MessageView) {
	if p.opts != nil && p.opts.JSONMessages() {
		p.Println(MachineValue(v.Payload()))
		return
	}

	label := v.FromLabel
	if v.Channel >= 0 {
		label = ChannelLabel(v.Channel)
	}
	style := KindStyle(v.Kind)
	if v.Channel >= 0 {
		style = channelStyle
	}

	sep := ": "
	if v.CommandReply {
		sep = "> "
	}
	line := fmt.Sprintf("%s %s%s%s",
		v.Timestamp.Format("15:04:05"),
		p.styled(style, label),
		sep,
		v.Text,
	)
	if p.opts != nil && p.opts.PrintSNR() && v.HasSNR {
		line += p.styled(dimStyle, fmt.Sprintf(" (%.2gdB)", v.SNR))
	}
	p.Println(line)
}

// Prompt builds the interactive prompt for the current target: the target
// label colored by kind, a red "!" when the last delivery went
// unacknowledged, then "> ".
func (p *Printer) Prompt(t pilottypes.Target, unacked bool) string {
	label := t.String()
	if label == "" {
		label = "?"
	}
	prompt := p.styled(TargetStyle(t).Reverse(true), label)
	if unacked {
		prompt += p.styled(markerStyle, "!")
	}
	return prompt + "> "
}

// ContactLine renders one row of the contact list.
func (p *Printer) ContactLine(c pilottypes.Contact) string {
	path := c.OutPath
	if c.FloodPath() {
		path = "flood"
	}
	return fmt.Sprintf("%s %s  [%s, %s]",
		p.styled(KindStyle(c.Kind), c.Name),
		c.IdentityPrefix(12),
		c.Kind,
		path,
	)
}

// ChannelLabel names a broadcast channel the way targets spell it:
// channel 0 is "public", the rest are "chN".
func ChannelLabel(n int) string {
	if n == 0 {
		return "public"
	}
	return fmt.Sprintf("ch%d", n)
}

// styled applies a style, then strips it again when color is off. One
// composition path keeps styled and plain output identical in content.
func (p *Printer) styled(style lipgloss.Style, text string) string {
	rendered := style.Render(text)
	if p.opts != nil && !p.opts.Color() {
		return ansi.Strip(rendered)
	}
	return rendered
}

func (p *Printer) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.writer, text)
}

// Plain strips any styling from a rendered string.
func Plain(s string) string {
	return ansi.Strip(s)
}

// TrimPrompt removes styling and the trailing marker from a prompt, for
// logging and tests.
func TrimPrompt(prompt string) string {
	return strings.TrimSuffix(ansi.Strip(prompt), "> ")
}
