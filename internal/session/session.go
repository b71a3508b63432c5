// Package session drives the interactive console: a readline prompt on one
// side, the device event stream on the other, and the target, undo and
// acknowledgment state both feed. Lines the user types are routed either to
// the command vocabulary or, as free text, to the current target.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"golang.org/x/sync/errgroup"

	"meshpilot/internal/await"
	"meshpilot/internal/commands"
	"meshpilot/internal/config"
	"meshpilot/internal/logger"
	"meshpilot/internal/output"
	"meshpilot/internal/registry"
	"meshpilot/internal/store"
	"meshpilot/internal/target"
	"meshpilot/pkg/pilottypes"
)

// errClosed marks a deliberate session end, distinguishing quit, end of
// input and interrupts from real failures.
var errClosed = errors.New("session closed")

// Config carries the collaborators a session runs against.
type Config struct {
	Link     pilottypes.Link
	Registry *registry.Registry
	Waits    *await.Coordinator
	Options  *config.Options
	Printer  *output.Printer
	Archive  *store.Archive // optional message archive

	// Start is the initial target. A zero Target starts at the root, which
	// Run adopts as the device itself.
	Start pilottypes.Target

	// History is the readline history file; "" disables persistence.
	History string
}

// Session owns the interactive loop state: the current and previous target,
// the last-seen sender, and whether the latest direct send was acknowledged.
// It implements commands.SessionState for the verbs it dispatches.
type Session struct {
	link     pilottypes.Link
	registry *registry.Registry
	waits    *await.Coordinator
	options  *config.Options
	printer  *output.Printer
	archive  *store.Archive
	history  string

	self pilottypes.DeviceInfo

	mu          sync.Mutex
	current     pilottypes.Target
	previous    pilottypes.Target
	hasPrevious bool
	lastSender  *pilottypes.Target
	lastAck     bool
	chat        *pilottypes.Target

	quitOnce sync.Once
	quit     chan struct{}

	rl *readline.Instance
}

var _ commands.SessionState = (*Session)(nil)

// New builds a session on an open link.
func New(cfg Config) *Session {
	return &Session{
		link:     cfg.Link,
		registry: cfg.Registry,
		waits:    cfg.Waits,
		options:  cfg.Options,
		printer:  cfg.Printer,
		archive:  cfg.Archive,
		history:  cfg.History,
		self:     cfg.Link.Info(),
		current:  cfg.Start,
		lastAck:  true,
		quit:     make(chan struct{}),
	}
}

// Current returns the session's target.
func (s *Session) Current() pilottypes.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Resolve maps a target token to a Target against a snapshot of the
// session state.
func (s *Session) Resolve(token string) (pilottypes.Target, error) {
	s.mu.Lock()
	view := target.View{
		Current:     s.current,
		Previous:    s.previous,
		HasPrevious: s.hasPrevious,
		LastSender:  s.lastSender,
		SelfName:    s.self.Name,
		Contacts:    s.registry,
	}
	s.mu.Unlock()
	return target.Resolve(token, view)
}

// Navigate adopts a target. The old target moves into the undo slot only
// when the target actually changes, so no-op navigations leave ".." alone.
func (s *Session) Navigate(t pilottypes.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Equal(s.current) {
		return false
	}
	s.previous, s.hasPrevious = s.current, true
	s.current = t
	return true
}

// LastSender returns the origin of the most recent incoming message, a
// contact or a channel. Every inbound message overwrites the slot.
func (s *Session) LastSender() (pilottypes.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSender == nil {
		return pilottypes.Target{}, false
	}
	return *s.lastSender, true
}

// SetLastAck records whether the latest direct send was acknowledged. The
// prompt shows a marker while it is false.
func (s *Session) SetLastAck(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAck = ok
}

func (s *Session) acked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAck
}

// Self describes the connected node.
func (s *Session) Self() pilottypes.DeviceInfo { return s.self }

// RequestChat records an interactive-mode request and adopts its target.
// Inside a running session this is a navigation; before one, the request
// tells the caller which target interactive mode should start on.
func (s *Session) RequestChat(t pilottypes.Target) {
	s.mu.Lock()
	s.chat = &t
	s.mu.Unlock()
	s.Navigate(t)
}

// ChatRequest reports whether a chain asked for interactive mode, and on
// which target.
func (s *Session) ChatRequest() (pilottypes.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return pilottypes.Target{}, false
	}
	return *s.chat, true
}

// RequestQuit asks the prompt loop to wind down after the current line.
func (s *Session) RequestQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Session) quitRequested() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// env builds the execution environment one routed line runs with. Output is
// human form unless machine output is switched on globally; a dot prefix
// switches single verbs to machine form inside the chain processor.
func (s *Session) env(ctx context.Context) *commands.Env {
	return &commands.Env{
		Ctx:      ctx,
		Link:     s.link,
		Registry: s.registry,
		Waits:    s.waits,
		Options:  s.options,
		Printer:  s.printer,
		Archive:  s.archive,
		Session:  s,
		Machine:  s.options.MachineOutput(),
	}
}

// Run connects the prompt loop to the event stream and blocks until the
// user quits, input ends, or the link drops. The returned error is nil on a
// clean close and the disconnect reason otherwise.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.current.Kind == pilottypes.TargetNone {
		s.current = pilottypes.SelfTarget()
	}
	s.mu.Unlock()

	s.banner()
	if err := s.startup(ctx); err != nil {
		return err
	}
	s.runScripts(ctx)

	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:       s.history,
		AutoComplete:      NewCompleter(commands.GlobalRegistry, s.registry, s),
		InterruptPrompt:   "^C",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("opening console: %w", err)
	}
	s.rl = rl
	defer rl.Close()
	s.printer.SetWriter(rl.Stdout())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Pump(ctx) })
	g.Go(func() error { return s.promptLoop(ctx) })
	g.Go(func() error {
		// Unblocks a pending Readline when the pump dies first.
		<-ctx.Done()
		return rl.Close()
	})

	err = g.Wait()
	s.printer.SetWriter(os.Stdout)
	if errors.Is(err, errClosed) {
		s.printer.Println("Exiting console")
		return nil
	}
	return err
}

func (s *Session) banner() {
	s.printer.Println("Interactive mode. \"to\" picks the recipient, Tab completes names.")
	s.printer.Println("\"$\" or \".\" escapes a console command, \"!\" replies to the last sender.")
	s.printer.Println("\"quit\", \"q\" or Ctrl-D leaves.")
}

// startup mirrors the device into the console: the contact list first, then
// whatever queued up while no console was attached.
func (s *Session) startup(ctx context.Context) error {
	contacts, err := s.link.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("syncing contacts: %w", err)
	}
	s.registry.ReplaceAll(contacts)

	for {
		ev, ok, err := s.link.NextMessage(ctx)
		if err != nil {
			return fmt.Errorf("draining queued messages: %w", err)
		}
		if !ok {
			return nil
		}
		s.showIncoming(ev)
	}
}

// runScripts executes the startup script and the per-node variant when they
// exist, line by line, the same way command line chains run.
func (s *Session) runScripts(ctx context.Context) {
	for _, path := range config.StartupScripts(s.self.Name) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		logger.Info("Running startup script", "path", path)
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			s.runLine(ctx, line)
		}
	}
}

// Pump consumes the device event stream until the link drops or ctx ends.
// Every event is offered to the wait coordinator first; unclaimed events
// fall to the passive handlers that keep the registry and the display
// current. Run starts it alongside the prompt loop; chained invocations run
// it on its own so sends still see their acknowledgments.
func (s *Session) Pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.link.Events():
			if !ok {
				return errClosed
			}
			if ev.Kind == pilottypes.EventDisconnected {
				if ev.Err != nil {
					return fmt.Errorf("connection lost: %w", ev.Err)
				}
				return errClosed
			}
			if s.waits.Deliver(ev) {
				continue
			}
			s.passive(ev)
		}
	}
}

// passive handles events no waiter claimed.
func (s *Session) passive(ev pilottypes.Event) {
	switch ev.Kind {
	case pilottypes.EventContactMessage, pilottypes.EventChannelMessage:
		s.showIncoming(ev)
	case pilottypes.EventAdvertisement:
		if ev.Pending == nil {
			return
		}
		p := *ev.Pending
		if c, ok := s.registry.Get(p.Identity); ok {
			s.registry.MarkAdvert(c.Identity, p.Seen)
			s.printer.Dimf("Advert from %s", c.Name)
			return
		}
		s.registry.AddPending(p)
		s.printer.Dimf("Advert from %s (pending)", p.Name)
	case pilottypes.EventPathUpdate:
		if ev.Path == nil {
			return
		}
		if c, ok := s.registry.FindByPrefix(ev.Path.IdentityPrefix); ok {
			s.registry.UpdatePath(c.Identity, ev.Path.OutPath)
			s.printer.Dimf("Path to %s updated", c.Name)
		}
	case pilottypes.EventNewContact:
		if ev.Contact == nil {
			return
		}
		s.registry.Add(*ev.Contact)
		s.printer.Dimf("New contact %s", ev.Contact.Name)
	case pilottypes.EventLoginResult:
		// Login replies can outlive their wait.
		if ev.Login == nil {
			return
		}
		if ev.Login.Success {
			s.printer.Successf("Login success")
		} else {
			s.printer.Errorf("Login failed")
		}
	case pilottypes.EventAck:
		logger.Debug("Unclaimed ack", "code", string(ev.AckCode))
	default:
		logger.Debug("Unclaimed event", "event", ev.Kind.String())
	}
}

// showIncoming renders a message above the prompt, archives it and
// remembers its origin for "!" replies.
func (s *Session) showIncoming(ev pilottypes.Event) {
	if ev.Message == nil {
		return
	}
	switch ev.Kind {
	case pilottypes.EventContactMessage:
		if c, ok := s.registry.FindByPrefix(ev.Message.SenderPrefix); ok {
			s.setLastSender(pilottypes.ContactTarget(c))
		}
	case pilottypes.EventChannelMessage:
		s.setLastSender(pilottypes.ChannelTarget(ev.Message.Channel))
	}
	s.recordIncoming(ev)
	s.printer.Message(output.ViewFromEvent(ev, s.registry.FindByPrefix))
}

func (s *Session) setLastSender(t pilottypes.Target) {
	s.mu.Lock()
	s.lastSender = &t
	s.mu.Unlock()
}

func (s *Session) recordIncoming(ev pilottypes.Event) {
	if s.archive == nil {
		return
	}
	m := ev.Message
	e := store.Entry{Direction: store.In, Channel: -1, Text: m.Text, PathLen: m.PathLen, SNR: m.SNR}
	if ev.Kind == pilottypes.EventChannelMessage {
		e.Channel = m.Channel
		e.CounterpartName = output.ChannelLabel(m.Channel)
	} else {
		e.Counterpart = m.SenderPrefix
		e.CounterpartName = m.SenderPrefix
		if c, ok := s.registry.FindByPrefix(m.SenderPrefix); ok {
			e.Counterpart = c.Identity
			e.CounterpartName = c.Name
		}
	}
	if _, err := s.archive.Record(e); err != nil {
		logger.Warn("Archive write failed", "error", err)
	}
}

// promptLoop reads and routes lines until quit, end of input or interrupt.
func (s *Session) promptLoop(ctx context.Context) error {
	for {
		select {
		case <-s.quit:
			return errClosed
		case <-ctx.Done():
			return errClosed
		default:
		}

		s.rl.SetPrompt(s.printer.Prompt(s.Current(), !s.acked()))
		line, err := s.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
			return errClosed
		case err != nil:
			return err
		}
		s.route(ctx, line)
	}
}
