// Package builtin provides the console verbs registered by default:
// messaging, repeater and room operations, contact management, device
// configuration and console control.
package builtin

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"meshpilot/internal/await"
	"meshpilot/internal/commands"
	"meshpilot/internal/logger"
	"meshpilot/internal/output"
	"meshpilot/internal/store"
	"meshpilot/pkg/pilottypes"
)

// requireContact resolves a contact argument by exact display name.
func requireContact(env *commands.Env, name string) (pilottypes.Contact, error) {
	if env.Registry != nil {
		if c, ok := env.Registry.FindByName(name); ok {
			return *c, nil
		}
	}
	return pilottypes.Contact{}, fmt.Errorf("unknown contact %s", name)
}

// sendPayload is the machine form of a send confirmation.
func sendPayload(res pilottypes.SendResult) map[string]any {
	payload := map[string]any{"expected_ack": string(res.ExpectedAck)}
	if res.SuggestedTimeout > 0 {
		payload["suggested_timeout"] = res.SuggestedTimeout.Milliseconds()
	}
	return payload
}

func recordOutbound(env *commands.Env, counterpart, counterpartName string, channel int, text string) int64 {
	if env.Archive == nil {
		return 0
	}
	id, err := env.Archive.Record(store.Entry{
		Direction:       store.Out,
		Counterpart:     counterpart,
		CounterpartName: counterpartName,
		Channel:         channel,
		Text:            text,
	})
	if err != nil {
		logger.Warn("Archive write failed", "error", err)
	}
	return id
}

func recordInbound(env *commands.Env, ev pilottypes.Event) {
	if env.Archive == nil || ev.Message == nil {
		return
	}
	m := ev.Message
	e := store.Entry{
		Direction: store.In,
		Channel:   -1,
		Text:      m.Text,
		PathLen:   m.PathLen,
		SNR:       m.SNR,
	}
	if ev.Kind == pilottypes.EventChannelMessage {
		e.Channel = m.Channel
		e.CounterpartName = output.ChannelLabel(m.Channel)
	} else {
		e.Counterpart = m.SenderPrefix
		e.CounterpartName = m.SenderPrefix
		if env.Registry != nil {
			if c, ok := env.Registry.FindByPrefix(m.SenderPrefix); ok {
				e.Counterpart = c.Identity
				e.CounterpartName = c.Name
			}
		}
	}
	if _, err := env.Archive.Record(e); err != nil {
		logger.Warn("Archive write failed", "error", err)
	}
}

// showMessage renders one pulled or awaited message event.
func showMessage(env *commands.Env, ev pilottypes.Event) {
	recordInbound(env, ev)
	view := output.ViewFromEvent(ev, registryLookup(env))
	if env.Machine {
		env.Printer.Println(output.MachineValue(view.Payload()))
		return
	}
	env.Printer.Message(view)
}

// MsgCommand sends a direct message without waiting for the acknowledgment.
// Scripted chains follow it with wait_ack when delivery matters.
type MsgCommand struct{}

// Name returns the canonical verb.
func (c *MsgCommand) Name() string { return "msg" }

// Aliases returns alternate spellings.
func (c *MsgCommand) Aliases() []string { return []string{"m", "{"} }

// Summary returns the one-line help text.
func (c *MsgCommand) Summary() string { return "send a message to a named contact" }

// Usage returns the argument synopsis.
func (c *MsgCommand) Usage() string { return "msg <name> <text>" }

// Args bounds the argument count.
func (c *MsgCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 2, Max: 2, Greedy: true} }

// Target states how the verb obtains its contact.
func (c *MsgCommand) Target() commands.TargetRule { return commands.TargetNamed }

// Execute sends the message and reports the expected acknowledgment token.
func (c *MsgCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	res, err := env.Link.SendMessage(env.Ctx, ct, args[1])
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	recordOutbound(env, ct.Identity, ct.Name, -1, args[1])
	if env.Machine {
		env.Printer.Println(output.MachineValue(sendPayload(res)))
	}
	return nil
}

func channelSend(env *commands.Env, channel int, text string) error {
	_, err := env.Link.SendChannelMessage(env.Ctx, channel, text)
	if err != nil {
		return fmt.Errorf("sending channel message: %w", err)
	}
	recordOutbound(env, "", output.ChannelLabel(channel), channel, text)
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true, "channel": channel}))
	}
	return nil
}

// ChanCommand broadcasts on a numbered channel. Broadcasts carry no
// acknowledgment, so there is nothing to wait for.
type ChanCommand struct{}

// Name returns the canonical verb.
func (c *ChanCommand) Name() string { return "chan" }

// Aliases returns alternate spellings.
func (c *ChanCommand) Aliases() []string { return []string{"ch"} }

// Summary returns the one-line help text.
func (c *ChanCommand) Summary() string { return "send a message on a channel" }

// Usage returns the argument synopsis.
func (c *ChanCommand) Usage() string { return "chan <n> <text>" }

// Args bounds the argument count.
func (c *ChanCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 2, Max: 2, Greedy: true} }

// Target states how the verb obtains its contact.
func (c *ChanCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute broadcasts on the given channel.
func (c *ChanCommand) Execute(env *commands.Env, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return commands.Usagef(c.Name(), "invalid channel %q", args[0])
	}
	return channelSend(env, n, args[1])
}

// PublicCommand broadcasts on channel 0, the public channel.
type PublicCommand struct{}

// Name returns the canonical verb.
func (c *PublicCommand) Name() string { return "public" }

// Aliases returns alternate spellings.
func (c *PublicCommand) Aliases() []string { return []string{"dch"} }

// Summary returns the one-line help text.
func (c *PublicCommand) Summary() string { return "send a message on the public channel" }

// Usage returns the argument synopsis.
func (c *PublicCommand) Usage() string { return "public <text>" }

// Args bounds the argument count.
func (c *PublicCommand) Args() commands.ArgSpec {
	return commands.ArgSpec{Min: 1, Max: 1, Greedy: true}
}

// Target states how the verb obtains its contact.
func (c *PublicCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute broadcasts on the public channel.
func (c *PublicCommand) Execute(env *commands.Env, args []string) error {
	return channelSend(env, 0, args[0])
}

// RecvCommand pulls one queued message from the device.
type RecvCommand struct{}

// Name returns the canonical verb.
func (c *RecvCommand) Name() string { return "recv" }

// Aliases returns alternate spellings.
func (c *RecvCommand) Aliases() []string { return []string{"r"} }

// Summary returns the one-line help text.
func (c *RecvCommand) Summary() string { return "fetch one queued message" }

// Usage returns the argument synopsis.
func (c *RecvCommand) Usage() string { return "recv" }

// Args bounds the argument count.
func (c *RecvCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *RecvCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute fetches and displays the next queued message.
func (c *RecvCommand) Execute(env *commands.Env, args []string) error {
	ev, ok, err := env.Link.NextMessage(env.Ctx)
	if err != nil {
		return fmt.Errorf("retrieving messages: %w", err)
	}
	if !ok {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"no_more_msgs": true}))
		} else {
			env.Printer.Dimf("No more messages")
		}
		return nil
	}
	showMessage(env, ev)
	return nil
}

// SyncMsgsCommand drains the device's message queue.
type SyncMsgsCommand struct{}

// Name returns the canonical verb.
func (c *SyncMsgsCommand) Name() string { return "sync_msgs" }

// Aliases returns alternate spellings.
func (c *SyncMsgsCommand) Aliases() []string { return []string{"sm"} }

// Summary returns the one-line help text.
func (c *SyncMsgsCommand) Summary() string { return "fetch all queued messages" }

// Usage returns the argument synopsis.
func (c *SyncMsgsCommand) Usage() string { return "sync_msgs" }

// Args bounds the argument count.
func (c *SyncMsgsCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *SyncMsgsCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute drains the queue, bracketing machine output into one array.
func (c *SyncMsgsCommand) Execute(env *commands.Env, args []string) error {
	first := true
	if env.Machine {
		env.Printer.Printf("[")
	}
	for {
		ev, ok, err := env.Link.NextMessage(env.Ctx)
		if err != nil {
			if env.Machine {
				env.Printer.Println("]")
			}
			return fmt.Errorf("retrieving messages: %w", err)
		}
		if !ok {
			break
		}
		if env.Machine {
			if !first {
				env.Printer.Printf(",")
			}
			recordInbound(env, ev)
			view := output.ViewFromEvent(ev, registryLookup(env))
			env.Printer.Printf("%s", output.MachineValue(view.Payload()))
		} else {
			showMessage(env, ev)
		}
		first = false
	}
	if env.Machine {
		env.Printer.Println("]")
	}
	return nil
}

func registryLookup(env *commands.Env) func(string) (*pilottypes.Contact, bool) {
	return func(prefix string) (*pilottypes.Contact, bool) {
		if env.Registry == nil {
			return nil, false
		}
		return env.Registry.FindByPrefix(prefix)
	}
}

// waitOneMessage blocks until a direct or channel message arrives. quiet
// suppresses the timeout notice for the bounded try-wait forms.
func waitOneMessage(env *commands.Env, timeout time.Duration, quiet bool) error {
	w, err := env.Waits.RegisterAny(pilottypes.EventContactMessage, pilottypes.EventChannelMessage)
	if err != nil {
		return err
	}
	ev, err := env.Waits.Await(env.Ctx, w, timeout)
	if errors.Is(err, await.ErrTimeout) {
		if quiet {
			return nil
		}
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"error": "Timeout waiting msg"}))
		} else {
			env.Printer.Warnf("Timeout waiting msg")
		}
		return nil
	}
	if err != nil {
		return err
	}
	showMessage(env, ev)
	return nil
}

// WaitMsgCommand waits for the next incoming message.
type WaitMsgCommand struct{}

// Name returns the canonical verb.
func (c *WaitMsgCommand) Name() string { return "wait_msg" }

// Aliases returns alternate spellings.
func (c *WaitMsgCommand) Aliases() []string { return []string{"wm"} }

// Summary returns the one-line help text.
func (c *WaitMsgCommand) Summary() string { return "wait for the next message" }

// Usage returns the argument synopsis.
func (c *WaitMsgCommand) Usage() string { return "wait_msg" }

// Args bounds the argument count.
func (c *WaitMsgCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *WaitMsgCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits for a message with the default reply timeout.
func (c *WaitMsgCommand) Execute(env *commands.Env, args []string) error {
	return waitOneMessage(env, await.DefaultFallback, false)
}

// TrywaitMsgCommand waits for a message for a caller-chosen number of
// seconds and stays silent when none arrives.
type TrywaitMsgCommand struct{}

// Name returns the canonical verb.
func (c *TrywaitMsgCommand) Name() string { return "trywait_msg" }

// Aliases returns alternate spellings.
func (c *TrywaitMsgCommand) Aliases() []string { return []string{"wmt"} }

// Summary returns the one-line help text.
func (c *TrywaitMsgCommand) Summary() string { return "wait up to n seconds for a message" }

// Usage returns the argument synopsis.
func (c *TrywaitMsgCommand) Usage() string { return "trywait_msg <seconds>" }

// Args bounds the argument count.
func (c *TrywaitMsgCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *TrywaitMsgCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits for a message for the given number of seconds.
func (c *TrywaitMsgCommand) Execute(env *commands.Env, args []string) error {
	secs, err := strconv.Atoi(args[0])
	if err != nil || secs < 0 {
		return commands.Usagef(c.Name(), "invalid wait %q: want seconds", args[0])
	}
	return waitOneMessage(env, time.Duration(secs)*time.Second, true)
}

// Wmt8Command is the scripted eight second message wait.
type Wmt8Command struct{}

// Name returns the canonical verb.
func (c *Wmt8Command) Name() string { return "wmt8" }

// Aliases returns alternate spellings.
func (c *Wmt8Command) Aliases() []string { return []string{"]"} }

// Summary returns the one-line help text.
func (c *Wmt8Command) Summary() string { return "wait up to 8 seconds for a message" }

// Usage returns the argument synopsis.
func (c *Wmt8Command) Usage() string { return "wmt8" }

// Args bounds the argument count.
func (c *Wmt8Command) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *Wmt8Command) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits up to eight seconds for a message.
func (c *Wmt8Command) Execute(env *commands.Env, args []string) error {
	return waitOneMessage(env, 8*time.Second, true)
}

// WaitAckCommand waits for the next acknowledgment of any in-flight send.
type WaitAckCommand struct{}

// Name returns the canonical verb.
func (c *WaitAckCommand) Name() string { return "wait_ack" }

// Aliases returns alternate spellings.
func (c *WaitAckCommand) Aliases() []string { return []string{"wa", "}"} }

// Summary returns the one-line help text.
func (c *WaitAckCommand) Summary() string { return "wait for a message acknowledgment" }

// Usage returns the argument synopsis.
func (c *WaitAckCommand) Usage() string { return "wait_ack" }

// Args bounds the argument count.
func (c *WaitAckCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *WaitAckCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits for the next acknowledgment event.
func (c *WaitAckCommand) Execute(env *commands.Env, args []string) error {
	w, err := env.Waits.Register(pilottypes.EventAck, "")
	if err != nil {
		return err
	}
	ev, err := env.Waits.Await(env.Ctx, w, env.Options.AckTimeout())
	if errors.Is(err, await.ErrTimeout) {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"error": "Timeout waiting ack"}))
		} else {
			env.Printer.Warnf("Timeout waiting ack")
		}
		return nil
	}
	if err != nil {
		return err
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"code": string(ev.AckCode)}))
	} else {
		env.Printer.Successf("Msg acked")
	}
	return nil
}

// SendCommand sends to a target and waits for the acknowledgment, the
// interactive send path. Channel targets are fire-and-forget.
type SendCommand struct{}

// Name returns the canonical verb.
func (c *SendCommand) Name() string { return "send" }

// Aliases returns alternate spellings.
func (c *SendCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *SendCommand) Summary() string { return "send a message and wait for the acknowledgment" }

// Usage returns the argument synopsis.
func (c *SendCommand) Usage() string { return "send <name> <text>" }

// Args bounds the argument count.
func (c *SendCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 2, Max: 2, Greedy: true} }

// Target states how the verb obtains its contact.
func (c *SendCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute sends the message and reports delivery through the session's
// acknowledged state.
func (c *SendCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	res, err := env.Link.SendMessage(env.Ctx, ct, args[1])
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	id := recordOutbound(env, ct.Identity, ct.Name, -1, args[1])

	if res.ExpectedAck.IsZero() {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"sent": true}))
		}
		return nil
	}

	w, err := env.Waits.Register(pilottypes.EventAck, string(res.ExpectedAck))
	if err != nil {
		return err
	}
	timeout := await.Effective(&ct, res.SuggestedTimeout, env.Options.AckTimeout())
	_, err = env.Waits.Await(env.Ctx, w, timeout)

	acked := err == nil
	if env.Session != nil {
		env.Session.SetLastAck(acked)
	}
	switch {
	case acked:
		if env.Archive != nil && id != 0 {
			if err := env.Archive.MarkAcked(id); err != nil {
				logger.Warn("Archive update failed", "error", err)
			}
		}
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"acked": true, "expected_ack": string(res.ExpectedAck)}))
		}
	case errors.Is(err, await.ErrTimeout):
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"acked": false, "expected_ack": string(res.ExpectedAck)}))
		} else {
			env.Printer.Warnf("Timeout waiting ack")
		}
	default:
		return err
	}
	return nil
}

func init() {
	for _, cmd := range []commands.Command{
		&MsgCommand{},
		&ChanCommand{},
		&PublicCommand{},
		&RecvCommand{},
		&SyncMsgsCommand{},
		&WaitMsgCommand{},
		&TrywaitMsgCommand{},
		&Wmt8Command{},
		&WaitAckCommand{},
		&SendCommand{},
	} {
		if err := commands.GlobalRegistry.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register %s command: %v", cmd.Name(), err))
		}
	}
}
