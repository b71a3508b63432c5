package builtin

import (
	"errors"
	"fmt"

	"meshpilot/internal/await"
	"meshpilot/internal/commands"
	"meshpilot/internal/device"
	"meshpilot/internal/output"
	"meshpilot/pkg/pilottypes"
)

// waitResponse blocks for the first event of a kind, the correlation used
// by replies that carry no token.
func waitResponse(env *commands.Env, kind pilottypes.EventKind) (pilottypes.Event, error) {
	w, err := env.Waits.Register(kind, "")
	if err != nil {
		return pilottypes.Event{}, err
	}
	return env.Waits.Await(env.Ctx, w, await.DefaultFallback)
}

// LoginCommand authenticates against a repeater or room server. The
// outcome arrives asynchronously; wait_login collects it.
type LoginCommand struct{}

// Name returns the canonical verb.
func (c *LoginCommand) Name() string { return "login" }

// Aliases returns alternate spellings.
func (c *LoginCommand) Aliases() []string { return []string{"l", "[["} }

// Summary returns the one-line help text.
func (c *LoginCommand) Summary() string { return "log in to a repeater or room server" }

// Usage returns the argument synopsis.
func (c *LoginCommand) Usage() string { return "login <name> <password>" }

// Args bounds the argument count.
func (c *LoginCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 2, Max: 2, Greedy: true} }

// Target states how the verb obtains its contact.
func (c *LoginCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute issues the login request.
func (c *LoginCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	res, err := env.Link.Login(env.Ctx, ct, args[1])
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(sendPayload(res)))
	}
	return nil
}

// LogoutCommand ends an authenticated session.
type LogoutCommand struct{}

// Name returns the canonical verb.
func (c *LogoutCommand) Name() string { return "logout" }

// Aliases returns alternate spellings.
func (c *LogoutCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *LogoutCommand) Summary() string { return "log out from a repeater or room server" }

// Usage returns the argument synopsis.
func (c *LogoutCommand) Usage() string { return "logout <name>" }

// Args bounds the argument count.
func (c *LogoutCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *LogoutCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute logs out.
func (c *LogoutCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	if err := env.Link.Logout(env.Ctx, ct); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Logout ok")
	}
	return nil
}

// WaitLoginCommand collects the outcome of a pending login.
type WaitLoginCommand struct{}

// Name returns the canonical verb.
func (c *WaitLoginCommand) Name() string { return "wait_login" }

// Aliases returns alternate spellings.
func (c *WaitLoginCommand) Aliases() []string { return []string{"wl", "]]"} }

// Summary returns the one-line help text.
func (c *WaitLoginCommand) Summary() string { return "wait for a login result" }

// Usage returns the argument synopsis.
func (c *WaitLoginCommand) Usage() string { return "wait_login" }

// Args bounds the argument count.
func (c *WaitLoginCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *WaitLoginCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits for the login result event.
func (c *WaitLoginCommand) Execute(env *commands.Env, args []string) error {
	ev, err := waitResponse(env, pilottypes.EventLoginResult)
	if errors.Is(err, await.ErrTimeout) {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"login_success": false, "error": "timeout"}))
		} else {
			env.Printer.Errorf("Login failed : Timeout waiting response")
		}
		return nil
	}
	if err != nil {
		return err
	}
	success := ev.Login != nil && ev.Login.Success
	if env.Machine {
		payload := map[string]any{"login_success": success}
		if success {
			payload["is_admin"] = ev.Login.IsAdmin
		}
		env.Printer.Println(output.MachineValue(payload))
		return nil
	}
	if success {
		env.Printer.Successf("Login success")
	} else {
		env.Printer.Errorf("Login failed")
	}
	return nil
}

// ReqStatusCommand asks a repeater for its status block.
type ReqStatusCommand struct{}

// Name returns the canonical verb.
func (c *ReqStatusCommand) Name() string { return "req_status" }

// Aliases returns alternate spellings.
func (c *ReqStatusCommand) Aliases() []string { return []string{"rs"} }

// Summary returns the one-line help text.
func (c *ReqStatusCommand) Summary() string { return "request a repeater's status" }

// Usage returns the argument synopsis.
func (c *ReqStatusCommand) Usage() string { return "req_status <name>" }

// Args bounds the argument count.
func (c *ReqStatusCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ReqStatusCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute issues the status request; wait_status collects the answer.
func (c *ReqStatusCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	res, err := env.Link.StatusRequest(env.Ctx, ct)
	if err != nil {
		return fmt.Errorf("requesting status: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(sendPayload(res)))
	}
	return nil
}

// WaitStatusCommand collects a pending status response.
type WaitStatusCommand struct{}

// Name returns the canonical verb.
func (c *WaitStatusCommand) Name() string { return "wait_status" }

// Aliases returns alternate spellings.
func (c *WaitStatusCommand) Aliases() []string { return []string{"ws"} }

// Summary returns the one-line help text.
func (c *WaitStatusCommand) Summary() string { return "wait for a status response" }

// Usage returns the argument synopsis.
func (c *WaitStatusCommand) Usage() string { return "wait_status" }

// Args bounds the argument count.
func (c *WaitStatusCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *WaitStatusCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits for the status response event.
func (c *WaitStatusCommand) Execute(env *commands.Env, args []string) error {
	ev, err := waitResponse(env, pilottypes.EventStatusResponse)
	if errors.Is(err, await.ErrTimeout) {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"error": "Timeout waiting status"}))
		} else {
			env.Printer.Warnf("Timeout waiting status")
		}
		return nil
	}
	if err != nil {
		return err
	}
	env.Printer.Result(ev.Status, env.Machine)
	return nil
}

// ReqTelemetryCommand asks a node for its telemetry block. Needs firmware
// with telemetry support.
type ReqTelemetryCommand struct{}

// Name returns the canonical verb.
func (c *ReqTelemetryCommand) Name() string { return "req_telemetry" }

// Aliases returns alternate spellings.
func (c *ReqTelemetryCommand) Aliases() []string { return []string{"rt"} }

// Summary returns the one-line help text.
func (c *ReqTelemetryCommand) Summary() string { return "request a node's telemetry" }

// Usage returns the argument synopsis.
func (c *ReqTelemetryCommand) Usage() string { return "req_telemetry <name>" }

// Args bounds the argument count.
func (c *ReqTelemetryCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ReqTelemetryCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute issues the telemetry request; wait_telemetry collects the answer.
func (c *ReqTelemetryCommand) Execute(env *commands.Env, args []string) error {
	if !device.SupportsTelemetry(env.Link.Info()) {
		return fmt.Errorf("telemetry requires firmware %s or newer", device.MinTelemetryFirmware)
	}
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	res, err := env.Link.TelemetryRequest(env.Ctx, ct)
	if err != nil {
		return fmt.Errorf("requesting telemetry: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(sendPayload(res)))
	}
	return nil
}

// WaitTelemetryCommand collects a pending telemetry response.
type WaitTelemetryCommand struct{}

// Name returns the canonical verb.
func (c *WaitTelemetryCommand) Name() string { return "wait_telemetry" }

// Aliases returns alternate spellings.
func (c *WaitTelemetryCommand) Aliases() []string { return []string{"wt"} }

// Summary returns the one-line help text.
func (c *WaitTelemetryCommand) Summary() string { return "wait for a telemetry response" }

// Usage returns the argument synopsis.
func (c *WaitTelemetryCommand) Usage() string { return "wait_telemetry" }

// Args bounds the argument count.
func (c *WaitTelemetryCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *WaitTelemetryCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute waits for the telemetry response event.
func (c *WaitTelemetryCommand) Execute(env *commands.Env, args []string) error {
	ev, err := waitResponse(env, pilottypes.EventTelemetryResponse)
	if errors.Is(err, await.ErrTimeout) {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"error": "Timeout waiting telemetry"}))
		} else {
			env.Printer.Warnf("Timeout waiting telemetry")
		}
		return nil
	}
	if err != nil {
		return err
	}
	env.Printer.Result(ev.Telemetry, env.Machine)
	return nil
}

// RemoteCmdCommand sends a raw command line to a repeater or room server.
// The reply comes back later as a command-reply message.
type RemoteCmdCommand struct{}

// Name returns the canonical verb.
func (c *RemoteCmdCommand) Name() string { return "cmd" }

// Aliases returns alternate spellings.
func (c *RemoteCmdCommand) Aliases() []string { return []string{"c", "["} }

// Summary returns the one-line help text.
func (c *RemoteCmdCommand) Summary() string { return "send a raw command to a repeater" }

// Usage returns the argument synopsis.
func (c *RemoteCmdCommand) Usage() string { return "cmd <name> <command>" }

// Args bounds the argument count.
func (c *RemoteCmdCommand) Args() commands.ArgSpec {
	return commands.ArgSpec{Min: 2, Max: 2, Greedy: true}
}

// Target states how the verb obtains its contact.
func (c *RemoteCmdCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute sends the command line.
func (c *RemoteCmdCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	res, err := env.Link.SendCommand(env.Ctx, ct, args[1])
	if err != nil {
		return fmt.Errorf("sending cmd: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(sendPayload(res)))
	}
	return nil
}

func init() {
	for _, cmd := range []commands.Command{
		&LoginCommand{},
		&LogoutCommand{},
		&WaitLoginCommand{},
		&ReqStatusCommand{},
		&WaitStatusCommand{},
		&ReqTelemetryCommand{},
		&WaitTelemetryCommand{},
		&RemoteCmdCommand{},
	} {
		if err := commands.GlobalRegistry.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register %s command: %v", cmd.Name(), err))
		}
	}
}
