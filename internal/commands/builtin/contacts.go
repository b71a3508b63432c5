package builtin

import (
	"fmt"
	"strconv"
	"time"

	"meshpilot/internal/commands"
	"meshpilot/internal/device"
	"meshpilot/internal/output"
	"meshpilot/pkg/pilottypes"
)

// syncContacts refreshes the registry from the device, keeping pending
// entries untouched.
func syncContacts(env *commands.Env) error {
	list, err := env.Link.Contacts(env.Ctx)
	if err != nil {
		return fmt.Errorf("asking for contacts: %w", err)
	}
	env.Registry.ReplaceAll(list)
	return nil
}

func contactPayload(c pilottypes.Contact) map[string]any {
	payload := map[string]any{
		"adv_name":   c.Name,
		"public_key": c.Identity,
		"type":       c.Kind.String(),
	}
	if c.OutPath != "" {
		payload["out_path"] = c.OutPath
	}
	if !c.LastAdvert.IsZero() {
		payload["last_advert"] = c.LastAdvert.Unix()
	}
	if c.ResponseTimeout > 0 {
		payload["timeout_s"] = c.ResponseTimeout.Seconds()
	}
	return payload
}

// ContactsCommand syncs and lists the node's contacts.
type ContactsCommand struct{}

// Name returns the canonical verb.
func (c *ContactsCommand) Name() string { return "contacts" }

// Aliases returns alternate spellings.
func (c *ContactsCommand) Aliases() []string { return []string{"list", "lc"} }

// Summary returns the one-line help text.
func (c *ContactsCommand) Summary() string { return "list contacts synced from the device" }

// Usage returns the argument synopsis.
func (c *ContactsCommand) Usage() string { return "contacts" }

// Args bounds the argument count.
func (c *ContactsCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *ContactsCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute refreshes the registry from the device and lists it.
func (c *ContactsCommand) Execute(env *commands.Env, args []string) error {
	if err := syncContacts(env); err != nil {
		return err
	}
	list := env.Registry.List()
	if env.Machine {
		payload := make([]map[string]any, 0, len(list))
		for _, ct := range list {
			payload = append(payload, contactPayload(ct))
		}
		env.Printer.Println(output.MachineValue(payload))
		return nil
	}
	for _, ct := range list {
		env.Printer.Println(env.Printer.ContactLine(ct))
	}
	return nil
}

// PendingCommand manages advertisement entries from unknown nodes: bare it
// lists them, "add <name>" promotes one to a confirmed contact, "flush"
// discards them all. Needs firmware that reports pending contacts.
type PendingCommand struct{}

// Name returns the canonical verb.
func (c *PendingCommand) Name() string { return "pending" }

// Aliases returns alternate spellings.
func (c *PendingCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *PendingCommand) Summary() string { return "list, add or flush pending contacts" }

// Usage returns the argument synopsis.
func (c *PendingCommand) Usage() string { return "pending [add <name> | flush]" }

// Args bounds the argument count.
func (c *PendingCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 0, Max: 2} }

// Target states how the verb obtains its contact.
func (c *PendingCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute dispatches on the subcommand.
func (c *PendingCommand) Execute(env *commands.Env, args []string) error {
	if !device.SupportsPending(env.Link.Info()) {
		return fmt.Errorf("pending contacts require firmware %s or newer", device.MinPendingFirmware)
	}

	if len(args) == 0 {
		return c.list(env)
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			return commands.Usagef(c.Name(), "usage: pending add <name>")
		}
		return c.add(env, args[1])
	case "flush":
		n := env.Registry.FlushPending()
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"flushed": n}))
		} else {
			env.Printer.Dimf("Flushed %d pending contacts", n)
		}
		return nil
	default:
		return commands.Usagef(c.Name(), "unknown subcommand %q", args[0])
	}
}

func (c *PendingCommand) list(env *commands.Env) error {
	pending := env.Registry.PendingList()
	if env.Machine {
		payload := make([]map[string]any, 0, len(pending))
		for _, p := range pending {
			payload = append(payload, map[string]any{
				"adv_name":   p.Name,
				"public_key": p.Identity,
				"seen":       p.Seen.Unix(),
			})
		}
		env.Printer.Println(output.MachineValue(payload))
		return nil
	}
	if len(pending) == 0 {
		env.Printer.Dimf("No pending contacts")
		return nil
	}
	for _, p := range pending {
		env.Printer.Printf("%s %s  seen %s\n", p.Name, shortIdentity(p.Identity), p.Seen.Format("15:04:05"))
	}
	return nil
}

func (c *PendingCommand) add(env *commands.Env, name string) error {
	p, ok := env.Registry.PendingByName(name)
	if !ok {
		return fmt.Errorf("no pending contact %s", name)
	}
	ct := pilottypes.Contact{Identity: p.Identity, Name: p.Name, Kind: pilottypes.KindChat}
	if err := env.Link.AddContact(env.Ctx, ct); err != nil {
		return fmt.Errorf("adding contact: %w", err)
	}
	promoted, err := env.Registry.Promote(p.Identity)
	if err != nil {
		return err
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(contactPayload(*promoted)))
	} else {
		env.Printer.Successf("Contact %s added", promoted.Name)
	}
	return nil
}

func shortIdentity(identity string) string {
	if len(identity) > 12 {
		return identity[:12]
	}
	return identity
}

// ShareContactCommand rebroadcasts a contact for nearby nodes.
type ShareContactCommand struct{}

// Name returns the canonical verb.
func (c *ShareContactCommand) Name() string { return "share_contact" }

// Aliases returns alternate spellings.
func (c *ShareContactCommand) Aliases() []string { return []string{"sc"} }

// Summary returns the one-line help text.
func (c *ShareContactCommand) Summary() string { return "share a contact over the air" }

// Usage returns the argument synopsis.
func (c *ShareContactCommand) Usage() string { return "share_contact <name>" }

// Args bounds the argument count.
func (c *ShareContactCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ShareContactCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute shares the contact.
func (c *ShareContactCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	if err := env.Link.ShareContact(env.Ctx, ct); err != nil {
		return fmt.Errorf("sharing contact: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	}
	return nil
}

// ExportContactCommand serializes a contact to a shareable URI.
type ExportContactCommand struct{}

// Name returns the canonical verb.
func (c *ExportContactCommand) Name() string { return "export_contact" }

// Aliases returns alternate spellings.
func (c *ExportContactCommand) Aliases() []string { return []string{"ec"} }

// Summary returns the one-line help text.
func (c *ExportContactCommand) Summary() string { return "export a contact as a URI" }

// Usage returns the argument synopsis.
func (c *ExportContactCommand) Usage() string { return "export_contact <name>" }

// Args bounds the argument count.
func (c *ExportContactCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ExportContactCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute prints the contact's URI.
func (c *ExportContactCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	uri, err := env.Link.ExportContact(env.Ctx, &ct)
	if err != nil {
		return fmt.Errorf("exporting contact: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"uri": uri}))
	} else {
		env.Printer.Println(uri)
	}
	return nil
}

// CardCommand exports the node's own contact card.
type CardCommand struct{}

// Name returns the canonical verb.
func (c *CardCommand) Name() string { return "card" }

// Aliases returns alternate spellings.
func (c *CardCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *CardCommand) Summary() string { return "export this node's contact card" }

// Usage returns the argument synopsis.
func (c *CardCommand) Usage() string { return "card" }

// Args bounds the argument count.
func (c *CardCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *CardCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute prints the node's own URI.
func (c *CardCommand) Execute(env *commands.Env, args []string) error {
	uri, err := env.Link.ExportContact(env.Ctx, nil)
	if err != nil {
		return fmt.Errorf("exporting card: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"uri": uri}))
	} else {
		env.Printer.Println(uri)
	}
	return nil
}

// ImportContactCommand ingests a contact URI produced by export_contact.
type ImportContactCommand struct{}

// Name returns the canonical verb.
func (c *ImportContactCommand) Name() string { return "import_contact" }

// Aliases returns alternate spellings.
func (c *ImportContactCommand) Aliases() []string { return []string{"ic"} }

// Summary returns the one-line help text.
func (c *ImportContactCommand) Summary() string { return "import a contact from a URI" }

// Usage returns the argument synopsis.
func (c *ImportContactCommand) Usage() string { return "import_contact <uri>" }

// Args bounds the argument count.
func (c *ImportContactCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ImportContactCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute imports the URI and refreshes the contact list.
func (c *ImportContactCommand) Execute(env *commands.Env, args []string) error {
	if err := env.Link.ImportContact(env.Ctx, args[0]); err != nil {
		return fmt.Errorf("importing contact: %w", err)
	}
	if err := syncContacts(env); err != nil {
		return err
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Contact imported")
	}
	return nil
}

// RemoveContactCommand deletes a contact from the device and the registry.
// It always names its contact explicitly; the current target is never
// removed implicitly.
type RemoveContactCommand struct{}

// Name returns the canonical verb.
func (c *RemoveContactCommand) Name() string { return "remove_contact" }

// Aliases returns alternate spellings.
func (c *RemoveContactCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *RemoveContactCommand) Summary() string { return "remove a contact" }

// Usage returns the argument synopsis.
func (c *RemoveContactCommand) Usage() string { return "remove_contact <name>" }

// Args bounds the argument count.
func (c *RemoveContactCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *RemoveContactCommand) Target() commands.TargetRule { return commands.TargetNamed }

// Execute removes the contact.
func (c *RemoveContactCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	if err := env.Link.RemoveContact(env.Ctx, ct); err != nil {
		return fmt.Errorf("removing contact: %w", err)
	}
	env.Registry.Remove(ct.Identity)
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"removed": ct.Name}))
	} else {
		env.Printer.Dimf("Contact %s removed", ct.Name)
	}
	return nil
}

// ResetPathCommand clears a contact's stored route, reverting to flood.
type ResetPathCommand struct{}

// Name returns the canonical verb.
func (c *ResetPathCommand) Name() string { return "reset_path" }

// Aliases returns alternate spellings.
func (c *ResetPathCommand) Aliases() []string { return []string{"rp"} }

// Summary returns the one-line help text.
func (c *ResetPathCommand) Summary() string { return "reset a contact's path to flood" }

// Usage returns the argument synopsis.
func (c *ResetPathCommand) Usage() string { return "reset_path <name>" }

// Args bounds the argument count.
func (c *ResetPathCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ResetPathCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute resets the path and refreshes the contact list.
func (c *ResetPathCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	if err := env.Link.ResetPath(env.Ctx, ct); err != nil {
		return fmt.Errorf("resetting path: %w", err)
	}
	if err := syncContacts(env); err != nil {
		return err
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Dimf("Path to %s has been reset", ct.Name)
	}
	return nil
}

// ChangePathCommand installs an explicit route for a contact.
type ChangePathCommand struct{}

// Name returns the canonical verb.
func (c *ChangePathCommand) Name() string { return "change_path" }

// Aliases returns alternate spellings.
func (c *ChangePathCommand) Aliases() []string { return []string{"cp"} }

// Summary returns the one-line help text.
func (c *ChangePathCommand) Summary() string { return "set a contact's route" }

// Usage returns the argument synopsis.
func (c *ChangePathCommand) Usage() string { return "change_path <name> <path>" }

// Args bounds the argument count.
func (c *ChangePathCommand) Args() commands.ArgSpec {
	return commands.ArgSpec{Min: 2, Max: 2, Greedy: true}
}

// Target states how the verb obtains its contact.
func (c *ChangePathCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute installs the route and refreshes the contact list.
func (c *ChangePathCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	if err := env.Link.ChangePath(env.Ctx, ct, args[1]); err != nil {
		return fmt.Errorf("setting path: %w", err)
	}
	if err := syncContacts(env); err != nil {
		return err
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	}
	return nil
}

// TimeoutCommand sets a per-contact reply timeout override. Zero clears it
// so the device-suggested or default timeout applies again.
type TimeoutCommand struct{}

// Name returns the canonical verb.
func (c *TimeoutCommand) Name() string { return "timeout" }

// Aliases returns alternate spellings.
func (c *TimeoutCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *TimeoutCommand) Summary() string { return "set a contact's reply timeout, 0 to clear" }

// Usage returns the argument synopsis.
func (c *TimeoutCommand) Usage() string { return "timeout <name> <seconds>" }

// Args bounds the argument count.
func (c *TimeoutCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 2, Max: 2} }

// Target states how the verb obtains its contact.
func (c *TimeoutCommand) Target() commands.TargetRule { return commands.TargetImplicit }

// Execute applies the override.
func (c *TimeoutCommand) Execute(env *commands.Env, args []string) error {
	ct, err := requireContact(env, args[0])
	if err != nil {
		return err
	}
	secs, err := strconv.ParseFloat(args[1], 64)
	if err != nil || secs < 0 {
		return commands.Usagef(c.Name(), "invalid timeout %q: want seconds", args[1])
	}
	d := time.Duration(secs * float64(time.Second))
	env.Registry.SetTimeout(ct.Identity, d)
	switch {
	case env.Machine:
		env.Printer.Println(output.MachineValue(map[string]any{"name": ct.Name, "timeout_s": secs}))
	case d == 0:
		env.Printer.Dimf("Timeout for %s cleared", ct.Name)
	default:
		env.Printer.Dimf("Timeout for %s set to %s", ct.Name, d)
	}
	return nil
}

func init() {
	for _, cmd := range []commands.Command{
		&ContactsCommand{},
		&PendingCommand{},
		&ShareContactCommand{},
		&ExportContactCommand{},
		&CardCommand{},
		&ImportContactCommand{},
		&RemoveContactCommand{},
		&ResetPathCommand{},
		&ChangePathCommand{},
		&TimeoutCommand{},
	} {
		if err := commands.GlobalRegistry.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register %s command: %v", cmd.Name(), err))
		}
	}
}
