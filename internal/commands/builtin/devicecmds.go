package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"meshpilot/internal/commands"
	"meshpilot/internal/config"
	"meshpilot/internal/output"
)

// VerCommand shows the device model and firmware version.
type VerCommand struct{}

// Name returns the canonical verb.
func (c *VerCommand) Name() string { return "ver" }

// Aliases returns alternate spellings.
func (c *VerCommand) Aliases() []string { return []string{"query", "v", "q"} }

// Summary returns the one-line help text.
func (c *VerCommand) Summary() string { return "show device model and firmware version" }

// Usage returns the argument synopsis.
func (c *VerCommand) Usage() string { return "ver" }

// Args bounds the argument count.
func (c *VerCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *VerCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute prints the firmware identification.
func (c *VerCommand) Execute(env *commands.Env, args []string) error {
	info := env.Link.Info()
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{
			"model":        info.Model,
			"ver":          info.FirmwareVersion,
			"fw_build":     info.FirmwareBuild,
			"max_channels": info.MaxChannels,
		}))
		return nil
	}
	env.Printer.Println("Device info :")
	env.Printer.Printf(" Model: %s\n", info.Model)
	env.Printer.Printf(" Version: %s\n", info.FirmwareVersion)
	env.Printer.Printf(" Build date: %s\n", info.FirmwareBuild)
	return nil
}

// InfosCommand dumps the node's self description as JSON.
type InfosCommand struct{}

// Name returns the canonical verb.
func (c *InfosCommand) Name() string { return "infos" }

// Aliases returns alternate spellings.
func (c *InfosCommand) Aliases() []string { return []string{"i"} }

// Summary returns the one-line help text.
func (c *InfosCommand) Summary() string { return "show node information" }

// Usage returns the argument synopsis.
func (c *InfosCommand) Usage() string { return "infos" }

// Args bounds the argument count.
func (c *InfosCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *InfosCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute prints the node description. Output is JSON in both modes.
func (c *InfosCommand) Execute(env *commands.Env, args []string) error {
	info := env.Link.Info()
	env.Printer.Println(output.MachineValue(map[string]any{
		"name":         info.Name,
		"public_key":   info.PublicKey,
		"adv_lat":      info.Lat,
		"adv_lon":      info.Lon,
		"tx_power":     info.TxPower,
		"radio_freq":   info.Freq,
		"radio_bw":     info.BW,
		"radio_sf":     info.SF,
		"radio_cr":     info.CR,
		"max_channels": info.MaxChannels,
	}))
	return nil
}

// AdvertCommand sends a zero-hop advertisement.
type AdvertCommand struct{}

// Name returns the canonical verb.
func (c *AdvertCommand) Name() string { return "advert" }

// Aliases returns alternate spellings.
func (c *AdvertCommand) Aliases() []string { return []string{"a"} }

// Summary returns the one-line help text.
func (c *AdvertCommand) Summary() string { return "send an advert" }

// Usage returns the argument synopsis.
func (c *AdvertCommand) Usage() string { return "advert" }

// Args bounds the argument count.
func (c *AdvertCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *AdvertCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute sends the advertisement.
func (c *AdvertCommand) Execute(env *commands.Env, args []string) error {
	if err := env.Link.SendAdvert(env.Ctx, false); err != nil {
		return fmt.Errorf("sending advert: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Advert sent")
	}
	return nil
}

// FloodAdvertCommand sends an advertisement repeaters rebroadcast.
type FloodAdvertCommand struct{}

// Name returns the canonical verb.
func (c *FloodAdvertCommand) Name() string { return "flood_advert" }

// Aliases returns alternate spellings.
func (c *FloodAdvertCommand) Aliases() []string { return []string{"floodadv"} }

// Summary returns the one-line help text.
func (c *FloodAdvertCommand) Summary() string { return "send a flood advert" }

// Usage returns the argument synopsis.
func (c *FloodAdvertCommand) Usage() string { return "flood_advert" }

// Args bounds the argument count.
func (c *FloodAdvertCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *FloodAdvertCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute sends the flood advertisement.
func (c *FloodAdvertCommand) Execute(env *commands.Env, args []string) error {
	if err := env.Link.SendAdvert(env.Ctx, true); err != nil {
		return fmt.Errorf("sending advert: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Flood advert sent")
	}
	return nil
}

// RebootCommand restarts the companion device. The link drops afterwards.
type RebootCommand struct{}

// Name returns the canonical verb.
func (c *RebootCommand) Name() string { return "reboot" }

// Aliases returns alternate spellings.
func (c *RebootCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *RebootCommand) Summary() string { return "reboot the device" }

// Usage returns the argument synopsis.
func (c *RebootCommand) Usage() string { return "reboot" }

// Args bounds the argument count.
func (c *RebootCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *RebootCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute reboots the device.
func (c *RebootCommand) Execute(env *commands.Env, args []string) error {
	if err := env.Link.Reboot(env.Ctx); err != nil {
		return fmt.Errorf("rebooting: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Dimf("Rebooting device")
	}
	return nil
}

// TimeCommand sets the device clock to an epoch timestamp.
type TimeCommand struct{}

// Name returns the canonical verb.
func (c *TimeCommand) Name() string { return "time" }

// Aliases returns alternate spellings.
func (c *TimeCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *TimeCommand) Summary() string { return "set the device clock from an epoch" }

// Usage returns the argument synopsis.
func (c *TimeCommand) Usage() string { return "time <epoch>" }

// Args bounds the argument count.
func (c *TimeCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *TimeCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute sets the clock.
func (c *TimeCommand) Execute(env *commands.Env, args []string) error {
	epoch, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || epoch < 0 {
		return commands.Usagef(c.Name(), "invalid epoch %q", args[0])
	}
	if err := env.Link.SetTime(env.Ctx, time.Unix(epoch, 0)); err != nil {
		return fmt.Errorf("setting time: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Time set")
	}
	return nil
}

// ClockCommand reads the device clock, or syncs it to this host with the
// "sync" subcommand.
type ClockCommand struct{}

// Name returns the canonical verb.
func (c *ClockCommand) Name() string { return "clock" }

// Aliases returns alternate spellings.
func (c *ClockCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *ClockCommand) Summary() string { return "show the device clock, \"clock sync\" to sync it" }

// Usage returns the argument synopsis.
func (c *ClockCommand) Usage() string { return "clock [sync]" }

// Args bounds the argument count.
func (c *ClockCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 0, Max: 1} }

// Target states how the verb obtains its contact.
func (c *ClockCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute reads or syncs the clock.
func (c *ClockCommand) Execute(env *commands.Env, args []string) error {
	if len(args) == 0 {
		tm, err := env.Link.Time(env.Ctx)
		if err != nil {
			return fmt.Errorf("reading clock: %w", err)
		}
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"time": tm.Unix()}))
		} else {
			env.Printer.Printf("Current time : %s (%d)\n", tm.Format("2006-01-02 15:04:05"), tm.Unix())
		}
		return nil
	}
	if args[0] != "sync" {
		return commands.Usagef(c.Name(), "usage: %s", c.Usage())
	}
	if err := env.Link.SetTime(env.Ctx, time.Now()); err != nil {
		return fmt.Errorf("syncing clock: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Time synced")
	}
	return nil
}

// SyncTimeCommand syncs the device clock to this host.
type SyncTimeCommand struct{}

// Name returns the canonical verb.
func (c *SyncTimeCommand) Name() string { return "sync_time" }

// Aliases returns alternate spellings.
func (c *SyncTimeCommand) Aliases() []string { return []string{"st"} }

// Summary returns the one-line help text.
func (c *SyncTimeCommand) Summary() string { return "sync the device clock to this host" }

// Usage returns the argument synopsis.
func (c *SyncTimeCommand) Usage() string { return "sync_time" }

// Args bounds the argument count.
func (c *SyncTimeCommand) Args() commands.ArgSpec { return commands.ArgSpec{} }

// Target states how the verb obtains its contact.
func (c *SyncTimeCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute syncs the clock.
func (c *SyncTimeCommand) Execute(env *commands.Env, args []string) error {
	if err := env.Link.SetTime(env.Ctx, time.Now()); err != nil {
		return fmt.Errorf("syncing clock: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Successf("Time synced")
	}
	return nil
}

// settableParams names the device parameters `set` accepts, for help text.
var settableParams = []string{"coords", "lat", "lon", "name", "pin", "radio", "tuning", "tx"}

// GetCommand reads a device parameter or console option by name.
type GetCommand struct{}

// Name returns the canonical verb.
func (c *GetCommand) Name() string { return "get" }

// Aliases returns alternate spellings.
func (c *GetCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *GetCommand) Summary() string { return "read a device parameter or console option" }

// Usage returns the argument synopsis.
func (c *GetCommand) Usage() string { return "get <param>" }

// Args bounds the argument count.
func (c *GetCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1} }

// Target states how the verb obtains its contact.
func (c *GetCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute prints the requested value.
func (c *GetCommand) Execute(env *commands.Env, args []string) error {
	name := args[0]
	if v, ok := env.Options.GetByName(name); ok {
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{name: v}))
		} else {
			env.Printer.Printf("%s: %s\n", name, v)
		}
		return nil
	}

	info := env.Link.Info()
	switch name {
	case "name":
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"name": info.Name}))
		} else {
			env.Printer.Println(info.Name)
		}
	case "bat":
		mv, err := env.Link.Battery(env.Ctx)
		if err != nil {
			return fmt.Errorf("reading battery: %w", err)
		}
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"level": mv}))
		} else {
			env.Printer.Printf("Battery level : %d\n", mv)
		}
	case "coords":
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"adv_lat": info.Lat, "adv_lon": info.Lon}))
		} else {
			env.Printer.Printf("%f,%f\n", info.Lat, info.Lon)
		}
	case "radio":
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{
				"radio_freq": info.Freq, "radio_bw": info.BW, "radio_sf": info.SF, "radio_cr": info.CR,
			}))
		} else {
			env.Printer.Printf("%s,%s,%d,%d\n", info.Freq, info.BW, info.SF, info.CR)
		}
	case "tx":
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"tx_power": info.TxPower}))
		} else {
			env.Printer.Printf("%d\n", info.TxPower)
		}
	case "help":
		params := append(append([]string{"bat"}, settableParams...), config.ConsoleOptionNames()...)
		env.Printer.Printf("available parameters : %s\n", strings.Join(params, ", "))
	default:
		return commands.Usagef(c.Name(), "unknown parameter %q, try \"get help\"", name)
	}
	return nil
}

// SetCommand writes a device parameter or console option.
type SetCommand struct{}

// Name returns the canonical verb.
func (c *SetCommand) Name() string { return "set" }

// Aliases returns alternate spellings.
func (c *SetCommand) Aliases() []string { return nil }

// Summary returns the one-line help text.
func (c *SetCommand) Summary() string { return "set a device parameter or console option" }

// Usage returns the argument synopsis.
func (c *SetCommand) Usage() string { return "set <param> <value>" }

// Args bounds the argument count. Minimum is one so "set help" works; a
// missing value is diagnosed in Execute.
func (c *SetCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 2} }

// Target states how the verb obtains its contact.
func (c *SetCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute applies the parameter.
func (c *SetCommand) Execute(env *commands.Env, args []string) error {
	name := args[0]
	if name == "help" {
		env.Printer.Println("set <param> <value>")
		env.Printer.Printf(" device     : %s\n", strings.Join(settableParams, ", "))
		env.Printer.Printf("   radio    : set radio <freq>,<bw>,<sf>,<cr>\n")
		env.Printer.Printf("   tuning   : set tuning <rx_dly>,<af>\n")
		env.Printer.Printf(" console    : %s\n", strings.Join(config.ConsoleOptionNames(), ", "))
		return nil
	}
	if len(args) < 2 {
		return commands.Usagef(c.Name(), "set %s: missing value", name)
	}
	value := args[1]

	if _, ok := env.Options.GetByName(name); ok {
		if err := env.Options.SetByName(name, value); err != nil {
			return commands.Usagef(c.Name(), "%v", err)
		}
		if env.Machine {
			env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
		}
		return nil
	}

	info := env.Link.Info()
	var err error
	switch name {
	case "pin":
		err = env.Link.SetPin(env.Ctx, value)
	case "name":
		err = env.Link.SetName(env.Ctx, value)
	case "tx":
		dbm, perr := strconv.Atoi(value)
		if perr != nil {
			return commands.Usagef(c.Name(), "invalid tx power %q", value)
		}
		err = env.Link.SetTxPower(env.Ctx, dbm)
	case "lat":
		lat, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return commands.Usagef(c.Name(), "invalid latitude %q", value)
		}
		err = env.Link.SetCoords(env.Ctx, lat, info.Lon)
	case "lon":
		lon, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return commands.Usagef(c.Name(), "invalid longitude %q", value)
		}
		err = env.Link.SetCoords(env.Ctx, info.Lat, lon)
	case "coords":
		parts := strings.Split(value, ",")
		if len(parts) != 2 {
			return commands.Usagef(c.Name(), "coords want <lat>,<lon>")
		}
		lat, e1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, e2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if e1 != nil || e2 != nil {
			return commands.Usagef(c.Name(), "invalid coords %q", value)
		}
		err = env.Link.SetCoords(env.Ctx, lat, lon)
	case "radio":
		parts := strings.Split(value, ",")
		if len(parts) != 4 {
			return commands.Usagef(c.Name(), "radio wants <freq>,<bw>,<sf>,<cr>")
		}
		sf, e1 := strconv.Atoi(strings.TrimSpace(parts[2]))
		cr, e2 := strconv.Atoi(strings.TrimSpace(parts[3]))
		if e1 != nil || e2 != nil {
			return commands.Usagef(c.Name(), "invalid radio parameters %q", value)
		}
		err = env.Link.SetRadio(env.Ctx, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), sf, cr)
	case "tuning":
		parts := strings.Split(value, ",")
		if len(parts) != 2 {
			return commands.Usagef(c.Name(), "tuning wants <rx_dly>,<af>")
		}
		rx, e1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		af, e2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if e1 != nil || e2 != nil {
			return commands.Usagef(c.Name(), "invalid tuning parameters %q", value)
		}
		err = env.Link.SetTuning(env.Ctx, rx, af)
	default:
		return commands.Usagef(c.Name(), "unknown parameter %q, try \"set help\"", name)
	}
	if err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"ok": true}))
	} else {
		env.Printer.Println("ok")
	}
	return nil
}

// CliCommand passes a raw line to the device's own command interpreter.
type CliCommand struct{}

// Name returns the canonical verb.
func (c *CliCommand) Name() string { return "cli" }

// Aliases returns alternate spellings.
func (c *CliCommand) Aliases() []string { return []string{"@"} }

// Summary returns the one-line help text.
func (c *CliCommand) Summary() string { return "send a raw line to the device CLI" }

// Usage returns the argument synopsis.
func (c *CliCommand) Usage() string { return "cli <line>" }

// Args bounds the argument count.
func (c *CliCommand) Args() commands.ArgSpec { return commands.ArgSpec{Min: 1, Max: 1, Greedy: true} }

// Target states how the verb obtains its contact.
func (c *CliCommand) Target() commands.TargetRule { return commands.TargetNone }

// Execute forwards the line and prints the reply.
func (c *CliCommand) Execute(env *commands.Env, args []string) error {
	reply, err := env.Link.SendCLI(env.Ctx, args[0])
	if err != nil {
		return fmt.Errorf("device cli: %w", err)
	}
	if env.Machine {
		env.Printer.Println(output.MachineValue(map[string]any{"response": reply}))
		return nil
	}
	if reply != "" {
		env.Printer.Println(reply)
	}
	return nil
}

func init() {
	for _, cmd := range []commands.Command{
		&VerCommand{},
		&InfosCommand{},
		&AdvertCommand{},
		&FloodAdvertCommand{},
		&RebootCommand{},
		&TimeCommand{},
		&ClockCommand{},
		&SyncTimeCommand{},
		&GetCommand{},
		&SetCommand{},
		&CliCommand{},
	} {
		if err := commands.GlobalRegistry.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register %s command: %v", cmd.Name(), err))
		}
	}
}
