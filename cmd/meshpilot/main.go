// Package main provides the meshpilot CLI application entry point.
// meshpilot is a terminal console for MeshCore companion radios: interactive
// chat over the mesh plus the full device command set.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"meshpilot/internal/await"
	"meshpilot/internal/commands"
	_ "meshpilot/internal/commands/builtin" // Import for side effects (init functions)
	"meshpilot/internal/config"
	"meshpilot/internal/device"
	"meshpilot/internal/logger"
	"meshpilot/internal/output"
	"meshpilot/internal/registry"
	"meshpilot/internal/session"
	"meshpilot/internal/store"
	"meshpilot/internal/version"
)

var (
	address    string
	deviceName string
	tcpHost    string
	tcpPort    int
	serialDev  string
	baudRate   int
	jsonOutput bool
	logLevel   string
	logFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshpilot [command [args]]...",
	Short: "meshpilot - console for MeshCore companion radios",
	Long: `meshpilot connects to a MeshCore companion radio and drives it from the
terminal: interactive chat over the mesh, repeater administration, and the
device configuration surface.

With no arguments it starts the interactive console. Arguments run as a
command chain and exit, for example:

  meshpilot contacts
  meshpilot -t 192.168.1.50 send alice "on my way" recv
  meshpilot -j .ver`,
	Args: cobra.ArbitraryArgs,
	Run:  runConsole,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version of meshpilot.`,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Connection flags
	rootCmd.PersistentFlags().StringVarP(&address, "address", "a", "", "Device address (sim:, tcp://host:port, serial:<dev>, ble:<name>)")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "BLE device name")
	rootCmd.PersistentFlags().StringVarP(&tcpHost, "tcp", "t", "", "TCP host running a companion server")
	rootCmd.PersistentFlags().IntVarP(&tcpPort, "port", "p", config.DefaultTCPPort, "TCP port")
	rootCmd.PersistentFlags().StringVarP(&serialDev, "serial", "s", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", config.DefaultBaud, "Serial baud rate")

	// Output and logging flags
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: warn]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")

	// Bind flags to viper
	if err := viper.BindPFlag("address", rootCmd.PersistentFlags().Lookup("address")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding address flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding json flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-file flag: %v\n", err)
		os.Exit(1)
	}

	// Add subcommands
	rootCmd.AddCommand(versionCmd)

	// Configure logging and config sources before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env layers below real environment variables, so load before anything
	// reads the environment
	config.LoadDotEnv()

	if err := logger.Configure(logLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	config.SetupViper(viper.GetViper())
}

// resolveAddress picks the device address: connection flags first, then the
// environment and config file, then the address the last session used, and
// finally the built-in simulator.
func resolveAddress() string {
	if address != "" {
		return address
	}
	if tcpHost != "" {
		return fmt.Sprintf("tcp://%s:%d", tcpHost, tcpPort)
	}
	if serialDev != "" {
		if baudRate != config.DefaultBaud {
			return fmt.Sprintf("serial:%s:%d", serialDev, baudRate)
		}
		return "serial:" + serialDev
	}
	if deviceName != "" {
		return "ble:" + deviceName
	}
	if addr := viper.GetString("address"); addr != "" {
		return addr
	}
	if addr, ok := config.ReadDefaultAddress(); ok {
		return addr
	}
	return "sim:"
}

func runConsole(_ *cobra.Command, args []string) {
	ctx := context.Background()

	addr := resolveAddress()
	link, err := device.Open(addr)
	if err != nil {
		logger.Fatal("Connection failed", "address", addr, "error", err)
	}
	defer func() { _ = link.Close() }()

	if err := config.WriteDefaultAddress(addr); err != nil {
		logger.Warn("Could not persist device address", "error", err)
	}

	info := link.Info()
	logger.Info("Connected", "node", info.Name, "model", info.Model, "firmware", info.FirmwareVersion)

	opts := config.NewOptions()
	if viper.GetBool("json") {
		opts.SetMachineOutput(true)
		opts.SetJSONMessages(true)
	}
	if s := viper.GetString("ack-timeout"); s != "" {
		if err := opts.SetByName(config.OptAckTimeout, s); err != nil {
			logger.Warn("Ignoring ack-timeout", "value", s, "error", err)
		}
	}

	printer := output.New(opts)
	reg := registry.New()
	waits := await.New()

	archive, err := store.Open(info.Name)
	if err != nil {
		logger.Warn("Message archive disabled", "error", err)
	} else {
		defer func() { _ = archive.Close() }()
	}

	sess := session.New(session.Config{
		Link:     link,
		Registry: reg,
		Waits:    waits,
		Options:  opts,
		Printer:  printer,
		Archive:  archive,
		History:  config.HistoryFile(),
	})

	if len(args) > 0 {
		contacts, err := link.Contacts(ctx)
		if err != nil {
			logger.Fatal("Contact sync failed", "error", err)
		}
		reg.ReplaceAll(contacts)

		env := &commands.Env{
			Ctx:      ctx,
			Link:     link,
			Registry: reg,
			Waits:    waits,
			Options:  opts,
			Printer:  printer,
			Archive:  archive,
			Session:  sess,
			Machine:  opts.MachineOutput(),
		}
		if !runChain(ctx, sess, env, args) {
			return
		}
		// The chain named a contact to chat with; fall through to the console.
	}

	if err := sess.Run(ctx); err != nil {
		logger.Fatal("Session ended", "error", err)
	}
}

// runChain executes the command line argument chain with the event pump
// running, so sends see their acknowledgments. Reports whether the chain
// requested interactive mode.
func runChain(ctx context.Context, sess *session.Session, env *commands.Env, args []string) bool {
	pumpCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sess.Pump(pumpCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Device stream ended", "error", err)
		}
	}()

	commands.RunChain(env, args)

	stop()
	<-done

	_, chat := sess.ChatRequest()
	return chat
}
