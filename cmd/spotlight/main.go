// Package main is the CLI entry point for spotlight.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/spotlight/internal/command"
	"github.com/eliteGoblin/focusd/spotlight/internal/config"
	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
	"github.com/eliteGoblin/focusd/spotlight/internal/infra"
	"github.com/eliteGoblin/focusd/spotlight/internal/ipc"
	"github.com/eliteGoblin/focusd/spotlight/internal/mcptools"
	"github.com/eliteGoblin/focusd/spotlight/internal/shell"
	"github.com/eliteGoblin/focusd/spotlight/internal/sidecar"
	"github.com/eliteGoblin/focusd/spotlight/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "spotlight",
	Short: "Spotlight launcher backend",
	Long: `spotlight hosts a floating launcher window, checks the accessibility
permission it needs and runs a background worker whose output is relayed
to the UI as events.

Start it with 'spotlight run'; the other commands talk to the running
instance over its socket.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start spotlight in the foreground",
	Long: `Requests the accessibility permission, creates the hidden spotlight window,
opens the command socket and spawns the worker. Runs until SIGINT or SIGTERM,
then terminates the worker and exits.`,
	RunE: runRun,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show and focus the spotlight window",
	RunE:  invokeCommand(command.ShowWindow, "Spotlight window shown"),
}

var hideCmd = &cobra.Command{
	Use:   "hide",
	Short: "Hide the spotlight window",
	RunE:  invokeCommand(command.HideWindow, "Spotlight window hidden"),
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle the spotlight window",
	Long:  `Hides the window if visible, otherwise shows and focuses it. Bind this to a hotkey.`,
	RunE:  invokeCommand(command.ToggleWindow, "Spotlight window toggled"),
}

var initWindowCmd = &cobra.Command{
	Use:   "init-window",
	Short: "Create the spotlight window if it is missing",
	RunE:  invokeCommand(command.InitWindow, "Spotlight window ready"),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show spotlight status",
	Long:  `Shows window visibility, permission state and worker bridge counters.`,
	RunE:  runStatus,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream UI events as JSON lines",
	Long:  `Prints every UI event emitted by the running instance, one JSON object per line, until interrupted.`,
	RunE:  runEvents,
}

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Check the accessibility permission",
	Long: `Asks the running instance for the accessibility permission state.
With --prompt the OS permission dialog is shown if access is not granted yet.
If spotlight is not running the check is done in this process.`,
	RunE: runPermission,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE:  runConfigInit,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve spotlight commands as MCP tools over stdio",
	RunE:  runMCP,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden worker command - the default worker is this binary re-executed
var workerCmd = &cobra.Command{
	Use:    shell.WorkerCommand,
	Hidden: true,
	RunE:   runWorker,
}

var (
	configPath   string
	verbose      bool
	jsonOutput   bool
	yamlOutput   bool
	promptUser   bool
	forceWrite   bool
	workerConfig = sidecar.DefaultConfig()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/spotlight/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")

	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	statusCmd.Flags().BoolVar(&yamlOutput, "yaml", false, "Output status as YAML")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	permissionCmd.Flags().BoolVar(&promptUser, "prompt", false, "Show the OS permission prompt if not granted")
	configInitCmd.Flags().BoolVar(&forceWrite, "force", false, "Overwrite an existing config file")

	workerCmd.Flags().DurationVar(&workerConfig.Interval, "interval", workerConfig.Interval, "Delay between lines")
	workerCmd.Flags().IntVar(&workerConfig.Count, "count", 0, "Lines to write before exiting (0 = until stopped)")
	workerCmd.Flags().StringVar(&workerConfig.Prefix, "prefix", workerConfig.Prefix, "Line prefix")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(hideCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(initWindowCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(permissionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(workerCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	workerSpec, err := shell.ResolveWorkerSpec(cfg.Worker)
	if err != nil {
		return err
	}

	host, err := infra.NewWindowHost(cfg.Window.Backend, logger.Named("host"))
	if err != nil {
		return err
	}
	pm := infra.NewProcessManager()

	s := shell.New(cfg, workerSpec, shell.Deps{
		Host:      host,
		Checker:   infra.NewAccessibilityChecker(logger.Named("accessibility")),
		Launcher:  infra.NewExecLauncher(pm, logger.Named("launcher")),
		Processes: pm,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting spotlight",
		zap.String("version", Version),
		zap.Int("pid", os.Getpid()),
		zap.String("worker", workerSpec.Binary))

	if err := s.Run(ctx); err != nil {
		logger.Error("spotlight exited with error", zap.Error(err))
		return err
	}
	return nil
}

func newClient() (*ipc.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return ipc.NewClient(cfg.IPC.SocketPath), nil
}

func invokeCommand(name, okMessage string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if _, err := client.Invoke(name, nil); err != nil {
			return err
		}
		fmt.Println(okMessage)
		return nil
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	status, err := client.Status()
	if err != nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'spotlight run' to start it.")
		return nil
	}

	if jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if yamlOutput {
		data, err := yaml.Marshal(status)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	fmt.Println("\n=== spotlight Status ===")
	fmt.Println("Status: RUNNING")
	fmt.Printf("Window: %s", status.Visibility)
	if !status.WindowInitialized {
		fmt.Print(" (not initialized)")
	}
	fmt.Println()
	fmt.Printf("Accessibility permission: %s\n", status.Permission)
	fmt.Printf("Uptime: %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())

	fmt.Println("\nWorker:")
	fmt.Printf("  State: %s\n", status.Bridge.State)
	if status.Bridge.PID > 0 {
		alive := "alive"
		if !status.WorkerAlive {
			alive = "not running"
		}
		fmt.Printf("  PID: %d (%s)\n", status.Bridge.PID, alive)
	}
	fmt.Printf("  Lines relayed: %d\n", status.Bridge.LinesRelayed)
	fmt.Printf("  Acknowledgments sent: %d\n", status.Bridge.AcksSent)
	fmt.Printf("  Pending since last ack: %d\n", status.Bridge.Counter)
	if status.Bridge.WriteFailures > 0 {
		fmt.Printf("  Write failures: %d\n", status.Bridge.WriteFailures)
	}
	fmt.Println("========================")
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	return client.Subscribe(ctx, func(ev domain.UIEvent) {
		_ = enc.Encode(ev)
	})
}

func runPermission(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}
	state, err := queryPermission(client, func() domain.AccessibilityChecker {
		return infra.NewAccessibilityChecker(logger)
	}, promptUser, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Accessibility permission: %s\n", state)
	if state != domain.PermissionGranted {
		fmt.Println("Grant access in System Settings > Privacy & Security > Accessibility.")
	}
	return nil
}

// permissionInvoker is the part of ipc.Client used by queryPermission.
type permissionInvoker interface {
	InvokeInto(name string, payload any, out any) error
}

// queryPermission asks the running instance. Only when none is running is
// the check done in this process; other errors are returned as is.
func queryPermission(client permissionInvoker, newChecker func() domain.AccessibilityChecker, prompt bool, logger *zap.Logger) (domain.PermissionState, error) {
	var result command.PermissionResult
	err := client.InvokeInto(command.RequestPermission, command.PermissionPayload{Prompt: prompt}, &result)
	if err == nil {
		return result.State, nil
	}
	if !errors.Is(err, ipc.ErrNotRunning) {
		return domain.PermissionUnknown, err
	}
	return usecase.NewPermissionGate(newChecker(), logger).Request(prompt), nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}
	if err := config.Write(path, config.DefaultConfig(), forceWrite); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return mcptools.NewServer(client, Version).ServeStdio()
}

func runWorker(cmd *cobra.Command, args []string) error {
	// stdout carries the line protocol, so logs go to stderr
	logger := createWorkerLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := sidecar.Run(ctx, workerConfig, os.Stdin, os.Stdout, logger)
	logger.Info("worker finished",
		zap.Int("lines_written", stats.LinesWritten),
		zap.Int("acks_received", stats.AcksReceived))
	return err
}

func createLogger(cfg config.LoggingConfig) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{cfg.Path}
	zapConfig.ErrorOutputPaths = []string{cfg.ErrorPath}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func createWorkerLogger() *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Encoding = "console"
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("spotlight %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
