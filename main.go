package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"jdximcp/config"
)

const usage = `usage: jdximcp [flags] <command> [args]

commands:
  ports                       list MIDI and serial ports
  identify                    run the identity handshake
  list [prefix]               list known parameters
  set <id>[:partial] <value>  write a parameter
  get <id>[:partial]          read a parameter
  load <bank> <program>       bank select + program change
  monitor                     print parameter changes sent by the device
  play [notes]                play test notes, e.g. "C4 E4 G4 r C5"
  console                     interactive prompt
  mcp                         serve MCP tools on stdio
  log [flags] <file>          dump a protocol capture

flags:
`

// logger is replaced by initLogger before any command runs.
var logger = slog.Default()

func initLogger(level string, debug bool) error {
	var l slog.Level
	if level == "" {
		level = "info"
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	if debug {
		l = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     l,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
	return nil
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides the config)")
	debug := flag.Bool("debug", false, "debug logging with source locations")
	capture := flag.String("capture", "", "append a CBOR protocol capture to this file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	if err := initLogger(level, *debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(ctx, cfg, *capture, cmd, args); err != nil {
		logger.Error("command failed", "command", cmd, "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, capture, cmd string, args []string) error {
	// Commands that need no device.
	switch cmd {
	case "ports":
		return listPorts(os.Stdout)
	case "list":
		reg, err := loadRegistry(cfg.Catalog)
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		return listParameters(os.Stdout, reg, prefix)
	case "log":
		return runLogDump(os.Stdout, args)
	}

	a, err := openApp(cfg, capture)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "identify":
		id, err := a.ctrl.Identify(ctx)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	case "set":
		return cmdSet(ctx, a, os.Stdout, args)
	case "get":
		return cmdGet(ctx, a, os.Stdout, args)
	case "load":
		return cmdLoad(ctx, a, os.Stdout, args)
	case "monitor":
		return runMonitor(ctx, a, os.Stdout)
	case "play":
		if len(args) == 0 {
			return playTestNotes(a.session, a.channel())
		}
		return playNotesFromText(a.session, a.channel(), strings.Join(args, " "))
	case "console":
		return runConsole(ctx, a)
	case "mcp":
		return runMCP(a)
	}
	return fmt.Errorf("unknown command %q", cmd)
}
