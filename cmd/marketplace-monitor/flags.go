package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"
)

// Subcommands
const (
	cmdStart             = "start"
	cmdCheck             = "check"
	cmdInit              = "init"
	cmdTestNotifications = "test-notifications"
	cmdStatus            = "status"
	cmdConfig            = "config"
	cmdExport            = "export"
)

var errUsage = errors.New("usage")

// AppFlags holds the parsed command line
type AppFlags struct {
	ConfigFile string
	LogLevel   string
	Command    string

	// check
	Site     string
	NoNotify bool

	// init
	InitPath string
	Force    bool

	// config
	Format string

	// export
	ExportPath string
	Since      time.Duration
}

// ParseFlags parses global flags, the subcommand and its flags
func ParseFlags(args []string, output io.Writer) (AppFlags, error) {
	flags := AppFlags{}

	global := flag.NewFlagSet("marketplace-monitor", flag.ContinueOnError)
	global.SetOutput(output)
	global.StringVar(&flags.ConfigFile, "config", "", "Path to the YAML/JSON configuration file. If not set, searches default locations.")
	global.StringVar(&flags.ConfigFile, "c", "", "Alias for -config")
	global.StringVar(&flags.LogLevel, "log-level", "", "Log level override: DEBUG, INFO, WARNING, ERROR")
	global.Usage = func() { printUsage(output, global) }

	if err := global.Parse(args); err != nil {
		return flags, err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return flags, errUsage
	}
	flags.Command = rest[0]

	sub := flag.NewFlagSet(flags.Command, flag.ContinueOnError)
	sub.SetOutput(output)
	switch flags.Command {
	case cmdStart, cmdTestNotifications, cmdStatus:
	case cmdCheck:
		sub.StringVar(&flags.Site, "site", "", "Only check the named site")
		sub.BoolVar(&flags.NoNotify, "no-notify", false, "Report availability without sending notifications")
	case cmdInit:
		sub.StringVar(&flags.InitPath, "path", "config.yaml", "Where to write the example configuration")
		sub.BoolVar(&flags.Force, "force", false, "Overwrite an existing file")
	case cmdConfig:
		sub.StringVar(&flags.Format, "format", "yaml", "Output format: yaml or json")
	case cmdExport:
		sub.StringVar(&flags.ExportPath, "out", "", "Parquet file to write (required)")
		sub.DurationVar(&flags.Since, "since", 0, "Only export checks newer than this, e.g. 24h. Zero exports everything.")
	default:
		global.Usage()
		return flags, fmt.Errorf("unknown command '%s'", flags.Command)
	}

	if err := sub.Parse(rest[1:]); err != nil {
		return flags, err
	}
	if sub.NArg() > 0 {
		return flags, fmt.Errorf("unexpected arguments for '%s': %v", flags.Command, sub.Args())
	}

	if flags.Command == cmdExport && flags.ExportPath == "" {
		return flags, errors.New("export requires --out")
	}
	if flags.Since < 0 {
		return flags, errors.New("--since must not be negative")
	}
	return flags, nil
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: marketplace-monitor [--config FILE] [--log-level LEVEL] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  start               Monitor all enabled sites until interrupted")
	fmt.Fprintln(w, "  check               Check sites once [--site NAME] [--no-notify]")
	fmt.Fprintln(w, "  init                Write an example configuration [--path FILE] [--force]")
	fmt.Fprintln(w, "  test-notifications  Send a test message through every enabled channel")
	fmt.Fprintln(w, "  status              Show configured sites, parsers and the last stored check")
	fmt.Fprintln(w, "  config              Print the effective configuration [--format yaml|json]")
	fmt.Fprintln(w, "  export              Export check history to Parquet --out FILE [--since DURATION]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	global.PrintDefaults()
}
