// Package cli defines the inhibitor command-line grammar.
package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/alecthomas/kong"
)

type Command string

const (
	CommandQuery   Command = "query"
	CommandOn      Command = "on"
	CommandOff     Command = "off"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandDaemon  Command = "daemon"
	CommandHelp    Command = "help"
)

// Parsed is the outcome of a successful parse.
type Parsed struct {
	Command    Command
	ConfigPath string
	Debug      bool
	ShowHelp   bool
}

type grammar struct {
	Help        bool   `short:"h" help:"Show help."`
	ShowVersion bool   `name:"version" help:"Show version."`
	Config      string `help:"Config file path (default: $XDG_CONFIG_HOME/inhibitor/config.yaml)." placeholder:"PATH" type:"path"`
	Debug       bool   `short:"d" help:"Log at debug level."`

	Query   struct{} `cmd:"" default:"1" help:"Print whether idle inhibition is active (default)."`
	On      struct{} `cmd:"" help:"Inhibit idle."`
	Off     struct{} `cmd:"" help:"Stop inhibiting idle."`
	Doctor  struct{} `cmd:"" help:"Run configuration and environment checks."`
	Version struct{} `cmd:"" help:"Print version information."`
	Daemon  struct{} `cmd:"" hidden:"" help:"Run the background daemon."`
}

func newParser(binaryName string, out io.Writer, g *grammar) (*kong.Kong, error) {
	return kong.New(g,
		kong.Name(binaryName),
		kong.Description("Toggle idle inhibition through a per-user background daemon."),
		kong.NoDefaultHelp(),
		kong.Writers(out, out),
		kong.Exit(func(int) {}),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
}

// Parse turns argv (without the program name) into a Parsed command.
// With no command the query command is selected.
func Parse(args []string) (Parsed, error) {
	var g grammar
	parser, err := newParser("inhibitor", io.Discard, &g)
	if err != nil {
		return Parsed{}, fmt.Errorf("build parser: %w", err)
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return Parsed{}, err
	}

	parsed := Parsed{
		Command:    Command(ctx.Command()),
		ConfigPath: g.Config,
		Debug:      g.Debug,
	}
	switch {
	case g.Help:
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	case g.ShowVersion:
		parsed.Command = CommandVersion
	}
	return parsed, nil
}

// HelpText renders usage for binaryName.
func HelpText(binaryName string) string {
	var (
		g   grammar
		buf bytes.Buffer
	)
	parser, err := newParser(binaryName, &buf, &g)
	if err != nil {
		return binaryName + "\n"
	}
	ctx, err := kong.Trace(parser, nil)
	if err != nil {
		return binaryName + "\n"
	}
	// Drop the default query selection so the app summary is printed.
	ctx.Path = ctx.Path[:1]
	if err := ctx.PrintUsage(false); err != nil {
		return binaryName + "\n"
	}
	return buf.String()
}
