package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	Config   string `help:"Path to config file" type:"path"`
	Server   string `help:"Relay server base URL"`
	Token    string `env:"COXSWAIN_TOKEN" help:"Relay auth token"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`
	Plain    bool   `help:"Plain text output, no markdown rendering"`
	NoColor  bool   `help:"Disable ANSI styling"`

	Sessions  SessionsCmd  `cmd:"" help:"List and manage relay sessions"`
	Watch     WatchCmd     `cmd:"" help:"Follow a session live"`
	Send      SendCmd      `cmd:"" help:"Send a message to a session"`
	Approvals ApprovalsCmd `cmd:"" help:"List pending approvals and tool-input requests"`
	Approve   ApproveCmd   `cmd:"" help:"Decide a pending approval"`
	Respond   RespondCmd   `cmd:"" help:"Answer a pending tool-input request"`
	Interrupt InterruptCmd `cmd:"" help:"Stop the active turn"`
	Steer     SteerCmd     `cmd:"" help:"Redirect the active turn"`
	Suggest   SuggestCmd   `cmd:"" help:"Ask the relay to draft a reply"`
	Export    ExportCmd    `cmd:"" help:"Write a session transcript to disk"`
	Projects  ProjectsCmd  `cmd:"" help:"List projects"`
	Doctor    DoctorCmd    `cmd:"" help:"Check configuration, connectivity, and environment"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("coxswain"),
		kong.Description("Terminal client for an agent relay server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
