package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/cli"
)

var CLI struct {
	cli.Globals

	Migrate  cli.MigrateCmd `cmd:"" help:"Create or update the booking schema."`
	Schedule struct {
		Set  cli.ScheduleSetCmd  `cmd:"" help:"Replace the weekly default for a weekday."`
		Show cli.ScheduleShowCmd `cmd:"" help:"Print the weekly default for a weekday."`
	} `cmd:"" help:"Manage weekly schedules."`
	Override struct {
		Set   cli.OverrideSetCmd   `cmd:"" help:"Set a one-day override."`
		Clear cli.OverrideClearCmd `cmd:"" help:"Remove a one-day override."`
	} `cmd:"" help:"Manage day overrides."`
	Slots cli.SlotsCmd `cmd:"" help:"Show how a date resolves and which slots are free."`
	Token struct {
		Inspect cli.TokenInspectCmd `cmd:"" help:"Verify a cancellation token and print its claims."`
	} `cmd:"" help:"Cancellation token tools."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("clinicctl"),
		kong.Description("Operator tool for the clinic booking service"),
		kong.UsageOnError(),
	)

	ctx, stop := runtime.SignalContext()
	defer stop()

	err := kctx.Run(&cli.Context{Context: ctx, Out: os.Stdout, Globals: &CLI.Globals})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
