package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/automaxprocs/maxprocs"

	"git.home.luguber.info/inful/bookbuilder/cmd/bookbuilder/commands"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/version"
)

func main() {
	var cli commands.CLI
	kctx := kong.Parse(&cli, kong.Vars{"version": version.String()})

	// maxprocs.Set fails only on an invalid GOMAXPROCS value; the runtime
	// default applies then.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		if cli.Verbose {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}))

	if err := kctx.Run(&commands.Global{Logger: slog.Default()}); err != nil {
		bberrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
