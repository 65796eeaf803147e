package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/latexbuilder/cmd/latexbuilder/commands"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/version"
)

func main() {
	var cli commands.CLI
	globals := &commands.Global{}
	ctx := kong.Parse(&cli,
		kong.Name("latexbuilder"),
		kong.Description("Compile LaTeX documents from many repositories, upload the PDFs and trigger a downstream rebuild."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(globals),
	)

	if err := ctx.Run(globals, &cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, globals.Logger).HandleError(err)
	}
}
