package main

import (
	"github.com/alecthomas/kong"

	"github.com/pescuma/submerge/lib/consoles"
	"github.com/pescuma/submerge/lib/workspace"
)

var cli struct {
	Repo string `short:"r" default:"." env:"SUBMERGE_REPO" help:"Superproject repository." type:"path"`
	DB   string `env:"SUBMERGE_DB" help:"File to store the commit mapping. Default is .git/submerge.sqlite inside the repository. Use :memory: to not store it."`

	Merge   MergeCmd   `cmd:"" help:"Merge the history of a submodule into the superproject."`
	Check   CheckCmd   `cmd:"" help:"List submodule commits that are referenced but missing, without changing anything."`
	Mapping MappingCmd `cmd:"" help:"Show the commit mapping stored by the last merge."`
}

type context struct {
	ws *workspace.Workspace
}

func main() {
	ctx := kong.Parse(&cli, kong.ShortUsageOnError())

	ws, err := workspace.NewWorkspace(cli.Repo, cli.DB, consoles.NewStdOutConsole())
	ctx.FatalIfErrorf(err)

	err = ctx.Run(&context{
		ws: ws,
	})

	closeErr := ws.Close()
	ctx.FatalIfErrorf(err)
	ctx.FatalIfErrorf(closeErr)
}
