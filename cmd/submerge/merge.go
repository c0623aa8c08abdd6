package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pescuma/submerge/lib/rewrite"
	"github.com/pescuma/submerge/lib/workspace"
)

type MergeCmd struct {
	cmdWithOverrides

	Path         string   `arg:"" help:"Path of the submodule inside the superproject."`
	Branch       []string `short:"b" help:"Branch to migrate. Can be repeated. Default is all local branches."`
	Workers      int      `short:"j" default:"0" help:"Number of goroutines used to rewrite commits. 0 uses a default based on the number of CPUs, 1 disables parallelism."`
	Progress     bool     `default:"true" negatable:"" help:"Show a progress bar while rewriting."`
	AllowDirty   bool     `help:"Run even if the worktree has local changes."`
	SubmoduleDir string   `type:"existingdir" help:"Repository to read the submodule commits from. Default is the checked out submodule."`
}

func (c *MergeCmd) Run(ctx *context) error {
	overrides, err := c.createOverrides()
	if err != nil {
		return err
	}

	start := time.Now()

	result, err := ctx.ws.Merge(&workspace.MergeOptions{
		Options: rewrite.Options{
			MountPath: c.Path,
			Overrides: overrides,
			Branches:  c.Branch,
			Workers:   c.Workers,
			Progress:  c.Progress,
		},
		SubmoduleDir: c.SubmoduleDir,
		AllowDirty:   c.AllowDirty,
	})
	if err != nil {
		return err
	}

	printResult(result, time.Since(start))

	return nil
}

func printResult(result *rewrite.Result, elapsed time.Duration) {
	for _, b := range result.Branches.List() {
		fmt.Printf("%v: %v -> %v\n", b.ShortName(), b.Tip.String()[:10], b.NewTip.String()[:10])
	}

	if result.Head != nil {
		fmt.Printf("HEAD: %v -> %v\n", result.Head.Old.String()[:10], result.Head.New.String()[:10])
	}

	fmt.Printf("Rewrote %v superproject and %v submodule commits (%v substituted) in %v\n",
		humanize.Comma(int64(result.Stats.Superproject)),
		humanize.Comma(int64(result.Stats.Submodule)),
		humanize.Comma(int64(result.Stats.Substituted)),
		elapsed.Round(time.Millisecond))
}

type CheckCmd struct {
	cmdWithOverrides

	Path         string   `arg:"" help:"Path of the submodule inside the superproject."`
	Branch       []string `short:"b" help:"Branch to check. Can be repeated. Default is all local branches."`
	SubmoduleDir string   `type:"existingdir" help:"Repository to read the submodule commits from. Default is the checked out submodule."`
}

func (c *CheckCmd) Run(ctx *context) error {
	overrides, err := c.createOverrides()
	if err != nil {
		return err
	}

	report, err := ctx.ws.Check(&workspace.MergeOptions{
		Options: rewrite.Options{
			MountPath: c.Path,
			Overrides: overrides,
			Branches:  c.Branch,
		},
		SubmoduleDir: c.SubmoduleDir,
	})
	if err != nil {
		return err
	}

	if !report.Empty() {
		return report
	}

	fmt.Println("All referenced submodule commits are available")
	return nil
}
