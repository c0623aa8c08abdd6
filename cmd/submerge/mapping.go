package main

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/pescuma/submerge/lib/model"
	"github.com/pescuma/submerge/lib/storages"
)

type MappingCmd struct {
	History string `short:"H" enum:"all,superproject,submodule" default:"all" help:"Only show commits of this history (${enum})."`
	Short   bool   `short:"s" help:"Only show old and new ids."`
}

func (c *MappingCmd) Run(ctx *context) error {
	mapping, err := ctx.ws.LoadMapping()
	if err != nil {
		return err
	}

	filter := func(*model.MappedCommit) bool { return true }
	if c.History != "all" {
		h, err := model.ParseHistory(c.History)
		if err != nil {
			return err
		}
		filter = func(m *model.MappedCommit) bool { return m.History == h }
	}

	for _, m := range mapping.List() {
		if !filter(m) {
			continue
		}

		switch {
		case c.Short:
			fmt.Printf("%v %v\n", m.Original, m.New)
		case m.Substituted():
			fmt.Printf("%v %v %v (substituted by %v)\n", m.History, m.Original, m.New, m.SubstitutedBy)
		default:
			fmt.Printf("%v %v %v\n", m.History, m.Original, m.New)
		}
	}

	if !c.Short {
		config, err := ctx.ws.LoadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("%v commits mapped", humanize.Comma(int64(mapping.Len())))
		if path, ok := config[storages.ConfigMountPath]; ok {
			fmt.Printf(" for '%v'", path)
		}
		fmt.Println()
	}

	return nil
}
