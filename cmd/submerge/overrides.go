package main

import (
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/pescuma/submerge/lib/model"
)

type cmdWithOverrides struct {
	Mapping        []string `short:"m" placeholder:"OLD=NEW" help:"Use submodule commit NEW in place of the missing commit OLD. Can be repeated."`
	DefaultMapping string   `placeholder:"ID" help:"Use this submodule commit in place of any missing commit without its own mapping."`
	Overrides      string   `type:"existingfile" help:"YAML file with the mappings, in the form {mappings: {old: new}, default: id}."`
}

type overridesFile struct {
	Mappings map[string]string `yaml:"mappings"`
	Default  string            `yaml:"default"`
}

// createOverrides merges the file, then the flags, so flags win over the file.
func (c *cmdWithOverrides) createOverrides() (*model.OverrideTable, error) {
	result := model.NewOverrideTable()

	if c.Overrides != "" {
		data, err := os.ReadFile(c.Overrides)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %v", c.Overrides)
		}

		err = parseOverridesYAML(data, result)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %v", c.Overrides)
		}
	}

	for _, m := range c.Mapping {
		old, sub, ok := strings.Cut(m, "=")
		if !ok {
			return nil, errors.Errorf("invalid mapping '%v': expected OLD=NEW", m)
		}

		err := setOverride(result, old, sub)
		if err != nil {
			return nil, err
		}
	}

	if c.DefaultMapping != "" {
		h, err := parseHash(c.DefaultMapping)
		if err != nil {
			return nil, err
		}
		result.Default = h
	}

	return result, nil
}

func parseOverridesYAML(data []byte, target *model.OverrideTable) error {
	file := overridesFile{}

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return err
	}

	for old, sub := range file.Mappings {
		err = setOverride(target, old, sub)
		if err != nil {
			return err
		}
	}

	if file.Default != "" {
		h, err := parseHash(file.Default)
		if err != nil {
			return err
		}
		target.Default = h
	}

	return nil
}

func setOverride(target *model.OverrideTable, old, sub string) error {
	oldHash, err := parseHash(old)
	if err != nil {
		return err
	}

	subHash, err := parseHash(sub)
	if err != nil {
		return err
	}

	return target.Set(oldHash, subHash)
}

func parseHash(s string) (plumbing.Hash, error) {
	s = strings.TrimSpace(s)
	if !plumbing.IsHash(s) {
		return plumbing.ZeroHash, errors.Errorf("invalid commit id '%v': expected 40 hex digits", s)
	}

	return plumbing.NewHash(s), nil
}
