package model

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// OverrideTable replaces submodule commits that are missing from the object store by commits that
// are known to be present. It is consulted only after loading the original commit failed.
type OverrideTable struct {
	entries map[plumbing.Hash]plumbing.Hash

	// Default, when set, substitutes any missing submodule commit without its own entry.
	Default plumbing.Hash
}

func NewOverrideTable() *OverrideTable {
	return &OverrideTable{
		entries: map[plumbing.Hash]plumbing.Hash{},
	}
}

func (o *OverrideTable) Set(missing, substitute plumbing.Hash) error {
	if missing.IsZero() || substitute.IsZero() {
		return errors.New("override ids must not be empty")
	}
	if missing == substitute {
		return errors.Errorf("override for %v points to itself", missing)
	}

	o.entries[missing] = substitute
	return nil
}

func (o *OverrideTable) Get(missing plumbing.Hash) (plumbing.Hash, bool) {
	if o == nil {
		return plumbing.ZeroHash, false
	}

	r, ok := o.entries[missing]
	if ok {
		return r, true
	}

	if !o.Default.IsZero() && o.Default != missing {
		return o.Default, true
	}

	return plumbing.ZeroHash, false
}

func (o *OverrideTable) Contains(missing plumbing.Hash) bool {
	_, ok := o.Get(missing)
	return ok
}

func (o *OverrideTable) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}

// Substitutes lists every commit the table can point to, including the default.
func (o *OverrideTable) Substitutes() []plumbing.Hash {
	if o == nil {
		return nil
	}

	result := lo.Values(o.entries)
	if !o.Default.IsZero() {
		result = append(result, o.Default)
	}
	return lo.Uniq(result)
}

func (o *OverrideTable) Entries() map[plumbing.Hash]plumbing.Hash {
	if o == nil {
		return nil
	}
	return lo.Assign(o.entries)
}
