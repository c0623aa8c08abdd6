package objstore

import (
	"sort"

	"github.com/pescuma/submerge/lib/model"
)

func sortBranches(branches []*model.Branch) {
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].Name < branches[j].Name
	})
}
