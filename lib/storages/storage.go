package storages

import (
	"github.com/pescuma/submerge/lib/model"
)

// Storage keeps the results of a migration: the old to new commit mapping, the branches that
// were moved and a few configuration values of the run.
type Storage interface {
	LoadMapping() (*model.RewriteMapping, error)
	WriteMapping(mapping *model.RewriteMapping) error

	LoadBranchMigrations() (*model.BranchSet, error)
	WriteBranchMigrations(branches *model.BranchSet) error

	// ClearResults drops the mapping and branch migrations of earlier runs.
	ClearResults() error

	LoadConfig() (map[string]string, error)
	WriteConfig(config map[string]string) error

	Close() error
}

type Factory = func(path string) (Storage, error)

const (
	ConfigMountPath  = "mount_path"
	ConfigRepository = "repository"
	ConfigMigratedAt = "migrated_at"
)
