package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pkg/errors"

	"github.com/pescuma/submerge/lib/consoles"
	"github.com/pescuma/submerge/lib/model"
	"github.com/pescuma/submerge/lib/objstore"
	"github.com/pescuma/submerge/lib/rewrite"
	"github.com/pescuma/submerge/lib/storages"
	"github.com/pescuma/submerge/lib/storages/orm"
	"github.com/pescuma/submerge/lib/utils"
)

type Workspace struct {
	console consoles.Console
	storage storages.Storage
	rootDir string
	repo    *git.Repository
	store   *objstore.Store
}

// NewWorkspace opens the superproject at rootDir. The results database defaults to
// submerge.sqlite inside the repository's git directory.
func NewWorkspace(rootDir string, file string, console consoles.Console) (*Workspace, error) {
	rootDir, err := utils.PathAbs(rootDir)
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(rootDir, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening git repository at %v", rootDir)
	}

	if file == "" {
		file = filepath.Join(gitDir(repo, rootDir), "submerge.sqlite")
	}

	var storage storages.Storage
	switch {
	case file == ":memory:":
		storage, err = orm.NewGormStorage(orm.WithSqliteInMemory(), console)

	case strings.HasSuffix(file, ".sqlite"):
		file, err = utils.PathAbs(file)
		if err != nil {
			return nil, err
		}

		err = createWorkspaceDir(file, console)
		if err != nil {
			return nil, err
		}

		storage, err = orm.NewGormStorage(orm.WithSqlite(file), console)

	default:
		return nil, fmt.Errorf("unknown storage type for file %v", file)
	}
	if err != nil {
		return nil, err
	}

	return &Workspace{
		console: console,
		storage: storage,
		rootDir: rootDir,
		repo:    repo,
		store:   objstore.New(repo.Storer),
	}, nil
}

// gitDir is the repository's own git directory, which is not <root>/.git for linked worktrees.
func gitDir(repo *git.Repository, rootDir string) string {
	if fs, ok := repo.Storer.(*filesystem.Storage); ok {
		return fs.Filesystem().Root()
	}
	return filepath.Join(rootDir, git.GitDirName)
}

func createWorkspaceDir(file string, console consoles.Console) error {
	path := filepath.Dir(file)

	if _, err := os.Stat(path); err != nil {
		console.Printf("Creating workspace at %v\n", path)
		err = os.MkdirAll(path, 0o700)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *Workspace) Close() error {
	return w.storage.Close()
}

func (w *Workspace) Console() consoles.Console {
	return w.console
}

func (w *Workspace) RootDir() string {
	return w.rootDir
}

type MergeOptions struct {
	rewrite.Options

	// SubmoduleDir is a repository to copy the submodule objects from. When empty the checked out
	// submodule is used, if there is one.
	SubmoduleDir string

	AllowDirty bool
}

// Merge folds the submodule into the superproject history, moves the branches, stores the mapping
// and leaves the submodule directory as a plain directory of the superproject.
func (w *Workspace) Merge(opts *MergeOptions) (*rewrite.Result, error) {
	mountPath, err := rewrite.CleanMountPath(opts.MountPath)
	if err != nil {
		return nil, err
	}
	opts.MountPath = mountPath

	if !opts.AllowDirty {
		err = w.checkClean()
		if err != nil {
			return nil, err
		}
	}

	err = w.importSubmodule(opts.MountPath, opts.SubmoduleDir)
	if err != nil {
		return nil, err
	}

	migrator, err := rewrite.NewMigrator(w.store, w.console, opts.Options)
	if err != nil {
		return nil, err
	}

	report, err := migrator.FindMissing()
	if err != nil {
		return nil, err
	}
	if !report.Empty() {
		w.printReport(report)
		return nil, report
	}

	start := time.Now()

	result, err := migrator.Migrate()
	if err != nil {
		return nil, err
	}

	w.console.Printf("Migration took %v\n", time.Since(start).Round(time.Millisecond))

	err = w.writeResults(opts.MountPath, result)
	if err != nil {
		return nil, err
	}

	err = w.finishWorktree(opts.MountPath)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Check reports every missing commit that would stop Merge, without changing anything.
func (w *Workspace) Check(opts *MergeOptions) (*model.MissingCommitsError, error) {
	err := w.importSubmodule(opts.MountPath, opts.SubmoduleDir)
	if err != nil {
		return nil, err
	}

	migrator, err := rewrite.NewMigrator(w.store, w.console, opts.Options)
	if err != nil {
		return nil, err
	}

	report, err := migrator.FindMissing()
	if err != nil {
		return nil, err
	}

	w.printReport(report)

	return report, nil
}

func (w *Workspace) printReport(report *model.MissingCommitsError) {
	for _, id := range report.Submodule {
		w.console.Printf("Submodule commit %v is referenced but not found\n", id)
	}
	for _, id := range report.Overrides {
		w.console.Printf("Override target %v is not a known commit\n", id)
	}
}

func (w *Workspace) checkClean() error {
	wt, err := w.repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return nil
	} else if err != nil {
		return err
	}

	status, err := wt.Status()
	if err != nil {
		return errors.Wrap(err, "reading worktree status")
	}

	if !status.IsClean() {
		return errors.New("the worktree has local changes; commit or stash them first")
	}

	return nil
}

// importSubmodule copies the submodule objects into the superproject object store.
func (w *Workspace) importSubmodule(mountPath string, dir string) error {
	src, err := w.openSubmodule(mountPath, dir)
	if err != nil {
		return err
	}
	if src == nil {
		w.console.Printf("Submodule repository not found, using only objects already in the superproject\n")
		return nil
	}

	copied, err := objstore.Import(w.repo.Storer, src.Storer)
	if err != nil {
		return errors.Wrap(err, "importing submodule objects")
	}

	w.console.Printf("Imported %v objects from the submodule\n", copied)
	return nil
}

func (w *Workspace) openSubmodule(mountPath string, dir string) (*git.Repository, error) {
	if dir != "" {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "opening submodule repository at %v", dir)
		}
		return repo, nil
	}

	mountPath, err := rewrite.CleanMountPath(mountPath)
	if err != nil {
		return nil, err
	}

	wt, err := w.repo.Worktree()
	if err != nil {
		return nil, nil
	}

	subs, err := wt.Submodules()
	if err != nil {
		return nil, nil
	}

	for _, sub := range subs {
		if filepath.ToSlash(filepath.Clean(sub.Config().Path)) != mountPath {
			continue
		}

		repo, err := sub.Repository()
		if err != nil {
			w.console.Printf("Could not open submodule %v: %v\n", sub.Config().Name, err)
			return nil, nil
		}
		return repo, nil
	}

	return nil, nil
}

// writeResults replaces whatever an earlier run stored.
func (w *Workspace) writeResults(mountPath string, result *rewrite.Result) error {
	err := w.storage.ClearResults()
	if err != nil {
		return err
	}

	err = w.storage.WriteMapping(result.Mapping)
	if err != nil {
		return err
	}

	err = w.storage.WriteBranchMigrations(result.Branches)
	if err != nil {
		return err
	}

	return w.storage.WriteConfig(map[string]string{
		storages.ConfigMountPath:  mountPath,
		storages.ConfigRepository: w.rootDir,
		storages.ConfigMigratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// finishWorktree removes the submodule .git link file and resets the index to the new HEAD, so the
// files already on disk become regular files of the superproject.
func (w *Workspace) finishWorktree(mountPath string) error {
	wt, err := w.repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return nil
	} else if err != nil {
		return err
	}

	dotGit := filepath.Join(w.rootDir, filepath.FromSlash(mountPath), ".git")
	info, err := os.Lstat(dotGit)
	switch {
	case err == nil && !info.IsDir():
		err = os.Remove(dotGit)
		if err != nil {
			return errors.Wrapf(err, "removing %v", dotGit)
		}
	case err == nil:
		w.console.Printf("Leaving %v in place: it is a repository, not a link\n", dotGit)
	case !os.IsNotExist(err):
		return err
	}

	// An unborn HEAD has nothing to reset to.
	_, err = w.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	err = wt.Reset(&git.ResetOptions{Mode: git.MixedReset})
	if err != nil {
		return errors.Wrap(err, "resetting the index")
	}

	return nil
}

func (w *Workspace) LoadMapping() (*model.RewriteMapping, error) {
	return w.storage.LoadMapping()
}

func (w *Workspace) LoadBranchMigrations() (*model.BranchSet, error) {
	return w.storage.LoadBranchMigrations()
}

func (w *Workspace) LoadConfig() (map[string]string, error) {
	return w.storage.LoadConfig()
}
